package bizinfo

// Wire shape of the announcement API in dataType=json mode. Field names
// follow the upstream schema (pblanc = 공고, announcement).
type apiResponse struct {
	Items []apiItem `json:"jsonArray"`
}

type apiItem struct {
	PblancID   string `json:"pblancId"`
	PblancNm   string `json:"pblancNm"`
	Category   string `json:"pldirSportRealmLclasCodeNm"`
	Summary    string `json:"bsnsSumryCn"`
	Agency     string `json:"jrsdInsttNm"`
	URL        string `json:"pblancUrl"`
	CreatPnttm string `json:"creatPnttm"`
	Hashtags   string `json:"hashTags"`
}
