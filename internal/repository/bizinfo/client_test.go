package bizinfo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bizwatch/internal/domain/source"
)

func testClient(baseURL string, pageUnit int) *Client {
	return New(Config{
		BaseURL:  baseURL,
		APIKey:   "test-key",
		PageUnit: pageUnit,
		Timeout:  2 * time.Second,
	})
}

func TestFetchPage_ParsesItemsAndPaginates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-key", r.URL.Query().Get("crtfcKey"))
		require.Equal(t, "json", r.URL.Query().Get("dataType"))
		require.Equal(t, "2", r.URL.Query().Get("pageUnit"))

		switch r.URL.Query().Get("pageIndex") {
		case "1":
			fmt.Fprint(w, `{"jsonArray":[
				{"pblancId":"PBLN_001","pblancNm":"청년창업 지원","pldirSportRealmLclasCodeNm":"창업",
				 "bsnsSumryCn":"예비창업자 대상","jrsdInsttNm":"중소벤처기업부",
				 "pblancUrl":"https://www.bizinfo.go.kr/1","creatPnttm":"2026-08-20 09:00:00"},
				{"pblancId":"PBLN_002","pblancNm":"수출바우처","pldirSportRealmLclasCodeNm":"수출",
				 "bsnsSumryCn":"중소기업 대상","creatPnttm":"2026-08-21"}
			]}`)
		case "2":
			fmt.Fprint(w, `{"jsonArray":[
				{"pblancId":"PBLN_003","pblancNm":"R&D 지원","pldirSportRealmLclasCodeNm":"기술"}
			]}`)
		default:
			t.Fatalf("unexpected pageIndex %q", r.URL.Query().Get("pageIndex"))
		}
	}))
	defer srv.Close()

	c := testClient(srv.URL, 2)

	page, next, err := c.FetchPage(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "2", next)
	require.Len(t, page, 2)
	require.Equal(t, "PBLN_001", page[0].ID)
	require.Equal(t, "청년창업 지원", page[0].Title)
	require.Equal(t, "창업", page[0].Category)
	require.Equal(t, "중소벤처기업부", page[0].Agency)
	require.Equal(t, time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC), page[0].PublishedAt)
	require.NotEmpty(t, page[0].Hash)
	require.Equal(t, time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC), page[1].PublishedAt)

	// Short page means the stream ends here.
	page, next, err = c.FetchPage(context.Background(), next)
	require.NoError(t, err)
	require.Empty(t, next)
	require.Len(t, page, 1)
}

func TestFetchPage_EmptyPageIsEndOfStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"jsonArray":[]}`)
	}))
	defer srv.Close()

	page, next, err := testClient(srv.URL, 10).FetchPage(context.Background(), "")
	require.NoError(t, err)
	require.Empty(t, page)
	require.Empty(t, next)
}

func TestFetchPage_StableHashAcrossFetches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"jsonArray":[{"pblancId":"PBLN_001","pblancNm":"같은 공고","bsnsSumryCn":"같은 내용"}]}`)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 10)
	p1, _, err := c.FetchPage(context.Background(), "")
	require.NoError(t, err)
	p2, _, err := c.FetchPage(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, p1[0].Hash, p2[0].Hash)
}

func TestFetchPage_ErrorTaxonomy(t *testing.T) {
	t.Run("5xx is unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, _, err := testClient(srv.URL, 10).FetchPage(context.Background(), "")
		var ue *source.UnavailableError
		require.ErrorAs(t, err, &ue)
	})

	t.Run("4xx is rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer srv.Close()

		_, _, err := testClient(srv.URL, 10).FetchPage(context.Background(), "")
		require.ErrorIs(t, err, source.ErrRejected)
	})

	t.Run("429 carries retry-after hint", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, _, err := testClient(srv.URL, 10).FetchPage(context.Background(), "")
		var rl *source.RateLimitedError
		require.ErrorAs(t, err, &rl)
		require.Equal(t, 7*time.Second, rl.RetryAfter)
	})

	t.Run("connection refused is unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		srv.Close()

		_, _, err := testClient(srv.URL, 10).FetchPage(context.Background(), "")
		var ue *source.UnavailableError
		require.ErrorAs(t, err, &ue)
	})

	t.Run("garbage body is unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `<rss>dataType=json으로 요청하세요</rss>`)
		}))
		defer srv.Close()

		_, _, err := testClient(srv.URL, 10).FetchPage(context.Background(), "")
		var ue *source.UnavailableError
		require.ErrorAs(t, err, &ue)
	})
}

func TestFetchPage_BadCursorIsRejected(t *testing.T) {
	// Rejected, not unavailable: a corrupt resume token never heals, so
	// the caller must not burn retries on it.
	_, _, err := testClient("http://localhost:0", 10).FetchPage(context.Background(), "not-a-page")
	require.ErrorIs(t, err, source.ErrRejected)
	var ue *source.UnavailableError
	require.False(t, errors.As(err, &ue))
}

func TestFetchPage_SkipsItemsWithoutID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"jsonArray":[{"pblancNm":"no id"},{"pblancId":"PBLN_009","pblancNm":"ok"}]}`)
	}))
	defer srv.Close()

	page, _, err := testClient(srv.URL, 10).FetchPage(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "PBLN_009", page[0].ID)
}
