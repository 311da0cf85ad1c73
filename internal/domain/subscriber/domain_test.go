package subscriber

import (
	"testing"

	"github.com/stretchr/testify/require"

	"bizwatch/internal/domain/listing"
)

func TestMatches_CategoryAllowList(t *testing.T) {
	s := &Subscriber{Categories: []string{"금융", "수출"}}

	require.True(t, s.Matches(&listing.Listing{Category: "금융"}))
	require.True(t, s.Matches(&listing.Listing{Category: " 수출 "}))
	require.False(t, s.Matches(&listing.Listing{Category: "기술"}))
}

func TestMatches_KeywordSubstringCaseInsensitive(t *testing.T) {
	s := &Subscriber{Keywords: []string{"Startup", "청년"}}

	require.True(t, s.Matches(&listing.Listing{Title: "2026 STARTUP voucher"}))
	require.True(t, s.Matches(&listing.Listing{Title: "공고", Summary: "청년 창업자 대상"}))
	require.False(t, s.Matches(&listing.Listing{Title: "수출바우처", Summary: "중견기업"}))
}

func TestMatches_CategoryOrKeyword(t *testing.T) {
	s := &Subscriber{Categories: []string{"금융"}, Keywords: []string{"바우처"}}

	require.True(t, s.Matches(&listing.Listing{Category: "금융", Title: "융자"}))
	require.True(t, s.Matches(&listing.Listing{Category: "수출", Title: "수출바우처 모집"}))
	require.False(t, s.Matches(&listing.Listing{Category: "기술", Title: "R&D"}))
}

func TestMatches_NoCriteriaMatchesEverything(t *testing.T) {
	s := &Subscriber{}
	require.True(t, s.Matches(&listing.Listing{Title: "anything", Category: "whatever"}))
}

func TestMatches_BlankKeywordIgnored(t *testing.T) {
	s := &Subscriber{Keywords: []string{"  "}}
	require.False(t, s.Matches(&listing.Listing{Title: "anything"}))
}
