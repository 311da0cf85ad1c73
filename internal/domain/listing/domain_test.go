package listing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprint_NormalizesWhitespaceAndCase(t *testing.T) {
	a := Fingerprint("청년 창업 지원", "서울  지역   대상")
	b := Fingerprint("청년  창업 지원 ", " 서울 지역 대상")
	require.Equal(t, a, b)

	c := Fingerprint("Youth Startup Support", "body")
	d := Fingerprint("youth startup SUPPORT", "body")
	require.Equal(t, c, d)
}

func TestFingerprint_TitleBodyBoundary(t *testing.T) {
	// "ab"+"c" must not collide with "a"+"bc".
	require.NotEqual(t, Fingerprint("ab", "c"), Fingerprint("a", "bc"))
}

func TestFingerprint_ChangedBodyChangesHash(t *testing.T) {
	require.NotEqual(t,
		Fingerprint("title", "deadline 2026-09-01"),
		Fingerprint("title", "deadline 2026-10-01"),
	)
}

func TestClassificationString(t *testing.T) {
	require.Equal(t, "new", New.String())
	require.Equal(t, "changed", Changed.String())
	require.Equal(t, "unchanged", Unchanged.String())
	require.Equal(t, "unknown", Classification(0).String())
}
