package listing

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Listing is one business-support program as published by the upstream
// catalog. ID is the upstream announcement identifier and is stable
// across edits; Hash fingerprints the visible content.
type Listing struct {
	ID          string
	Title       string
	Category    string
	Agency      string
	Summary     string
	URL         string
	PublishedAt time.Time
	Hash        string
	LastSeen    time.Time
	Retracted   bool
}

// Classification is the diff outcome for one fetched listing against
// the stored fingerprint.
type Classification int

const (
	New Classification = iota + 1
	Changed
	Unchanged
)

func (c Classification) String() string {
	switch c {
	case New:
		return "new"
	case Changed:
		return "changed"
	case Unchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Discovery is a new or changed listing picked up by a sync cycle.
type Discovery struct {
	Listing Listing
	Kind    Classification
}

// Fingerprint hashes the normalized title and body. Case and runs of
// whitespace do not affect the result; the NUL separator keeps the
// title/body boundary from shifting.
func Fingerprint(title, body string) string {
	h := sha256.New()
	h.Write([]byte(normalize(title)))
	h.Write([]byte{0})
	h.Write([]byte(normalize(body)))
	return hex.EncodeToString(h.Sum(nil))
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
