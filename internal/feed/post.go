// Package feed defines the canonical post entity and the aggregation
// pipeline that merges posts from all upstream sources into the store.
package feed

import "time"

// Platform identifies the upstream a post came from.
type Platform string

const (
	PlatformReddit  Platform = "reddit"
	PlatformYouTube Platform = "youtube"
)

const maxDescriptionRunes = 500

// Post is a single canonical feed item. Link is the natural key: two posts
// with the same link are the same post, regardless of which fetch produced
// them.
type Post struct {
	Link        string
	Title       string
	Description string
	Author      string
	MediaURL    string // thumbnail URL, empty when unresolvable
	Platform    Platform
	VideoID     string    // set only by the video-search adapter
	PostedAt    time.Time // origin-reported creation time, UTC
	FetchedAt   time.Time // ingestion time, UTC
}

// TruncateDescription caps s at 500 runes, replacing the tail with "..."
// when longer.
func TruncateDescription(s string) string {
	runes := []rune(s)
	if len(runes) <= maxDescriptionRunes {
		return s
	}
	return string(runes[:maxDescriptionRunes-3]) + "..."
}

// Query holds caller-supplied feed criteria. Platform and Keyword are
// optional filters; Interests are the topics fetched before filtering.
type Query struct {
	Platform  string
	Keyword   string
	Interests []string
}
