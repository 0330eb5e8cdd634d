package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/feedfusion/feedfusion/internal/feed"
)

const (
	youtubeDefaultBaseURL = "https://www.googleapis.com/youtube/v3"
	youtubeWatchBaseURL   = "https://www.youtube.com/watch?v="
	youtubeTimeout        = 30 * time.Second
	youtubeMaxResults     = 3
	youtubeVideoKind      = "youtube#video"
)

// YouTubeSource searches the video API for a topic. Auth is an API key in
// the query string; no bearer token is involved.
type YouTubeSource struct {
	apiKey  string
	client  *http.Client
	baseURL string
	log     *slog.Logger
}

func NewYouTube(apiKey, baseURL string, log *slog.Logger) *YouTubeSource {
	if baseURL == "" {
		baseURL = youtubeDefaultBaseURL
	}
	if log == nil {
		log = slog.Default()
	}
	return &YouTubeSource{
		apiKey:  apiKey,
		client:  &http.Client{Timeout: youtubeTimeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
	}
}

func (ys *YouTubeSource) Platform() feed.Platform {
	return feed.PlatformYouTube
}

// Fetch returns video search results for topic. A missing API key, an HTTP
// error, or a malformed payload is logged and reported as an empty result.
func (ys *YouTubeSource) Fetch(ctx context.Context, topic string) []feed.Post {
	if ys.apiKey == "" {
		ys.log.Warn("youtube api key not configured, skipping fetch", "topic", topic)
		return nil
	}

	posts, err := ys.search(ctx, topic)
	if err != nil {
		ys.log.Error("youtube fetch failed", "topic", topic, "error", err)
		return nil
	}
	return posts
}

func (ys *YouTubeSource) search(ctx context.Context, topic string) ([]feed.Post, error) {
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("q", topic)
	q.Set("type", "video")
	q.Set("key", ys.apiKey)
	q.Set("maxResults", fmt.Sprintf("%d", youtubeMaxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ys.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := ys.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", topic, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search %q: status %d", topic, resp.StatusCode)
	}

	var result youtubeSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode search %q: %w", topic, err)
	}

	return ys.postsFromSearch(result, topic), nil
}

// postsFromSearch converts search items to canonical posts. Non-video items
// and items without a videoId are skipped individually.
func (ys *YouTubeSource) postsFromSearch(result youtubeSearchResponse, topic string) []feed.Post {
	now := time.Now().UTC()

	var posts []feed.Post
	for _, item := range result.Items {
		if item.ID.Kind != youtubeVideoKind || item.ID.VideoID == "" {
			ys.log.Warn("skipping non-video search item", "topic", topic, "kind", item.ID.Kind)
			continue
		}

		sn := item.Snippet

		title := sn.Title
		if title == "" {
			title = "Untitled"
		}
		author := sn.ChannelTitle
		if author == "" {
			author = "Unknown Channel"
		}

		postedAt := now
		if sn.PublishedAt != "" {
			ts, err := time.Parse(time.RFC3339, sn.PublishedAt)
			if err != nil {
				ys.log.Warn("unparsable publishedAt, using fetch time",
					"video_id", item.ID.VideoID, "published_at", sn.PublishedAt)
			} else {
				postedAt = ts.UTC()
			}
		} else {
			ys.log.Warn("missing publishedAt, using fetch time", "video_id", item.ID.VideoID)
		}

		posts = append(posts, feed.Post{
			Link:        youtubeWatchBaseURL + item.ID.VideoID,
			Title:       title,
			Description: feed.TruncateDescription(sn.Description),
			Author:      author,
			MediaURL:    sn.thumbnailURL(),
			Platform:    feed.PlatformYouTube,
			VideoID:     item.ID.VideoID,
			PostedAt:    postedAt,
			FetchedAt:   now,
		})
	}
	return posts
}

type youtubeSearchResponse struct {
	Items []youtubeSearchItem `json:"items"`
}

type youtubeSearchItem struct {
	ID      youtubeItemID  `json:"id"`
	Snippet youtubeSnippet `json:"snippet"`
}

type youtubeItemID struct {
	Kind    string `json:"kind"`
	VideoID string `json:"videoId"`
}

type youtubeSnippet struct {
	Title        string                      `json:"title"`
	Description  string                      `json:"description"`
	ChannelTitle string                      `json:"channelTitle"`
	Thumbnails   map[string]youtubeThumbnail `json:"thumbnails"`
	PublishedAt  string                      `json:"publishedAt"`
}

type youtubeThumbnail struct {
	URL string `json:"url"`
}

// thumbnailURL prefers the medium thumbnail and falls back to default.
func (sn youtubeSnippet) thumbnailURL() string {
	if t, ok := sn.Thumbnails["medium"]; ok && t.URL != "" {
		return t.URL
	}
	if t, ok := sn.Thumbnails["default"]; ok {
		return t.URL
	}
	return ""
}
