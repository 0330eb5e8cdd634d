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

	"golang.org/x/time/rate"

	"github.com/feedfusion/feedfusion/internal/feed"
)

const (
	redditDefaultBaseURL = "https://oauth.reddit.com"
	redditLinkBaseURL    = "https://www.reddit.com"
	redditTimeout        = 30 * time.Second
	redditFetchLimit     = 20
	redditRateLimit      = 1 * time.Second
)

// RedditSource fetches the hot listing for a topic from the
// link-aggregation API using a bearer token from the token cache.
type RedditSource struct {
	tokens    TokenProvider
	client    *http.Client
	limiter   *rate.Limiter
	baseURL   string
	userAgent string
	log       *slog.Logger
}

// NewReddit creates the adapter. userAgent is mandatory for this upstream.
func NewReddit(tokens TokenProvider, baseURL, userAgent string, log *slog.Logger) *RedditSource {
	if baseURL == "" {
		baseURL = redditDefaultBaseURL
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedditSource{
		tokens:    tokens,
		client:    &http.Client{Timeout: redditTimeout},
		limiter:   rate.NewLimiter(rate.Every(redditRateLimit), 1),
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		log:       log,
	}
}

func (rs *RedditSource) Platform() feed.Platform {
	return feed.PlatformReddit
}

// Fetch returns the hot posts for topic. All failures are logged and
// reported as an empty result.
func (rs *RedditSource) Fetch(ctx context.Context, topic string) []feed.Post {
	posts, err := rs.fetchHot(ctx, topic)
	if err != nil {
		rs.log.Error("reddit fetch failed", "topic", topic, "error", err)
		return nil
	}
	return posts
}

func (rs *RedditSource) fetchHot(ctx context.Context, topic string) ([]feed.Post, error) {
	if err := rs.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	token, err := rs.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("bearer token: %w", err)
	}

	reqURL := fmt.Sprintf("%s/r/%s/hot.json?limit=%d", rs.baseURL, url.PathEscape(topic), redditFetchLimit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", rs.userAgent)

	resp, err := rs.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch r/%s: %w", topic, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("r/%s: status %d", topic, resp.StatusCode)
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode r/%s: %w", topic, err)
	}

	return rs.postsFromListing(listing, topic), nil
}

// postsFromListing converts the listing to canonical posts. Items missing a
// title, permalink, or author are skipped individually; one bad item never
// fails the batch.
func (rs *RedditSource) postsFromListing(listing redditListing, topic string) []feed.Post {
	now := time.Now().UTC()

	var posts []feed.Post
	for _, child := range listing.Data.Children {
		item := child.Data
		if item.Title == "" || item.Permalink == "" || item.Author == "" {
			rs.log.Warn("skipping reddit item with missing fields", "topic", topic, "id", item.ID)
			continue
		}

		postedAt := now
		if item.CreatedUTC > 0 {
			postedAt = time.Unix(int64(item.CreatedUTC), 0).UTC()
		} else {
			rs.log.Warn("reddit item has no usable created_utc, using fetch time", "id", item.ID)
		}

		mediaURL := ""
		if strings.HasPrefix(item.Thumbnail, "http") {
			mediaURL = item.Thumbnail
		}

		posts = append(posts, feed.Post{
			Link:        redditLinkBaseURL + item.Permalink,
			Title:       item.Title,
			Description: feed.TruncateDescription(item.Selftext),
			Author:      item.Author,
			MediaURL:    mediaURL,
			Platform:    feed.PlatformReddit,
			PostedAt:    postedAt,
			FetchedAt:   now,
		})
	}
	return posts
}

type redditListing struct {
	Data struct {
		Children []redditChild `json:"children"`
	} `json:"data"`
}

type redditChild struct {
	Data redditItem `json:"data"`
}

type redditItem struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Author     string  `json:"author"`
	Selftext   string  `json:"selftext"`
	Thumbnail  string  `json:"thumbnail"`
	Permalink  string  `json:"permalink"`
	CreatedUTC float64 `json:"created_utc"`
}
