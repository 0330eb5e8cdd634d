package feed

import "context"

// Source fetches posts for one upstream platform.
//
// Fetch never fails: upstream outages, auth trouble, and malformed payloads
// are handled inside the adapter and reported as an empty result for that
// topic, so one broken source degrades coverage without failing the caller.
type Source interface {
	Platform() Platform
	Fetch(ctx context.Context, topic string) []Post
}

// Store persists posts keyed by link. Save is an upsert on the natural key,
// never a blind insert. All reads return posts ordered by posted_at
// descending.
type Store interface {
	Save(ctx context.Context, p Post) error
	FindByLink(ctx context.Context, link string) (*Post, error)
	FindAllByLinks(ctx context.Context, links []string) ([]Post, error)
	FindAll(ctx context.Context) ([]Post, error)
	FindByPlatform(ctx context.Context, platform Platform) ([]Post, error)
	FindByKeyword(ctx context.Context, keyword string) ([]Post, error)
	FindByPlatformAndKeyword(ctx context.Context, platform Platform, keyword string) ([]Post, error)
}
