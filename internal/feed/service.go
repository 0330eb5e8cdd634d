package feed

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

const (
	maxConcurrentFetches  = 4
	maxConcurrentPersists = 4
)

// Service aggregates posts from all configured sources into the store and
// serves the merged, filtered feed.
type Service struct {
	sources []Source
	store   Store
	log     *slog.Logger
}

// NewService creates the aggregation service. A nil logger falls back to
// slog.Default().
func NewService(store Store, sources []Source, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{sources: sources, store: store, log: log}
}

// FilteredFeed fetches fresh posts for the given interests, persists the new
// ones, then returns the full stored feed filtered by platform and keyword,
// newest first. The fetch phase is skipped entirely when no interests are
// given; the read always covers the whole store, not just this fetch.
//
// FilteredFeed never fails: a store read error is logged and yields an
// empty feed.
func (s *Service) FilteredFeed(ctx context.Context, q Query) []Post {
	if len(q.Interests) > 0 {
		fetched, saved := s.Pull(ctx, q.Interests)
		s.log.Info("pull finished", "fetched", fetched, "saved", saved)
	}

	posts, err := s.store.FindAll(ctx)
	if err != nil {
		s.log.Error("read feed from store", "error", err)
		return nil
	}
	return Filter(posts, q.Platform, q.Keyword)
}

// Pull runs the fetch-and-persist phase for the given interests and reports
// how many posts were fetched and how many were newly saved.
func (s *Service) Pull(ctx context.Context, interests []string) (fetched, saved int) {
	if len(interests) == 0 {
		return 0, 0
	}
	batch := s.fetchAll(ctx, interests)
	return len(batch), s.persistNew(ctx, batch)
}

// fetchAll fans out to every source for every interest and collects the
// merged batch. Order across sources and interests is not guaranteed.
func (s *Service) fetchAll(ctx context.Context, interests []string) []Post {
	var (
		mu    sync.Mutex
		batch []Post
	)

	g := new(errgroup.Group)
	g.SetLimit(maxConcurrentFetches)

	for _, topic := range interests {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		for _, src := range s.sources {
			g.Go(func() error {
				posts := src.Fetch(ctx, topic)
				if len(posts) == 0 {
					return nil
				}
				mu.Lock()
				batch = append(batch, posts...)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	return batch
}

// persistNew upserts the batch, skipping links the store already knows. A
// failed save is logged and skipped so one bad item never aborts the rest.
func (s *Service) persistNew(ctx context.Context, batch []Post) int {
	if len(batch) == 0 {
		return 0
	}

	links := make([]string, 0, len(batch))
	for _, p := range batch {
		links = append(links, p.Link)
	}

	known := make(map[string]bool, len(links))
	existing, err := s.store.FindAllByLinks(ctx, links)
	if err != nil {
		// The upsert is idempotent either way; a failed lookup only costs
		// redundant writes.
		s.log.Warn("known-link lookup failed, persisting full batch", "error", err)
	}
	for _, p := range existing {
		known[p.Link] = true
	}

	var saved atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(maxConcurrentPersists)

	seen := make(map[string]bool, len(batch))
	for _, p := range batch {
		if p.Link == "" || known[p.Link] || seen[p.Link] {
			continue
		}
		seen[p.Link] = true
		g.Go(func() error {
			if err := s.store.Save(ctx, p); err != nil {
				s.log.Error("save post", "link", p.Link, "error", err)
				return nil
			}
			saved.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return int(saved.Load())
}

// Filter applies the optional platform and keyword predicates, both
// case-insensitive. An unset predicate always passes; the literal platform
// "all" counts as unset. The keyword matches as a substring of the title or
// the description.
func Filter(posts []Post, platform, keyword string) []Post {
	platform = strings.TrimSpace(platform)
	if strings.EqualFold(platform, "all") {
		platform = ""
	}
	keyword = strings.ToLower(strings.TrimSpace(keyword))

	if platform == "" && keyword == "" {
		return posts
	}

	var out []Post
	for _, p := range posts {
		if platform != "" && !strings.EqualFold(string(p.Platform), platform) {
			continue
		}
		if keyword != "" &&
			!strings.Contains(strings.ToLower(p.Title), keyword) &&
			!strings.Contains(strings.ToLower(p.Description), keyword) {
			continue
		}
		out = append(out, p)
	}
	return out
}
