// Package store persists canonical posts in a local sqlite database keyed
// by link.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/feedfusion/feedfusion/internal/feed"
)

// Store is the sqlite-backed content store. It satisfies feed.Store.
type Store struct {
	db *sql.DB
}

var _ feed.Store = (*Store)(nil)

// Open creates or opens the database at path, creating parent directories
// and applying migrations as needed.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := migrate(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save upserts a post on its link: an existing row is overwritten with the
// latest field values, a new link inserts a row. Two saves of the same link
// leave exactly one record.
func (s *Store) Save(ctx context.Context, p feed.Post) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if strings.TrimSpace(p.Link) == "" {
		return errors.New("link is required")
	}
	if strings.TrimSpace(p.Title) == "" {
		return errors.New("title is required")
	}
	if p.Platform == "" {
		return errors.New("platform is required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (
			link, title, description, author, media_url, platform, video_id, posted_at, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(link) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			author = excluded.author,
			media_url = excluded.media_url,
			platform = excluded.platform,
			video_id = excluded.video_id,
			posted_at = excluded.posted_at,
			fetched_at = excluded.fetched_at
	`,
		p.Link,
		p.Title,
		p.Description,
		p.Author,
		nullable(p.MediaURL),
		string(p.Platform),
		nullable(p.VideoID),
		formatTime(p.PostedAt),
		formatTime(p.FetchedAt),
	)
	if err != nil {
		return fmt.Errorf("save post: %w", err)
	}
	return nil
}

// FindByLink returns the post with the given link, or nil when absent.
func (s *Store) FindByLink(ctx context.Context, link string) (*feed.Post, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}

	row := s.db.QueryRowContext(ctx, selectPosts+" WHERE link = ?", link)
	post, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// FindAllByLinks returns the stored posts whose link is in the given set.
// Links the store does not know are simply absent from the result.
func (s *Store) FindAllByLinks(ctx context.Context, links []string) ([]feed.Post, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if len(links) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(links))
	args := make([]any, len(links))
	for i, link := range links {
		placeholders[i] = "?"
		args[i] = link
	}

	query := fmt.Sprintf("%s WHERE link IN (%s) ORDER BY posted_at DESC",
		selectPosts, strings.Join(placeholders, ","))
	return s.queryPosts(ctx, query, args...)
}

// FindAll returns every stored post, newest first.
func (s *Store) FindAll(ctx context.Context) ([]feed.Post, error) {
	return s.queryPosts(ctx, selectPosts+" ORDER BY posted_at DESC")
}

// FindByPlatform returns posts for one platform, newest first.
func (s *Store) FindByPlatform(ctx context.Context, platform feed.Platform) ([]feed.Post, error) {
	return s.queryPosts(ctx,
		selectPosts+" WHERE platform = ? ORDER BY posted_at DESC",
		strings.ToLower(string(platform)))
}

// FindByKeyword returns posts whose title or description contains the
// keyword, case-insensitively, newest first.
func (s *Store) FindByKeyword(ctx context.Context, keyword string) ([]feed.Post, error) {
	pattern := likePattern(keyword)
	return s.queryPosts(ctx,
		selectPosts+" WHERE (lower(title) LIKE ? OR lower(description) LIKE ?) ORDER BY posted_at DESC",
		pattern, pattern)
}

// FindByPlatformAndKeyword combines both filters, newest first.
func (s *Store) FindByPlatformAndKeyword(ctx context.Context, platform feed.Platform, keyword string) ([]feed.Post, error) {
	pattern := likePattern(keyword)
	return s.queryPosts(ctx,
		selectPosts+" WHERE platform = ? AND (lower(title) LIKE ? OR lower(description) LIKE ?) ORDER BY posted_at DESC",
		strings.ToLower(string(platform)), pattern, pattern)
}

const selectPosts = `
	SELECT link, title, description, author, media_url, platform, video_id, posted_at, fetched_at
	FROM posts`

func (s *Store) queryPosts(ctx context.Context, query string, args ...any) ([]feed.Post, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var posts []feed.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}

	return posts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(scanner rowScanner) (feed.Post, error) {
	var (
		post                feed.Post
		mediaVal, videoVal  sql.NullString
		platform            string
		postedAt, fetchedAt string
	)

	if err := scanner.Scan(
		&post.Link,
		&post.Title,
		&post.Description,
		&post.Author,
		&mediaVal,
		&platform,
		&videoVal,
		&postedAt,
		&fetchedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return feed.Post{}, err
		}
		return feed.Post{}, fmt.Errorf("scan post: %w", err)
	}

	post.Platform = feed.Platform(platform)
	if mediaVal.Valid {
		post.MediaURL = mediaVal.String
	}
	if videoVal.Valid {
		post.VideoID = videoVal.String
	}

	var err error
	post.PostedAt, err = parseTime(postedAt)
	if err != nil {
		return feed.Post{}, fmt.Errorf("parse posted_at: %w", err)
	}
	post.FetchedAt, err = parseTime(fetchedAt)
	if err != nil {
		return feed.Post{}, fmt.Errorf("parse fetched_at: %w", err)
	}

	return post, nil
}

func nullable(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func likePattern(keyword string) string {
	return "%" + strings.ToLower(strings.TrimSpace(keyword)) + "%"
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}
