package cli

import (
	"fmt"
	"log/slog"

	"github.com/feedfusion/feedfusion/internal/auth"
	"github.com/feedfusion/feedfusion/internal/config"
	"github.com/feedfusion/feedfusion/internal/feed"
	"github.com/feedfusion/feedfusion/internal/source"
	"github.com/feedfusion/feedfusion/internal/store"
)

// buildService wires the store, token cache, and both adapters into the
// aggregation service. The caller must Close the returned store.
func buildService(cfg *config.Config, log *slog.Logger) (*feed.Service, *store.Store, error) {
	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	tokens := auth.NewTokenCache(auth.Config{
		TokenURL:     cfg.Reddit.TokenURL,
		ClientID:     cfg.Reddit.ClientID,
		ClientSecret: cfg.Reddit.ClientSecret,
		Username:     cfg.Reddit.Username,
		Password:     cfg.Reddit.Password,
		UserAgent:    cfg.Reddit.UserAgent,
	}, log)

	sources := []feed.Source{
		source.NewReddit(tokens, cfg.Reddit.BaseURL, cfg.Reddit.UserAgent, log),
		source.NewYouTube(cfg.YouTube.APIKey, cfg.YouTube.BaseURL, log),
	}

	return feed.NewService(db, sources, log), db, nil
}
