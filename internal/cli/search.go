package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/feedfusion/feedfusion/internal/config"
	"github.com/feedfusion/feedfusion/internal/feed"
	"github.com/feedfusion/feedfusion/internal/store"
)

var (
	searchPlatform string
	searchKeyword  string
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Query the stored feed without fetching anything",
	RunE:  searchAction,
}

func init() {
	searchCmd.Flags().StringVar(&searchPlatform, "platform", "", "filter by platform: reddit or youtube")
	searchCmd.Flags().StringVar(&searchKeyword, "keyword", "", "filter by keyword in title or description")
	rootCmd.AddCommand(searchCmd)
}

func searchAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = db.Close() }()

	ctx := cmd.Context()

	platform := strings.ToLower(strings.TrimSpace(searchPlatform))
	if platform == "all" {
		platform = ""
	}
	keyword := strings.TrimSpace(searchKeyword)

	var posts []feed.Post
	switch {
	case platform != "" && keyword != "":
		posts, err = db.FindByPlatformAndKeyword(ctx, feed.Platform(platform), keyword)
	case platform != "":
		posts, err = db.FindByPlatform(ctx, feed.Platform(platform))
	case keyword != "":
		posts, err = db.FindByKeyword(ctx, keyword)
	default:
		posts, err = db.FindAll(ctx)
	}
	if err != nil {
		return fmt.Errorf("search posts: %w", err)
	}

	printPosts(posts)
	return nil
}
