package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/feedfusion/feedfusion/internal/config"
	"github.com/feedfusion/feedfusion/internal/feed"
)

var (
	feedPlatform  string
	feedKeyword   string
	feedInterests []string
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Fetch fresh posts, then print the stored feed filtered by platform and keyword",
	RunE:  feedAction,
}

func init() {
	feedCmd.Flags().StringVar(&feedPlatform, "platform", "", "filter by platform: reddit or youtube")
	feedCmd.Flags().StringVar(&feedKeyword, "keyword", "", "filter by keyword in title or description")
	feedCmd.Flags().StringSliceVar(&feedInterests, "interests", nil, "topics to fetch first (default: feed.interests from config)")
	rootCmd.AddCommand(feedCmd)
}

func feedAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	interests := feedInterests
	if len(interests) == 0 {
		interests = cfg.Feed.Interests
	}

	svc, db, err := buildService(cfg, newLogger())
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Feed.FetchTimeout.Duration)
	defer cancel()

	posts := svc.FilteredFeed(ctx, feed.Query{
		Platform:  feedPlatform,
		Keyword:   feedKeyword,
		Interests: interests,
	})

	printPosts(posts)
	return nil
}

func printPosts(posts []feed.Post) {
	if len(posts) == 0 {
		fmt.Println("No posts.")
		return
	}
	for _, p := range posts {
		fmt.Printf("[%s] %s  %s\n", p.Platform, p.PostedAt.Format("2006-01-02 15:04"), p.Title)
		fmt.Printf("    by %s  %s\n", p.Author, p.Link)
	}
	fmt.Printf("%d posts\n", len(posts))
}
