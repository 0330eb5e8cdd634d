package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/feedfusion/feedfusion/internal/config"
)

var pullInterests []string

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Fetch posts for the configured interests and persist new ones",
	RunE:  pullAction,
}

func init() {
	pullCmd.Flags().StringSliceVar(&pullInterests, "interests", nil, "topics to fetch (default: feed.interests from config)")
	rootCmd.AddCommand(pullCmd)
}

func pullAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	interests := pullInterests
	if len(interests) == 0 {
		interests = cfg.Feed.Interests
	}
	if len(interests) == 0 {
		return fmt.Errorf("no interests given: set feed.interests in config.yaml or pass --interests")
	}

	svc, db, err := buildService(cfg, newLogger())
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Feed.FetchTimeout.Duration)
	defer cancel()

	fetched, saved := svc.Pull(ctx, interests)
	fmt.Printf("Fetched %d posts, saved %d new\n", fetched, saved)

	return nil
}
