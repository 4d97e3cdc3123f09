package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/logging"
)

func newLeaderboardCmd(opts *options) *cobra.Command {
	var (
		roomID int64
		follow bool
	)
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the global or a room's leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := newEngine(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer e.Close()

			scope := domain.LeaderboardScope{RoomID: roomID}
			out := cmd.OutOrStdout()
			if !follow {
				rows, err := e.api.Leaderboard(ctx, scope)
				if err != nil {
					return fmt.Errorf("load leaderboard: %w", err)
				}
				for i, row := range rows {
					fmt.Fprintln(out, formatRow(row, i+1))
				}
				return nil
			}

			feed := app.NewLeaderboardFeed(e.api, e.transport, scope, logging.FromContext(ctx).Named("leaderboard"))
			snapshots, cancel := feed.Subscribe()
			defer cancel()
			runErr := make(chan error, 1)
			go func() { runErr <- feed.Run(ctx) }()

			<-snapshots // empty until the first fetch or push
			for {
				select {
				case err := <-runErr:
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				case rows := <-snapshots:
					fmt.Fprintln(out, "--")
					for i, row := range rows {
						fmt.Fprintln(out, formatRow(row, i+1))
					}
				}
			}
		},
	}
	cmd.Flags().Int64Var(&roomID, "room", 0, "room id (global leaderboard when omitted)")
	cmd.Flags().BoolVar(&follow, "follow", false, "keep printing live updates")
	return cmd
}
