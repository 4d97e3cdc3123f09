package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newScoreCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "score",
		Short: "Show your total score",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := newEngine(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer e.Close()

			score, err := e.api.MyScore(ctx)
			if err != nil {
				return fmt.Errorf("load score: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d points, %d/%d correct\n",
				e.identity.Username, score.Total, score.Correct, score.Answered)
			return nil
		},
	}
}
