package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newLeaveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "leave <room-id>",
		Short: "Leave a room you joined",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid room id %q", args[0])
			}
			ctx := cmd.Context()
			e, err := newEngine(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.lobby(ctx).Leave(ctx, roomID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Left room %d\n", roomID)
			return nil
		},
	}
}
