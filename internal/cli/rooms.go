package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/logging"
)

func newRoomsCmd(opts *options) *cobra.Command {
	var (
		search string
		watch  bool
	)
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "List quiz rooms",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := newEngine(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer e.Close()

			lobby := e.lobby(ctx)
			rooms, err := lobby.Refresh(ctx)
			if err != nil {
				return err
			}
			if search != "" {
				rooms = e.rooms.Filter(search)
			}
			ids := make([]int64, 0, len(rooms))
			for _, r := range rooms {
				ids = append(ids, r.ID)
			}
			progress := map[int64]*domain.RoomProgress{}
			status, err := lobby.Status(ctx, ids)
			if err != nil {
				logging.FromContext(ctx).Warnw("load room status failed", "error", err)
			}
			for i := range status {
				progress[status[i].RoomID] = &status[i]
			}

			out := cmd.OutOrStdout()
			for _, r := range rooms {
				fmt.Fprintln(out, formatRoom(r, progress[r.ID]))
			}
			if !watch {
				return nil
			}

			updates, cancel := e.rooms.Subscribe()
			defer cancel()
			watchErr := make(chan error, 1)
			go func() { watchErr <- e.rooms.Watch(ctx, e.transport) }()

			<-updates // current list, already printed
			for {
				select {
				case err := <-watchErr:
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				case list := <-updates:
					if search != "" {
						list = e.rooms.Filter(search)
					}
					fmt.Fprintln(out, "--")
					for _, r := range list {
						fmt.Fprintln(out, formatRoom(r, progress[r.ID]))
					}
				}
			}
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "filter by title or room code")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep printing live room updates")
	return cmd
}
