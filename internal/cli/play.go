package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/logging"
)

func newPlayCmd(opts *options) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "play <room-id>",
		Short: "Join a room and answer its questions",
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
			return play(ctx, e, roomID, password, cmd.InOrStdin(), cmd.OutOrStdout(), clockwork.NewRealClock())
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password for private rooms")
	return cmd
}

func play(ctx context.Context, e *engine, roomID int64, password string, in io.Reader, out io.Writer, clock clockwork.Clock) error {
	logger := logging.FromContext(ctx)
	lobby := e.lobby(ctx)

	// Public rooms are joined by the session itself.
	if info, err := e.api.RoomInfo(ctx, roomID); err == nil && !info.Room.IsPublic() {
		if _, err := lobby.Join(ctx, roomID, password); err != nil {
			if errors.Is(err, domain.ErrHostCannotJoin) || errors.Is(err, domain.ErrPasswordRequired) || errors.Is(err, domain.ErrUnauthorized) {
				return err
			}
			fmt.Fprintln(out, "! "+domain.UserMessage(err, "Failed to join room"))
		}
	}

	// The hook runs on the session goroutine, so the fetch happens off it.
	standings := make(chan standingsResult, 1)
	ctrl := e.controller(ctx, func(t app.Transition) {
		logger.Debugw("phase changed", "room_id", t.RoomID, "from", t.From, "to", t.To, "index", t.Index)
		if t.To != app.PhaseFinished {
			return
		}
		go func() {
			rows, err := e.api.Leaderboard(ctx, domain.LeaderboardScope{RoomID: t.RoomID})
			select {
			case standings <- standingsResult{rows: rows, err: err}:
			default:
			}
		}()
	})
	if err := ctrl.Start(ctx, roomID); err != nil {
		return err
	}
	defer ctrl.Stop()

	states, cancel := ctrl.Subscribe()
	defer cancel()
	finished := ctrl.Finished()

	waitCtx, stopWaiting := context.WithCancel(ctx)
	defer stopWaiting()
	counts := make(chan int, 1)
	go func() {
		_ = lobby.WatchParticipants(waitCtx, roomID, func(ps []domain.Participant) {
			select {
			case counts <- len(ps):
			case <-waitCtx.Done():
			}
		})
	}()

	answers := make(chan int)
	go readAnswers(ctx, in, answers)

	ticker := clock.NewTicker(time.Second)
	defer ticker.Stop()

	var prev app.SessionState
	lastCount := -1
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-finished:
			for _, line := range describe(prev, ctrl.State(), clock.Now()) {
				fmt.Fprintln(out, line)
			}
			select {
			case res := <-standings:
				printStandings(out, res)
			case <-ctx.Done():
			}
			return nil
		case st := <-states:
			for _, line := range describe(prev, st, clock.Now()) {
				fmt.Fprintln(out, line)
			}
			if st.Phase != app.PhaseIdle && st.Phase != app.PhaseWaitingForStart {
				stopWaiting()
			}
			prev = st
		case n := <-counts:
			if n != lastCount {
				fmt.Fprintf(out, "%d participants in the room\n", n)
				lastCount = n
			}
		case <-ticker.Chan():
			if prev.Phase == app.PhaseWaitingForStart && prev.StartTime != nil {
				fmt.Fprintf(out, "\rStarts in %s   ", app.FormatCountdown(*prev.StartTime, clock.Now()))
			}
		case idx := <-answers:
			if err := ctrl.Answer(ctx, idx); err != nil {
				fmt.Fprintln(out, "! "+answerError(err))
			}
		}
	}
}

type standingsResult struct {
	rows []domain.LeaderboardRow
	err  error
}

func printStandings(out io.Writer, res standingsResult) {
	if res.err != nil {
		fmt.Fprintln(out, "! "+domain.UserMessage(res.err, "Could not load the leaderboard"))
		return
	}
	fmt.Fprintln(out, "Room leaderboard")
	for i, row := range res.rows {
		fmt.Fprintln(out, formatRow(row, i+1))
	}
}

// readAnswers turns 1-based option numbers typed on in into 0-based indexes.
func readAnswers(ctx context.Context, in io.Reader, answers chan<- int) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		n, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err != nil {
			continue
		}
		select {
		case answers <- n - 1:
		case <-ctx.Done():
			return
		}
	}
}

func answerError(err error) string {
	switch {
	case errors.Is(err, domain.ErrAnswerLocked):
		return "You already answered this question"
	case errors.Is(err, domain.ErrInvalidOption):
		return "No such option"
	case errors.Is(err, domain.ErrNoActiveQuestion):
		return "No question is open right now"
	default:
		return domain.UserMessage(err, "Could not submit answer")
	}
}
