package cli

import (
	"fmt"
	"strings"
	"time"

	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/domain"
)

func formatRoom(room domain.Room, progress *domain.RoomProgress) string {
	visibility := "private"
	if room.IsPublic() {
		visibility = "public"
	}
	line := fmt.Sprintf("#%d  %-30s %-8s %-8s %d joined", room.ID, room.Title, visibility, room.Status, room.ParticipantCount)
	if room.Code != "" {
		line += "  code " + room.Code
	}
	switch {
	case progress == nil:
	case progress.Completed:
		line += "  [completed]"
	case progress.Participated:
		line += "  [in progress]"
	}
	return line
}

// formatRow prints the server's rank, or the row's list position when none was sent.
func formatRow(row domain.LeaderboardRow, position int) string {
	rank := row.Rank
	if rank <= 0 {
		rank = position
	}
	return fmt.Sprintf("%3d. %-20s %6d  (%d/%d correct)", rank, row.Username, row.Score, row.CorrectCount, row.AnsweredCount)
}

// describe returns the lines to print for the move from prev to cur.
func describe(prev, cur app.SessionState, now time.Time) []string {
	var lines []string
	if cur.Notice != "" && cur.Notice != prev.Notice {
		lines = append(lines, "! "+cur.Notice)
	}

	switch cur.Phase {
	case app.PhaseWaitingForStart:
		if prev.Phase != app.PhaseWaitingForStart {
			line := "Waiting for the host to start the quiz"
			if cur.StartTime != nil {
				line += " (" + app.FormatCountdown(*cur.StartTime, now) + ")"
			}
			lines = append(lines, line)
		}
	case app.PhaseQuestionActive:
		if cur.Question == nil {
			break
		}
		if prev.Question == nil || prev.Question.ID != cur.Question.ID || prev.Phase != app.PhaseQuestionActive {
			lines = append(lines, formatQuestion(cur)...)
		}
	case app.PhaseAnswerLocked:
		if prev.Phase == app.PhaseAnswerLocked && prev.SelectedIndex == cur.SelectedIndex && prev.TimedOut == cur.TimedOut {
			break
		}
		if cur.Question != nil && (prev.Question == nil || prev.Question.ID != cur.Question.ID) {
			lines = append(lines, formatQuestion(cur)...)
		}
		lines = append(lines, lockedLine(cur))
	case app.PhaseFinished:
		if prev.Phase != app.PhaseFinished {
			lines = append(lines, "Quiz finished. Thanks for playing!")
		}
	}
	return lines
}

func formatQuestion(st app.SessionState) []string {
	q := st.Question
	header := fmt.Sprintf("Question %d", st.CurrentIndex+1)
	if st.TotalQuestions > 0 {
		header += fmt.Sprintf("/%d", st.TotalQuestions)
	}
	if st.TimeLeft > 0 {
		header += fmt.Sprintf("  (%ds)", st.TimeLeft)
	}
	lines := []string{header, "  " + q.Text}
	if q.ImageURL != "" {
		lines = append(lines, "  image: "+q.ImageURL)
	}
	for i, opt := range q.Options {
		lines = append(lines, fmt.Sprintf("  %d) %s", i+1, opt))
	}
	return lines
}

func lockedLine(st app.SessionState) string {
	if !st.HasSelection() {
		if st.TimedOut {
			return "Time is up"
		}
		return "Answer locked"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Locked option %d", st.SelectedIndex+1)
	if st.Provisional {
		b.WriteString(" (saved locally)")
	}
	if correct, ok := st.Outcome(); ok {
		if correct {
			b.WriteString(": correct")
		} else {
			fmt.Fprintf(&b, ": wrong, answer was %d", st.Question.CorrectOptionIndex+1)
		}
	}
	return b.String()
}
