package cli

import (
	"strings"
	"testing"
	"time"

	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/domain"
)

func TestDescribeNewQuestion(t *testing.T) {
	q := &domain.Question{ID: 1, Text: "2+2?", Options: []string{"3", "4"}, CorrectOptionIndex: 1}
	cur := app.SessionState{Phase: app.PhaseQuestionActive, Question: q, CurrentIndex: 0, TotalQuestions: 3, TimeLeft: 20, SelectedIndex: app.NoSelection}

	lines := describe(app.SessionState{SelectedIndex: app.NoSelection}, cur, time.Now())
	if len(lines) != 4 {
		t.Fatalf("expected header, text and two options, got %q", lines)
	}
	if lines[0] != "Question 1/3  (20s)" || lines[3] != "  2) 4" {
		t.Fatalf("unexpected lines %q", lines)
	}

	// same question again prints nothing
	if again := describe(cur, cur, time.Now()); len(again) != 0 {
		t.Fatalf("expected no output, got %q", again)
	}
}

func TestDescribeLockedOutcome(t *testing.T) {
	q := &domain.Question{ID: 1, Text: "2+2?", Options: []string{"3", "4"}, CorrectOptionIndex: 1}
	active := app.SessionState{Phase: app.PhaseQuestionActive, Question: q, SelectedIndex: app.NoSelection}
	locked := active
	locked.Phase = app.PhaseAnswerLocked
	locked.SelectedIndex = 0

	lines := describe(active, locked, time.Now())
	if len(lines) != 1 || lines[0] != "Locked option 1: wrong, answer was 2" {
		t.Fatalf("unexpected lines %q", lines)
	}

	timedOut := active
	timedOut.Phase = app.PhaseAnswerLocked
	timedOut.TimedOut = true
	if lines := describe(active, timedOut, time.Now()); len(lines) != 1 || lines[0] != "Time is up" {
		t.Fatalf("unexpected lines %q", lines)
	}
}

func TestDescribeWaitingAndNotice(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	start := now.Add(90 * time.Second)
	cur := app.SessionState{Phase: app.PhaseWaitingForStart, StartTime: &start, Notice: "Failed to load room", SelectedIndex: app.NoSelection}

	lines := describe(app.SessionState{SelectedIndex: app.NoSelection}, cur, now)
	if len(lines) != 2 {
		t.Fatalf("expected notice and waiting line, got %q", lines)
	}
	if lines[0] != "! Failed to load room" || !strings.HasSuffix(lines[1], "(1m 30s)") {
		t.Fatalf("unexpected lines %q", lines)
	}
}

func TestFormatRoomProgress(t *testing.T) {
	room := domain.Room{ID: 3, Title: "Capitals", Visibility: domain.VisibilityPublic, Status: domain.RoomStarted, ParticipantCount: 4}
	line := formatRoom(room, &domain.RoomProgress{RoomID: 3, Participated: true, Completed: true})
	if !strings.Contains(line, "public") || !strings.HasSuffix(line, "[completed]") {
		t.Fatalf("unexpected room line %q", line)
	}
	if line := formatRoom(room, nil); strings.Contains(line, "[") {
		t.Fatalf("no progress expected, got %q", line)
	}
}

func TestReadAnswersConvertsToIndexes(t *testing.T) {
	answers := make(chan int, 4)
	readAnswers(testContext(t), strings.NewReader("2\nnope\n 1 \n"), answers)
	close(answers)

	var got []int
	for idx := range answers {
		got = append(got, idx)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 0 {
		t.Fatalf("unexpected indexes %v", got)
	}
}

func TestFormatRowFallsBackToPosition(t *testing.T) {
	row := domain.LeaderboardRow{Username: "alice", Score: 30, CorrectCount: 3, AnsweredCount: 4}
	if line := formatRow(row, 2); !strings.HasPrefix(line, "  2. alice") {
		t.Fatalf("expected position rank, got %q", line)
	}
	row.Rank = 1
	if line := formatRow(row, 2); !strings.HasPrefix(line, "  1. alice") {
		t.Fatalf("expected server rank, got %q", line)
	}
}
