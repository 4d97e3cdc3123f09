package app

import (
	"time"

	"quiz-session-engine/internal/domain"
)

// Phase is a SessionController state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseWaitingForStart
	PhaseQuestionActive
	PhaseAnswerLocked
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseWaitingForStart:
		return "waiting_for_start"
	case PhaseQuestionActive:
		return "question_active"
	case PhaseAnswerLocked:
		return "answer_locked"
	case PhaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Mode is how question progression is driven.
type Mode int

const (
	// ModeSynchronized follows server-pushed game state (private rooms).
	ModeSynchronized Mode = iota
	// ModeSelfPaced computes the next unanswered question locally (public rooms).
	ModeSelfPaced
)

func (m Mode) String() string {
	if m == ModeSelfPaced {
		return "self_paced"
	}
	return "synchronized"
}

// NoSelection is SessionState.SelectedIndex when no option is locked.
const NoSelection = -1

// SessionState is the read-only view the controller exposes. Consumers get copies.
type SessionState struct {
	RoomID         int64
	Phase          Phase
	Mode           Mode
	Question       *domain.Question
	CurrentIndex   int
	TotalQuestions int
	// TimeLeft is in seconds and never negative.
	TimeLeft      int
	SelectedIndex int
	// Provisional marks a selection restored from local storage and not yet confirmed by the server.
	Provisional bool
	// TimedOut marks a synchronized question locked because the display countdown reached zero.
	TimedOut  bool
	StartTime *time.Time
	Finished  bool
	// Notice is the latest transient, user-visible failure message.
	Notice string
}

// HasSelection reports whether an option is locked for the current question.
func (s SessionState) HasSelection() bool {
	return s.SelectedIndex != NoSelection
}

// Outcome reports whether the locked selection is correct. ok is false when there is
// nothing to score.
func (s SessionState) Outcome() (correct bool, ok bool) {
	if s.Question == nil || !s.HasSelection() || s.Question.CorrectOptionIndex < 0 {
		return false, false
	}
	return s.SelectedIndex == s.Question.CorrectOptionIndex, true
}

// Transition is reported to the transition hook on every phase change.
type Transition struct {
	RoomID int64
	From   Phase
	To     Phase
	Index  int
}

// IsUnlock reports whether the transition re-opened answer selection.
func (t Transition) IsUnlock() bool {
	return t.From == PhaseAnswerLocked && t.To == PhaseQuestionActive
}
