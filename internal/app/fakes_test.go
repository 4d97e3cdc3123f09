package app_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/domain"
)

type fakeAPI struct {
	mu sync.Mutex

	rooms        []domain.Room
	info         map[int64]domain.RoomInfo
	infoErr      error
	questions    map[int64][]domain.Question
	answered     map[int64][]int64
	answeredGate chan struct{}
	submitErr    error
	joinErr      error
	leaveErr     error
	participants []domain.Participant
	leaderboard  []domain.LeaderboardRow
	boardGate    chan struct{}
	status       []domain.RoomProgress

	submissions      []domain.AnswerSubmission
	joins            []string
	leaves           []int64
	participantCalls int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		info:      make(map[int64]domain.RoomInfo),
		questions: make(map[int64][]domain.Question),
		answered:  make(map[int64][]int64),
	}
}

func (f *fakeAPI) ListRooms(context.Context) ([]domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Room(nil), f.rooms...), nil
}

func (f *fakeAPI) RoomInfo(_ context.Context, roomID int64) (domain.RoomInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.infoErr != nil {
		return domain.RoomInfo{}, f.infoErr
	}
	info, ok := f.info[roomID]
	if !ok {
		return domain.RoomInfo{}, domain.ErrRoomNotFound
	}
	return info, nil
}

func (f *fakeAPI) JoinRoom(_ context.Context, roomID int64, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, joinKey(roomID, password))
	return f.joinErr
}

func (f *fakeAPI) LeaveRoom(_ context.Context, roomID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.leaveErr != nil {
		return f.leaveErr
	}
	f.leaves = append(f.leaves, roomID)
	return nil
}

func (f *fakeAPI) Participants(context.Context, int64) ([]domain.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.participantCalls++
	return append([]domain.Participant(nil), f.participants...), nil
}

func (f *fakeAPI) Questions(_ context.Context, roomID int64) ([]domain.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Question(nil), f.questions[roomID]...), nil
}

func (f *fakeAPI) AnsweredQuestionIDs(ctx context.Context, roomID int64) ([]int64, error) {
	f.mu.Lock()
	gate := f.answeredGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.answered[roomID]...), nil
}

func (f *fakeAPI) SubmitAnswer(_ context.Context, submission domain.AnswerSubmission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions = append(f.submissions, submission)
	if f.submitErr != nil {
		return f.submitErr
	}
	f.answered[submission.RoomID] = append(f.answered[submission.RoomID], submission.QuestionID)
	return nil
}

func (f *fakeAPI) Leaderboard(ctx context.Context, _ domain.LeaderboardScope) ([]domain.LeaderboardRow, error) {
	f.mu.Lock()
	gate := f.boardGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.LeaderboardRow(nil), f.leaderboard...), nil
}

func (f *fakeAPI) MyScore(context.Context) (domain.ScoreSummary, error) {
	return domain.ScoreSummary{Total: 10, Correct: 1, Answered: 2}, nil
}

func (f *fakeAPI) MyStatus(context.Context, []int64) ([]domain.RoomProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.RoomProgress(nil), f.status...), nil
}

func (f *fakeAPI) submitted() []domain.AnswerSubmission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.AnswerSubmission(nil), f.submissions...)
}

func (f *fakeAPI) joined() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.joins...)
}

func joinKey(roomID int64, password string) string {
	return fmt.Sprintf("%d/%s", roomID, password)
}

// fakeTransport hands out one buffered channel per stream. Cancel is counted and does not
// close the channel so tests can keep sending.
type fakeTransport struct {
	mu       sync.Mutex
	rooms    chan []domain.PartialRoom
	games    map[int64]chan domain.GameEvent
	boards   chan []domain.LeaderboardRow
	opened   map[int64]int
	canceled map[int64]int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		rooms:    make(chan []domain.PartialRoom, 16),
		games:    make(map[int64]chan domain.GameEvent),
		boards:   make(chan []domain.LeaderboardRow, 16),
		opened:   make(map[int64]int),
		canceled: make(map[int64]int),
	}
}

func (f *fakeTransport) SubscribeRooms(context.Context) (<-chan []domain.PartialRoom, func(), error) {
	return f.rooms, func() {}, nil
}

func (f *fakeTransport) SubscribeGame(_ context.Context, roomID int64) (<-chan domain.GameEvent, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened[roomID]++
	return f.gameLocked(roomID), func() {
		f.mu.Lock()
		f.canceled[roomID]++
		f.mu.Unlock()
	}, nil
}

func (f *fakeTransport) SubscribeLeaderboard(context.Context, domain.LeaderboardScope) (<-chan []domain.LeaderboardRow, func(), error) {
	return f.boards, func() {}, nil
}

func (f *fakeTransport) push(roomID int64, ev domain.GameEvent) {
	f.mu.Lock()
	ch := f.gameLocked(roomID)
	f.mu.Unlock()
	ch <- ev
}

func (f *fakeTransport) gameLocked(roomID int64) chan domain.GameEvent {
	ch, ok := f.games[roomID]
	if !ok {
		ch = make(chan domain.GameEvent, 16)
		f.games[roomID] = ch
	}
	return ch
}

func (f *fakeTransport) canceledFor(roomID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canceled[roomID]
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitState(t *testing.T, c *app.Controller, what string, cond func(app.SessionState) bool) app.SessionState {
	t.Helper()
	var st app.SessionState
	waitFor(t, what, func() bool {
		st = c.State()
		return cond(st)
	})
	return st
}

func question(id int64, options ...string) *domain.Question {
	if len(options) == 0 {
		options = []string{"a", "b", "c", "d"}
	}
	return &domain.Question{ID: id, Text: "question", Options: options, CorrectOptionIndex: 0}
}
