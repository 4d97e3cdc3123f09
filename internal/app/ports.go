package app

import (
	"context"
	"fmt"

	"quiz-session-engine/internal/domain"
)

// API is the request/response collaborator. All calls carry the participant's token.
type API interface {
	ListRooms(ctx context.Context) ([]domain.Room, error)
	RoomInfo(ctx context.Context, roomID int64) (domain.RoomInfo, error)
	JoinRoom(ctx context.Context, roomID int64, password string) error
	LeaveRoom(ctx context.Context, roomID int64) error
	Participants(ctx context.Context, roomID int64) ([]domain.Participant, error)
	Questions(ctx context.Context, roomID int64) ([]domain.Question, error)
	AnsweredQuestionIDs(ctx context.Context, roomID int64) ([]int64, error)
	SubmitAnswer(ctx context.Context, submission domain.AnswerSubmission) error
	Leaderboard(ctx context.Context, scope domain.LeaderboardScope) ([]domain.LeaderboardRow, error)
	MyScore(ctx context.Context) (domain.ScoreSummary, error)
	MyStatus(ctx context.Context, roomIDs []int64) ([]domain.RoomProgress, error)
}

// QuestionSource loads a room's ordered question list (possibly through a cache).
type QuestionSource interface {
	Questions(ctx context.Context, roomID int64) ([]domain.Question, error)
}

// AnswerSink is the part of the API the submitter needs.
type AnswerSink interface {
	SubmitAnswer(ctx context.Context, submission domain.AnswerSubmission) error
}

// PushTransport delivers server-pushed snapshots. Every call opens an independent
// subscription; the returned cancel function tears it down and closes the channel.
type PushTransport interface {
	SubscribeRooms(ctx context.Context) (<-chan []domain.PartialRoom, func(), error)
	SubscribeGame(ctx context.Context, roomID int64) (<-chan domain.GameEvent, func(), error)
	SubscribeLeaderboard(ctx context.Context, scope domain.LeaderboardScope) (<-chan []domain.LeaderboardRow, func(), error)
}

// LocalStore is the durable key-value store that survives reloads. Get returns
// domain.ErrNotFound on a miss.
type LocalStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// StartTimeKey is the durable key for a room's cached start time.
func StartTimeKey(roomID int64) string {
	return fmt.Sprintf("room_start_time_%d", roomID)
}

// ProgressKey is the durable key for the selected option of one question.
func ProgressKey(roomID, questionID int64) string {
	return fmt.Sprintf("quiz_progress_%d_%d", roomID, questionID)
}
