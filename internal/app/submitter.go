package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/logging"
)

type answerKey struct {
	roomID     int64
	userID     int64
	questionID int64
}

// AnswerSubmitter sends at most one answer per (room, participant, question). The choice is
// written to the durable store before the network call so a reload racing the response
// still sees the question as answered.
//
// A failed network call keeps the lock: the participant stays locked but unconfirmed.
type AnswerSubmitter struct {
	sink   AnswerSink
	store  LocalStore
	userID int64
	logger *zap.SugaredLogger

	mu    sync.Mutex
	locks map[answerKey]int
}

func NewAnswerSubmitter(sink AnswerSink, store LocalStore, participant domain.Identity, logger *zap.SugaredLogger) *AnswerSubmitter {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &AnswerSubmitter{
		sink:   sink,
		store:  store,
		userID: participant.UserID,
		logger: logger,
		locks:  make(map[answerKey]int),
	}
}

// Submit locks the question and sends the answer. It returns false without error when the
// question was already locked, in this process or in the durable store. A network failure
// is returned wrapped, with the lock still held.
func (s *AnswerSubmitter) Submit(ctx context.Context, submission domain.AnswerSubmission) (bool, error) {
	key := s.key(submission.RoomID, submission.QuestionID)

	s.mu.Lock()
	if _, locked := s.locks[key]; locked {
		s.mu.Unlock()
		return false, nil
	}
	s.locks[key] = submission.SelectedIndex
	s.mu.Unlock()

	storeKey := ProgressKey(submission.RoomID, submission.QuestionID)
	if prior, err := s.store.Get(ctx, storeKey); err == nil {
		if idx, convErr := strconv.Atoi(prior); convErr == nil {
			s.mu.Lock()
			s.locks[key] = idx
			s.mu.Unlock()
		}
		s.logger.Debugw("answer already stored, skipping submit",
			"room_id", submission.RoomID, "question_id", submission.QuestionID)
		return false, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		s.logger.Warnw("read stored answer failed", "key", storeKey, "error", err)
	}

	if err := s.store.Set(ctx, storeKey, strconv.Itoa(submission.SelectedIndex)); err != nil {
		// The in-memory lock still guards this process.
		s.logger.Warnw("persist answer failed", "key", storeKey, "error", err)
	}

	if err := s.sink.SubmitAnswer(ctx, submission); err != nil {
		s.logger.Warnw("submit answer failed",
			"room_id", submission.RoomID, "question_id", submission.QuestionID, "error", err)
		return true, fmt.Errorf("submit answer: %w", err)
	}
	s.logger.Debugw("answer submitted",
		"room_id", submission.RoomID, "question_id", submission.QuestionID, "selected", submission.SelectedIndex)
	return true, nil
}

// Lock marks a question as answered without sending anything, e.g. after a reload.
func (s *AnswerSubmitter) Lock(roomID, questionID int64, selected int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.key(roomID, questionID)
	if _, ok := s.locks[key]; !ok {
		s.locks[key] = selected
	}
}

// Selection returns the locked option for a question held in session memory.
func (s *AnswerSubmitter) Selection(roomID, questionID int64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.locks[s.key(roomID, questionID)]
	return idx, ok
}

func (s *AnswerSubmitter) key(roomID, questionID int64) answerKey {
	return answerKey{roomID: roomID, userID: s.userID, questionID: questionID}
}
