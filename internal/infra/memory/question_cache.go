package memory

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"quiz-session-engine/internal/domain"
)

// QuestionLoader fetches a room's question list from the backend.
type QuestionLoader interface {
	Questions(ctx context.Context, roomID int64) ([]domain.Question, error)
}

// QuestionCache caches question lists per room with TTL to avoid refetching the whole list
// after every self-paced answer.
type QuestionCache struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  clockwork.Clock
	sf     singleflight.Group

	mu    sync.Mutex
	rnd   *rand.Rand
	cache *lru.ARCCache
}

type cachedQuestions struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionCache(loader QuestionLoader, size int, ttl time.Duration, clock clockwork.Clock) (*QuestionCache, error) {
	if size <= 0 {
		size = 128
	}
	cache, err := lru.NewARC(size)
	if err != nil {
		return nil, fmt.Errorf("create question cache: %w", err)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &QuestionCache{
		loader: loader,
		ttl:    ttl,
		clock:  clock,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  cache,
	}, nil
}

func (c *QuestionCache) Questions(ctx context.Context, roomID int64) ([]domain.Question, error) {
	if questions, ok := c.lookup(roomID); ok {
		return questions, nil
	}

	result, err, _ := c.sf.Do(strconv.FormatInt(roomID, 10), func() (interface{}, error) {
		// Re-check in case another caller filled it.
		if questions, ok := c.lookup(roomID); ok {
			return questions, nil
		}
		questions, err := c.loader.Questions(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if c.ttl > 0 {
			c.cache.Add(roomID, cachedQuestions{
				questions: questions,
				expiresAt: c.clock.Now().Add(c.ttlWithJitter()),
			})
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return clone(result.([]domain.Question)), nil
}

// Invalidate drops the cached list of a room.
func (c *QuestionCache) Invalidate(roomID int64) {
	c.cache.Remove(roomID)
}

func (c *QuestionCache) lookup(roomID int64) ([]domain.Question, bool) {
	v, ok := c.cache.Get(roomID)
	if !ok {
		return nil, false
	}
	entry := v.(cachedQuestions)
	if !entry.expiresAt.After(c.clock.Now()) {
		c.cache.Remove(roomID)
		return nil, false
	}
	return clone(entry.questions), true
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func clone(questions []domain.Question) []domain.Question {
	return append([]domain.Question(nil), questions...)
}

// StaticQuestionLoader is a loader backed by an in-memory map (useful for tests/demos).
type StaticQuestionLoader struct {
	questions map[int64][]domain.Question
}

func NewStaticQuestionLoader(questions map[int64][]domain.Question) *StaticQuestionLoader {
	return &StaticQuestionLoader{questions: questions}
}

func (l *StaticQuestionLoader) Questions(_ context.Context, roomID int64) ([]domain.Question, error) {
	if questions, ok := l.questions[roomID]; ok {
		return questions, nil
	}
	return nil, domain.ErrRoomNotFound
}
