package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/infra/memory"
)

// QuestionCache caches question lists in Redis and falls back to a loader on cache miss.
// Lists are stored as: SET quiz:questions:{roomID} {json} EX {ttl}
type QuestionCache struct {
	client *redis.Client
	loader memory.QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader memory.QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) Questions(ctx context.Context, roomID int64) ([]domain.Question, error) {
	key := c.key(roomID)
	if questions, ok := c.lookup(ctx, key); ok {
		return questions, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if questions, ok := c.lookup(ctx, key); ok {
			return questions, nil
		}
		questions, err := c.loader.Questions(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if payload, err := json.Marshal(questions); err == nil && c.ttl > 0 {
			// best-effort fill
			_ = c.client.Set(ctx, key, payload, c.ttlWithJitter()).Err()
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Invalidate drops the cached list of a room.
func (c *QuestionCache) Invalidate(ctx context.Context, roomID int64) error {
	return c.client.Del(ctx, c.key(roomID)).Err()
}

func (c *QuestionCache) lookup(ctx context.Context, key string) ([]domain.Question, bool) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var questions []domain.Question
	if err := json.Unmarshal(payload, &questions); err != nil {
		// a corrupt entry is treated as a miss and overwritten on reload
		_ = c.client.Del(ctx, key).Err()
		return nil, false
	}
	return questions, true
}

func (c *QuestionCache) key(roomID int64) string {
	return "quiz:questions:" + strconv.FormatInt(roomID, 10)
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	jitterMax := int64(c.ttl) / 10
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

