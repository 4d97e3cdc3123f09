package bolt

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/logging"
)

const bucket = "progress"

// LocalStore keeps durable progress in a single bbolt file.
type LocalStore struct {
	db *bolt.DB
}

func Open(ctx context.Context, path string) (*LocalStore, error) {
	logger := logging.FromContext(ctx)
	logger.Infow("opening local store", "path", path)

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &LocalStore{db: db}, nil
}

func (s *LocalStore) Get(_ context.Context, key string) (string, error) {
	var value string
	if err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucket)).Get([]byte(key))
		if v == nil {
			return domain.ErrNotFound
		}
		value = string(v)
		return nil
	}); err != nil {
		return "", err
	}
	return value, nil
}

func (s *LocalStore) Set(_ context.Context, key, value string) error {
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Put([]byte(key), []byte(value))
	}); err != nil {
		return fmt.Errorf("bolt put %s: %w", key, err)
	}
	return nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Delete([]byte(key))
	}); err != nil {
		return fmt.Errorf("bolt delete %s: %w", key, err)
	}
	return nil
}

func (s *LocalStore) Close(ctx context.Context) error {
	logging.FromContext(ctx).Infow("closing local store")
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close bolt: %w", err)
	}
	return nil
}
