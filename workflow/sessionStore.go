package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/bankrec_backend/bankrec"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	ErrSessionNotFound = errors.New("widget session not found")
	ErrSessionBusy     = errors.New("widget session busy")
)

const (
	sessionLockTTL   = 30 * time.Second
	sessionLockTries = 20
)

// SessionStore keeps widget sessions between HTTP calls and serializes the operations on one
// session. Without redis (local runs, tests) it falls back to process memory and local mutexes.
type SessionStore struct {
	rdb    *redis.Client
	locker *redislock.Client
	ttl    time.Duration
	logger *logrus.Logger

	mu     sync.Mutex
	local  map[string][]byte
	guards map[string]*sync.Mutex
}

func NewSessionStore(rdb *redis.Client, locker *redislock.Client, ttl time.Duration, logger *logrus.Logger) *SessionStore {
	return &SessionStore{
		rdb:    rdb,
		locker: locker,
		ttl:    ttl,
		logger: logger,
		local:  map[string][]byte{},
		guards: map[string]*sync.Mutex{},
	}
}

func sessionKey(businessId, id string) string {
	return fmt.Sprintf("bankrec:session:%s:%s", businessId, id)
}

func (s *SessionStore) Load(ctx context.Context, businessId, id string) (*bankrec.Session, error) {
	key := sessionKey(businessId, id)
	var data []byte
	if s.rdb != nil {
		val, err := s.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		if err != nil {
			return nil, err
		}
		data = val
	} else {
		s.mu.Lock()
		val, ok := s.local[key]
		s.mu.Unlock()
		if !ok {
			return nil, ErrSessionNotFound
		}
		data = val
	}
	var session bankrec.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	if session.BusinessId != businessId {
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

// Save stores the session and restarts its TTL.
func (s *SessionStore) Save(ctx context.Context, session *bankrec.Session) error {
	session.UpdatedAt = time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = session.UpdatedAt
	}
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	key := sessionKey(session.BusinessId, session.ID)
	if s.rdb != nil {
		return s.rdb.Set(ctx, key, data, s.ttl).Err()
	}
	s.mu.Lock()
	s.local[key] = data
	s.mu.Unlock()
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, businessId, id string) error {
	key := sessionKey(businessId, id)
	if s.rdb != nil {
		return s.rdb.Del(ctx, key).Err()
	}
	s.mu.Lock()
	delete(s.local, key)
	s.mu.Unlock()
	return nil
}

// WithLock runs fn while holding the session's lock.
func (s *SessionStore) WithLock(ctx context.Context, businessId, id string, fn func() error) error {
	key := sessionKey(businessId, id) + ":lock"
	if s.locker == nil {
		s.mu.Lock()
		guard, ok := s.guards[key]
		if !ok {
			guard = &sync.Mutex{}
			s.guards[key] = guard
		}
		s.mu.Unlock()
		guard.Lock()
		defer guard.Unlock()
		return fn()
	}

	lock, err := s.locker.Obtain(ctx, key, sessionLockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), sessionLockTries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return ErrSessionBusy
	}
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := lock.Release(ctx); releaseErr != nil && s.logger != nil {
			s.logger.WithFields(logrus.Fields{
				"module":      "sessionStore.go",
				"business_id": businessId,
				"session_id":  id,
			}).Warn("failed to release session lock: " + releaseErr.Error())
		}
	}()
	return fn()
}

// Mutate loads the session under its lock, applies fn and saves the result. Nothing is
// saved when fn fails.
func (s *SessionStore) Mutate(ctx context.Context, businessId, id string, fn func(*bankrec.Session) error) (*bankrec.Session, error) {
	var session *bankrec.Session
	err := s.WithLock(ctx, businessId, id, func() error {
		loaded, err := s.Load(ctx, businessId, id)
		if err != nil {
			return err
		}
		if err := fn(loaded); err != nil {
			return err
		}
		session = loaded
		return s.Save(ctx, loaded)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}
