package services

import (
	"context"
	"sync"
	"time"

	"github.com/wfunc/doodleserver/logger"
	"github.com/wfunc/doodleserver/models"
	"github.com/wfunc/doodleserver/persistence"
	"go.uber.org/zap"
)

const (
	DefaultMatchAttempts = 3
	DefaultMatchBackoff  = 500 * time.Millisecond
)

// MatchService 异步落库对局结果，失败按退避重试。房间只管提交，不等待。
type MatchService struct {
	store    persistence.Store
	timeout  time.Duration
	attempts int
	backoff  time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger

	mu     sync.Mutex
	failed int
}

func NewMatchService(store persistence.Store, timeout time.Duration) *MatchService {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MatchService{
		store:    store,
		timeout:  timeout,
		attempts: DefaultMatchAttempts,
		backoff:  DefaultMatchBackoff,
		ctx:      ctx,
		cancel:   cancel,
		log:      logger.WithModule("match"),
	}
}

// SetRetry 调整重试次数与首次退避
func (s *MatchService) SetRetry(attempts int, backoff time.Duration) {
	if attempts > 0 {
		s.attempts = attempts
	}
	if backoff >= 0 {
		s.backoff = backoff
	}
}

// RecordMatch implements room.MatchRecorder.
func (s *MatchService) RecordMatch(result *models.MatchResult) {
	if result == nil || len(result.Standings) == 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.persist(result); err != nil {
			s.mu.Lock()
			s.failed++
			s.mu.Unlock()
			s.log.Error("match not persisted",
				zap.String("match", result.MatchID),
				zap.String("room", result.RoomID),
				zap.Error(err))
		}
	}()
}

func (s *MatchService) persist(result *models.MatchResult) error {
	var err error
	delay := s.backoff
	for attempt := 1; attempt <= s.attempts; attempt++ {
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		err = s.store.SaveMatch(ctx, result)
		cancel()
		if err == nil {
			s.log.Debug("match persisted", zap.String("match", result.MatchID), zap.Int("attempt", attempt))
			return nil
		}
		if attempt == s.attempts {
			break
		}
		s.log.Warn("persist match failed, retrying",
			zap.String("match", result.MatchID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))
		select {
		case <-time.After(delay):
		case <-s.ctx.Done():
			return s.ctx.Err()
		}
		delay *= 2
	}
	return err
}

// Failed 放弃落库的对局数
func (s *MatchService) Failed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// Close waits for in-flight writes until ctx expires, then abandons retries.
func (s *MatchService) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}
