// services/player_service.go
package services

import (
	"context"
	"errors"
	"time"

	"github.com/wfunc/doodleserver/logger"
	"github.com/wfunc/doodleserver/models"
	"github.com/wfunc/doodleserver/persistence"
	"go.uber.org/zap"
)

// PlayerService 玩家资料的读取，带超时
type PlayerService struct {
	store   persistence.Store
	timeout time.Duration
	log     *zap.Logger
}

func NewPlayerService(store persistence.Store, timeout time.Duration) *PlayerService {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &PlayerService{store: store, timeout: timeout, log: logger.WithModule("services")}
}

// GetProfile 没有资料记录视为资料未完成，不算错误
func (s *PlayerService) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	p, err := s.store.GetProfile(ctx, userID)
	if errors.Is(err, persistence.ErrRecordNotFound) {
		return &models.Profile{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetPlayerStats 获取玩家统计
func (s *PlayerService) GetPlayerStats(ctx context.Context, userID string) (*models.PlayerStats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.GetPlayerStats(ctx, userID)
}

func (s *PlayerService) UpsertProfile(ctx context.Context, profile *models.Profile) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.UpsertProfile(ctx, profile)
}
