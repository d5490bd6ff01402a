// persistence/interface.go
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/wfunc/doodleserver/config"
	"github.com/wfunc/doodleserver/models"
)

// Store 玩家资料与对局记录
type Store interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	UpsertProfile(ctx context.Context, profile *models.Profile) error
	// SaveMatch 在一个事务里写入对局并累加每个玩家的总分、场次与胜场。
	// 同一个 MatchID 重复提交是空操作。
	SaveMatch(ctx context.Context, result *models.MatchResult) error
	GetPlayerStats(ctx context.Context, userID string) (*models.PlayerStats, error)
	Ping(ctx context.Context) error
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = errors.New("record not found")
)

const defaultSQLiteFile = "doodle.db"

// Open 按配置选择存储引擎
func Open(cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Engine {
	case "", "gorm":
		s, err := NewGormStore(cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sql":
		s, err := NewSQLStore(cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database engine %q", cfg.Engine)
	}
}

// isWinner 第一名，并列都算
func isWinner(s models.Standing) bool {
	return s.Rank == 1
}
