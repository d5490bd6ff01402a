// persistence/gorm_store.go
package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wfunc/doodleserver/config"
	applog "github.com/wfunc/doodleserver/logger"
	"github.com/wfunc/doodleserver/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormStore 使用 GORM 的实现，支持 postgres 与 sqlite
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建 GORM 数据库连接
func NewGormStore(cfg config.DatabaseConfig) (*GormStore, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.PostgresDSN())
	case "", "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = defaultSQLiteFile
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported gorm driver %q", cfg.Driver)
	}

	// GORM 日志走 zap
	gormLogger := logger.New(
		zap.NewStdLog(applog.WithModule("gorm")),
		logger.Config{
			SlowThreshold:             time.Second, // 慢SQL阈值
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := autoMigrate(db); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// NewGormStoreFromDB wraps an already opened connection, running migrations.
func NewGormStoreFromDB(db *gorm.DB) (*GormStore, error) {
	if err := autoMigrate(db); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// autoMigrate 自动迁移表结构
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.GormProfile{},
		&models.GormMatch{},
		&models.GormMatchPlayer{},
	)
}

func (s *GormStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.GormProfile
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return p.ToProfile(), nil
}

// UpsertProfile 只更新资料字段，累计数据由 SaveMatch 维护
func (s *GormStore) UpsertProfile(ctx context.Context, profile *models.Profile) error {
	row := models.GormProfile{
		UserID:        profile.UserID,
		DisplayName:   profile.DisplayName,
		Avatar:        profile.Avatar,
		LifetimeScore: profile.LifetimeScore,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "avatar", "updated_at"}),
	}).Create(&row).Error
}

func (s *GormStore) SaveMatch(ctx context.Context, result *models.MatchResult) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.GormMatch{}).Where("match_id = ?", result.MatchID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}

		match := models.GormMatch{
			MatchID:    result.MatchID,
			RoomID:     result.RoomID,
			Visibility: string(result.Visibility),
			Rounds:     result.Rounds,
			Duration:   int(result.Duration / time.Second),
			StartedAt:  result.StartedAt,
			FinishedAt: result.FinishedAt,
		}
		for _, st := range result.Standings {
			match.Players = append(match.Players, models.GormMatchPlayer{
				MatchID: result.MatchID,
				UserID:  st.PlayerID,
				Score:   st.Score,
				Rank:    st.Rank,
			})
		}
		if err := tx.Create(&match).Error; err != nil {
			return err
		}

		for _, st := range result.Standings {
			wins := 0
			if isWinner(st) {
				wins = 1
			}
			res := tx.Model(&models.GormProfile{}).Where("user_id = ?", st.PlayerID).Updates(map[string]interface{}{
				"lifetime_score": gorm.Expr("lifetime_score + ?", st.Score),
				"games_played":   gorm.Expr("games_played + 1"),
				"wins":           gorm.Expr("wins + ?", wins),
			})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				row := models.GormProfile{
					UserID:        st.PlayerID,
					DisplayName:   st.DisplayName,
					LifetimeScore: st.Score,
					GamesPlayed:   1,
					Wins:          wins,
				}
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *GormStore) GetPlayerStats(ctx context.Context, userID string) (*models.PlayerStats, error) {
	var p models.GormProfile
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &models.PlayerStats{
		UserID:        p.UserID,
		GamesPlayed:   p.GamesPlayed,
		Wins:          p.Wins,
		LifetimeScore: p.LifetimeScore,
	}, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭数据库连接
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
