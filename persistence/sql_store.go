// persistence/sql_store.go
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// PostgreSQL 驱动
	_ "github.com/lib/pq"
	"github.com/wfunc/doodleserver/config"
	"github.com/wfunc/doodleserver/models"
	"go.uber.org/multierr"
)

// SQLStore 原生 SQL 实现（lib/pq），表结构与 GormStore 兼容
type SQLStore struct {
	db      *sql.DB
	timeout time.Duration
}

// NewSQLStore 创建 PostgreSQL 数据库连接
func NewSQLStore(cfg config.DatabaseConfig) (*SQLStore, error) {
	db, err := sql.Open("postgres", cfg.PostgresDSN())
	if err != nil {
		return nil, err
	}

	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, multierr.Append(err, db.Close())
	}

	// 设置连接池参数
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := initTables(ctx, db); err != nil {
		return nil, multierr.Append(fmt.Errorf("init tables: %w", err), db.Close())
	}
	return &SQLStore{db: db, timeout: timeout}, nil
}

// initTables 初始化数据库表结构
func initTables(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
            id BIGSERIAL PRIMARY KEY,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            deleted_at TIMESTAMPTZ,
            user_id VARCHAR(64) NOT NULL,
            display_name VARCHAR(64),
            avatar VARCHAR(255),
            lifetime_score BIGINT DEFAULT 0,
            games_played BIGINT DEFAULT 0,
            wins BIGINT DEFAULT 0
        )`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_user_id ON profiles(user_id)`,
		`CREATE TABLE IF NOT EXISTS matches (
            id BIGSERIAL PRIMARY KEY,
            match_id VARCHAR(36) NOT NULL,
            room_id VARCHAR(36) NOT NULL,
            visibility VARCHAR(16),
            rounds BIGINT,
            duration BIGINT,
            started_at TIMESTAMPTZ,
            finished_at TIMESTAMPTZ
        )`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_matches_match_id ON matches(match_id)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_room_id ON matches(room_id)`,
		`CREATE TABLE IF NOT EXISTS match_players (
            id BIGSERIAL PRIMARY KEY,
            match_id VARCHAR(36) NOT NULL,
            user_id VARCHAR(64) NOT NULL,
            score BIGINT,
            rank BIGINT
        )`,
		`CREATE INDEX IF NOT EXISTS idx_match_players_match_id ON match_players(match_id)`,
		`CREATE INDEX IF NOT EXISTS idx_match_players_user_id ON match_players(user_id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (p *SQLStore) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if _, ok := parent.Deadline(); ok {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, p.timeout)
}

func (p *SQLStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	ctx, cancel := p.ctx(ctx)
	defer cancel()

	var (
		name, avatar sql.NullString
		score        int
	)
	query := `SELECT display_name, avatar, lifetime_score FROM profiles WHERE user_id = $1 AND deleted_at IS NULL`
	err := p.db.QueryRowContext(ctx, query, userID).Scan(&name, &avatar, &score)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &models.Profile{
		UserID:          userID,
		DisplayName:     name.String,
		Avatar:          avatar.String,
		ProfileComplete: name.String != "",
		LifetimeScore:   score,
	}, nil
}

func (p *SQLStore) UpsertProfile(ctx context.Context, profile *models.Profile) error {
	ctx, cancel := p.ctx(ctx)
	defer cancel()

	// 使用 UPSERT 操作 (PostgreSQL 9.5+)
	query := `
        INSERT INTO profiles (user_id, display_name, avatar, lifetime_score)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id)
        DO UPDATE SET display_name = $2, avatar = $3, updated_at = CURRENT_TIMESTAMP
    `
	_, err := p.db.ExecContext(ctx, query, profile.UserID, profile.DisplayName, profile.Avatar, profile.LifetimeScore)
	return err
}

func (p *SQLStore) SaveMatch(ctx context.Context, result *models.MatchResult) error {
	ctx, cancel := p.ctx(ctx)
	defer cancel()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
        INSERT INTO matches (match_id, room_id, visibility, rounds, duration, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (match_id) DO NOTHING`,
		result.MatchID, result.RoomID, string(result.Visibility), result.Rounds,
		int(result.Duration/time.Second), result.StartedAt, result.FinishedAt)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		// 已记录过
		return tx.Commit()
	}

	for _, st := range result.Standings {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO match_players (match_id, user_id, score, rank) VALUES ($1, $2, $3, $4)`,
			result.MatchID, st.PlayerID, st.Score, st.Rank); err != nil {
			return err
		}
		wins := 0
		if isWinner(st) {
			wins = 1
		}
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO profiles (user_id, display_name, lifetime_score, games_played, wins)
            VALUES ($1, $2, $3, 1, $4)
            ON CONFLICT (user_id) DO UPDATE SET
                lifetime_score = profiles.lifetime_score + EXCLUDED.lifetime_score,
                games_played = profiles.games_played + 1,
                wins = profiles.wins + EXCLUDED.wins,
                updated_at = CURRENT_TIMESTAMP`,
			st.PlayerID, st.DisplayName, st.Score, wins); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *SQLStore) GetPlayerStats(ctx context.Context, userID string) (*models.PlayerStats, error) {
	ctx, cancel := p.ctx(ctx)
	defer cancel()

	stats := &models.PlayerStats{UserID: userID}
	query := `SELECT games_played, wins, lifetime_score FROM profiles WHERE user_id = $1 AND deleted_at IS NULL`
	err := p.db.QueryRowContext(ctx, query, userID).Scan(&stats.GamesPlayed, &stats.Wins, &stats.LifetimeScore)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return stats, nil
}

func (p *SQLStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close 关闭数据库连接
func (p *SQLStore) Close() error {
	return p.db.Close()
}
