// models/gorm_models.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// GormProfile 玩家资料与累计数据
type GormProfile struct {
	gorm.Model
	UserID        string `gorm:"uniqueIndex;size:64;not null"`
	DisplayName   string `gorm:"size:64"`
	Avatar        string `gorm:"size:255"`
	LifetimeScore int    `gorm:"default:0"`
	GamesPlayed   int    `gorm:"default:0"`
	Wins          int    `gorm:"default:0"`
}

func (GormProfile) TableName() string { return "profiles" }

// Complete reports whether the profile may enter a room.
func (p *GormProfile) Complete() bool {
	return p.DisplayName != ""
}

func (p *GormProfile) ToProfile() *Profile {
	return &Profile{
		UserID:          p.UserID,
		DisplayName:     p.DisplayName,
		Avatar:          p.Avatar,
		ProfileComplete: p.Complete(),
		LifetimeScore:   p.LifetimeScore,
	}
}

// GormMatch 对局记录
type GormMatch struct {
	ID         uint   `gorm:"primaryKey"`
	MatchID    string `gorm:"uniqueIndex;size:36;not null"`
	RoomID     string `gorm:"index;size:36;not null"`
	Visibility string `gorm:"size:16"`
	Rounds     int
	Duration   int // 秒
	StartedAt  time.Time
	FinishedAt time.Time
	Players    []GormMatchPlayer `gorm:"foreignKey:MatchID;references:MatchID"`
}

func (GormMatch) TableName() string { return "matches" }

type GormMatchPlayer struct {
	ID      uint   `gorm:"primaryKey"`
	MatchID string `gorm:"index;size:36;not null"`
	UserID  string `gorm:"index;size:64;not null"`
	Score   int
	Rank    int
}

func (GormMatchPlayer) TableName() string { return "match_players" }

// PlayerStats 玩家统计
type PlayerStats struct {
	UserID        string `json:"userId"`
	GamesPlayed   int    `json:"gamesPlayed"`
	Wins          int    `json:"wins"`
	LifetimeScore int    `json:"lifetimeScore"`
}
