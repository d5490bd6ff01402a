// models/models.go
package models

import (
	"sync"
	"time"
)

// QualityLevel 连接质量分级
type QualityLevel string

const (
	QualityExcellent QualityLevel = "excellent"
	QualityGood      QualityLevel = "good"
	QualityFair      QualityLevel = "fair"
	QualityPoor      QualityLevel = "poor"
)

// ConnectionQuality is the latest network sample for a player.
type ConnectionQuality struct {
	RTT           time.Duration `json:"-"`
	RTTMillis     int64         `json:"rttMs"`
	BandwidthKbps int           `json:"bandwidthKbps,omitempty"`
	PacketLoss    float64       `json:"packetLoss,omitempty"`
	Level         QualityLevel  `json:"level"`
	Compression   int           `json:"compressionLevel"`
	SampledAt     time.Time     `json:"sampledAt"`
}

// Player 玩家。
// 连接相关字段（ConnectionID, connected, quality, lastActivity）由 SessionManager
// 在锁内修改；游戏字段（Score, Ready, Drawing, HasGuessed）只在所属房间的串行队列里修改。
type Player struct {
	ID            string
	DisplayName   string
	Avatar        string
	LifetimeScore int

	Score           int
	ScoreAchievedAt time.Time
	Ready           bool
	Drawing         bool
	HasGuessed      bool
	JoinedAt        time.Time

	mu           sync.RWMutex
	connectionID string
	connected    bool
	lastActivity time.Time
	quality      ConnectionQuality
}

func NewPlayer(id, displayName, avatar string) *Player {
	return &Player{
		ID:           id,
		DisplayName:  displayName,
		Avatar:       avatar,
		lastActivity: time.Now(),
		quality:      ConnectionQuality{Level: QualityGood},
	}
}

func (p *Player) ConnectionID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connectionID
}

func (p *Player) Connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// Attach marks the player live on the given connection.
func (p *Player) Attach(connectionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connectionID = connectionID
	p.connected = true
	p.lastActivity = time.Now()
}

func (p *Player) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connectionID = ""
	p.connected = false
}

func (p *Player) Touch(now time.Time) {
	p.mu.Lock()
	p.lastActivity = now
	p.mu.Unlock()
}

func (p *Player) LastActivity() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastActivity
}

func (p *Player) Quality() ConnectionQuality {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.quality
}

func (p *Player) SetQuality(q ConnectionQuality) {
	p.mu.Lock()
	p.quality = q
	p.mu.Unlock()
}

// ResetGame 清空单局状态
func (p *Player) ResetGame() {
	p.Score = 0
	p.ScoreAchievedAt = time.Time{}
	p.Ready = false
	p.Drawing = false
	p.HasGuessed = false
}

// PlayerInfo is the public view of a player sent inside snapshots.
type PlayerInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar,omitempty"`
	Score       int    `json:"score"`
	Ready       bool   `json:"ready"`
	Drawing     bool   `json:"drawing"`
	HasGuessed  bool   `json:"hasGuessed"`
	Connected   bool   `json:"connected"`
	IsHost      bool   `json:"isHost,omitempty"`
}

func (p *Player) Info(hostID string) PlayerInfo {
	return PlayerInfo{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Avatar:      p.Avatar,
		Score:       p.Score,
		Ready:       p.Ready,
		Drawing:     p.Drawing,
		HasGuessed:  p.HasGuessed,
		Connected:   p.Connected(),
		IsHost:      hostID != "" && hostID == p.ID,
	}
}

// Visibility 房间可见性
type Visibility string

const (
	Public  Visibility = "public"
	Private Visibility = "private"
)

// RoomStatus 房间生命周期状态
type RoomStatus string

const (
	StatusWaiting  RoomStatus = "waiting"
	StatusStarting RoomStatus = "starting"
	StatusActive   RoomStatus = "active"
	StatusFinished RoomStatus = "finished"
)

// WordSource 词库来源
type WordSource string

const (
	WordSourceDefault WordSource = "default"
	WordSourceCustom  WordSource = "custom"
	WordSourceMixed   WordSource = "mixed"
)

type RoomSettings struct {
	MaxPlayers       int        `json:"maxPlayers"`
	Rounds           int        `json:"rounds"`
	DrawTime         int        `json:"drawTime"`
	Language         string     `json:"language"`
	Hints            int        `json:"hints"`
	WordSource       WordSource `json:"wordSource"`
	CustomWords      []string   `json:"customWords,omitempty"`
	AllowMidGameJoin bool       `json:"allowMidGameJoin"`
}

// SettingsPatch carries only the fields a host wants to change.
type SettingsPatch struct {
	MaxPlayers       *int        `json:"maxPlayers,omitempty"`
	Rounds           *int        `json:"rounds,omitempty"`
	DrawTime         *int        `json:"drawTime,omitempty"`
	Language         *string     `json:"language,omitempty"`
	Hints            *int        `json:"hints,omitempty"`
	WordSource       *WordSource `json:"wordSource,omitempty"`
	CustomWords      []string    `json:"customWords,omitempty"`
	AllowMidGameJoin *bool       `json:"allowMidGameJoin,omitempty"`
}

// Apply returns a copy of s with the patch applied.
func (p SettingsPatch) Apply(s RoomSettings) RoomSettings {
	if p.MaxPlayers != nil {
		s.MaxPlayers = *p.MaxPlayers
	}
	if p.Rounds != nil {
		s.Rounds = *p.Rounds
	}
	if p.DrawTime != nil {
		s.DrawTime = *p.DrawTime
	}
	if p.Language != nil {
		s.Language = *p.Language
	}
	if p.Hints != nil {
		s.Hints = *p.Hints
	}
	if p.WordSource != nil {
		s.WordSource = *p.WordSource
	}
	if p.CustomWords != nil {
		s.CustomWords = append([]string(nil), p.CustomWords...)
	}
	if p.AllowMidGameJoin != nil {
		s.AllowMidGameJoin = *p.AllowMidGameJoin
	}
	return s
}

// Point 画布坐标
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DrawingStroke 一笔。接收后不可变。
type DrawingStroke struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Tool      string    `json:"tool"`
	Color     string    `json:"color"`
	Size      float64   `json:"size"`
	Points    []Point   `json:"points,omitempty"`
	Path      []int64   `json:"path,omitempty"`
	Scale     float64   `json:"scale,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	ToolPen    = "pen"
	ToolEraser = "eraser"
	ToolBucket = "bucket"
)

// CanvasState 当前回合的画布
type CanvasState struct {
	Strokes    []DrawingStroke `json:"strokes"`
	Background string          `json:"background"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	Checksum   uint32          `json:"checksum"`
}

// MessageKind 聊天消息分类
type MessageKind string

const (
	KindChat   MessageKind = "chat"
	KindGuess  MessageKind = "guess"
	KindSystem MessageKind = "system"
)

type ChatMessage struct {
	AuthorID   string      `json:"authorId,omitempty"`
	AuthorName string      `json:"authorName,omitempty"`
	Text       string      `json:"text"`
	Kind       MessageKind `json:"kind"`
	Correct    bool        `json:"correct,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Profile 身份服务返回的用户资料
type Profile struct {
	UserID          string `json:"userId"`
	DisplayName     string `json:"displayName"`
	Avatar          string `json:"avatar"`
	ProfileComplete bool   `json:"profileComplete"`
	LifetimeScore   int    `json:"lifetimeScore"`
}

// Standing 终局排名
type Standing struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
	Rank        int    `json:"rank"`
}

// MatchResult 一局结束后的持久化记录
type MatchResult struct {
	MatchID    string        `json:"matchId"`
	RoomID     string        `json:"roomId"`
	Visibility Visibility    `json:"visibility"`
	Rounds     int           `json:"rounds"`
	Standings  []Standing    `json:"standings"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Duration   time.Duration `json:"-"`
}

// Stats 注册表统计
type Stats struct {
	Rooms        int `json:"rooms"`
	PublicRooms  int `json:"publicRooms"`
	PrivateRooms int `json:"privateRooms"`
	Players      int `json:"players"`
	ActiveGames  int `json:"activeGames"`
	Sessions     int `json:"sessions,omitempty"`
}
