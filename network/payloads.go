package network

import (
	"github.com/wfunc/doodleserver/apperr"
	"github.com/wfunc/doodleserver/models"
)

// 请求体

type AuthenticateRequest struct {
	Token string `json:"token"`
}

type CreatePrivateRoomRequest struct {
	Settings models.SettingsPatch `json:"settings"`
}

type JoinPrivateRoomRequest struct {
	Code string `json:"code"`
}

type TextRequest struct {
	Text string `json:"text"`
}

type ReadyRequest struct {
	Ready bool `json:"ready"`
}

type SelectWordRequest struct {
	Word string `json:"word"`
}

type MobileEventRequest struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

const (
	MobileAppBackground = "app_background"
	MobileAppForeground = "app_foreground"
	MobileNetworkChange = "network_change"
	MobileLowBattery    = "low_battery"
)

type ConnectionQualityRequest struct {
	RTTMillis     int64   `json:"rttMs"`
	BandwidthKbps int     `json:"bandwidthKbps"`
	PacketLoss    float64 `json:"packetLoss"`
}

type PingRequest struct {
	Timestamp int64 `json:"timestamp"`
}

// 推送体

type AuthenticatedPayload struct {
	Success     bool   `json:"success"`
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Resumed     bool   `json:"resumed"`
	RoomID      string `json:"roomId,omitempty"`
}

// RoomSnapshot is everything a client needs to render a room it just entered.
type RoomSnapshot struct {
	RoomID     string              `json:"roomId"`
	Visibility models.Visibility   `json:"visibility"`
	InviteCode string              `json:"inviteCode,omitempty"`
	HostID     string              `json:"hostId,omitempty"`
	Status     models.RoomStatus   `json:"status"`
	Settings   models.RoomSettings `json:"settings"`
	Players    []models.PlayerInfo `json:"players"`
	Phase      string              `json:"phase,omitempty"`
	Round      int                 `json:"round,omitempty"`
	DrawerID   string              `json:"drawerId,omitempty"`
	Pattern    string              `json:"pattern,omitempty"`
	Word       string              `json:"word,omitempty"`
	Remaining  int64               `json:"remainingMs,omitempty"`
	IsNewRoom  bool                `json:"isNewRoom,omitempty"`
}

type RoomCreatedPayload struct {
	RoomID     string `json:"roomId"`
	InviteCode string `json:"inviteCode"`
}

type PlayerJoinedPayload struct {
	Player models.PlayerInfo `json:"player"`
}

type PlayerLeftPayload struct {
	PlayerID string `json:"playerId"`
	Reason   string `json:"reason,omitempty"`
}

type HostChangedPayload struct {
	HostID string `json:"hostId"`
}

type ReadyChangedPayload struct {
	PlayerID string `json:"playerId"`
	Ready    bool   `json:"ready"`
}

type GameStartingPayload struct {
	CountdownMs int64 `json:"countdownMs"`
}

type GameStartedPayload struct {
	Rounds    int      `json:"rounds"`
	TurnOrder []string `json:"turnOrder"`
}

type TurnStartingPayload struct {
	Round    int    `json:"round"`
	Turn     int    `json:"turn"`
	DrawerID string `json:"drawerId"`
	TimeMs   int64  `json:"timeLimitMs"`
}

type WordSelectionPayload struct {
	Choices   []string `json:"choices"`
	TimeLimit int64    `json:"timeLimitMs"`
}

type TurnStartedPayload struct {
	Round    int    `json:"round"`
	Turn     int    `json:"turn"`
	DrawerID string `json:"drawerId"`
	Pattern  string `json:"pattern"`
	Word     string `json:"word,omitempty"`
	DrawTime int64  `json:"drawTimeMs"`
}

type GuessResult struct {
	PlayerID string `json:"playerId"`
	Order    int    `json:"order"`
	Points   int    `json:"points"`
}

type TurnEndedPayload struct {
	Round     int            `json:"round"`
	Turn      int            `json:"turn"`
	DrawerID  string         `json:"drawerId"`
	Word      string         `json:"word"`
	EndReason string         `json:"endReason"`
	Results   []GuessResult  `json:"results"`
	DrawerPts int            `json:"drawerPoints"`
	Scores    map[string]int `json:"scores"`
}

type RoundEndedPayload struct {
	Round  int            `json:"round"`
	Scores map[string]int `json:"scores"`
}

type GameEndedPayload struct {
	Standings []models.Standing `json:"standings"`
	Cancelled bool              `json:"cancelled,omitempty"`
	Reason    string            `json:"reason,omitempty"`
}

type GamePausedPayload struct {
	Reason      string `json:"reason"`
	PlayerID    string `json:"playerId"`
	Phase       string `json:"phase"`
	RemainingMs int64  `json:"remainingMs"`
}

type GameResumedPayload struct {
	PlayerID    string `json:"playerId"`
	Phase       string `json:"phase"`
	RemainingMs int64  `json:"remainingMs"`
}

type HintRevealedPayload struct {
	Position int    `json:"position"`
	Letter   string `json:"letter"`
	Pattern  string `json:"pattern"`
}

type CanvasStatePayload struct {
	Canvas           models.CanvasState `json:"canvas"`
	CompressionLevel int                `json:"compressionLevel"`
}

type CanvasUndoPayload struct {
	StrokeID string `json:"strokeId"`
}

type PlayerGuessedPayload struct {
	PlayerID string `json:"playerId"`
	Order    int    `json:"order"`
}

type CorrectGuessPayload struct {
	Word   string `json:"word"`
	Order  int    `json:"order"`
	Points int    `json:"points"`
}

type CloseGuessPayload struct {
	Guess string `json:"guess"`
}

type TimerUpdatePayload struct {
	Phase       string `json:"phase"`
	RemainingMs int64  `json:"remainingMs"`
}

type ScoreUpdatePayload struct {
	Scores map[string]int `json:"scores"`
}

type RateLimitedPayload struct {
	Type         string `json:"type"`
	RetryAfterMs int64  `json:"retryAfterMs"`
}

type MobileOptimizationPayload struct {
	HeartbeatIntervalMs int64               `json:"heartbeatIntervalMs"`
	CompressionLevel    int                 `json:"compressionLevel"`
	Quality             models.QualityLevel `json:"quality"`
	Reason              string              `json:"reason"`
}

type PongPayload struct {
	Timestamp  int64 `json:"timestamp"`
	ServerTime int64 `json:"serverTime"`
}

type RoomClosedPayload struct {
	Reason string `json:"reason"`
}

// ErrorPayload is the wire form of every failure.
type ErrorPayload = apperr.Payload

// ErrorMessage builds an error event from any error without leaking internals.
func ErrorMessage(err error) *Message {
	return MustMessage(EventError, apperr.Public(err))
}
