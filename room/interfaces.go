package room

import (
	"github.com/wfunc/doodleserver/models"
	"github.com/wfunc/doodleserver/network"
)

// Broadcaster delivers server events to player connections.
// This is defined here to break the import cycle between room and broadcast.
type Broadcaster interface {
	SendTo(playerID string, msg *network.Message)
	Multicast(playerIDs []string, msg *network.Message)
}

// MatchRecorder 对局结果落库，实现方需自行异步
type MatchRecorder interface {
	RecordMatch(result *models.MatchResult)
}

// Metrics 房间侧的观测点
type Metrics interface {
	RoomOpened(visibility models.Visibility)
	RoomClosed(visibility models.Visibility)
	GameStarted()
	GameEnded(cancelled bool)
	Guess(correct bool)
	StrokeRelayed(recipients int)
	RateLimited(kind string)
}

type nopMetrics struct{}

func (nopMetrics) RoomOpened(models.Visibility) {}
func (nopMetrics) RoomClosed(models.Visibility) {}
func (nopMetrics) GameStarted()                 {}
func (nopMetrics) GameEnded(bool)               {}
func (nopMetrics) Guess(bool)                   {}
func (nopMetrics) StrokeRelayed(int)            {}
func (nopMetrics) RateLimited(string)           {}
