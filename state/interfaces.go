// state/interfaces.go
package state

import (
	"time"

	"github.com/wfunc/doodleserver/models"
	"github.com/wfunc/doodleserver/network"
	"github.com/wfunc/doodleserver/words"
)

// RoomContext defines the interface that a Room must implement to be managed by the state machine.
// This breaks the import cycle between room and state. Every method is called
// from inside the room's own goroutine.
type RoomContext interface {
	GetID() string
	Settings() models.RoomSettings
	// Members returns the current players ordered by join time.
	Members() []*models.Player
	Member(playerID string) *models.Player
	SetStatus(status models.RoomStatus)

	Broadcast(msg *network.Message)
	Multicast(playerIDs []string, msg *network.Message)
	SendTo(playerID string, msg *network.Message)

	// Schedule runs fn inside the room after delay (and every interval when > 0).
	Schedule(delay, interval time.Duration, fn func()) int64
	Cancel(timerID int64)
	Now() time.Time

	Words() *words.Bank
	GameFinished(result *models.MatchResult)
}
