// broadcast/broadcast.go
package broadcast

import (
	"errors"
	"sync/atomic"

	"github.com/wfunc/doodleserver/logger"
	"github.com/wfunc/doodleserver/network"
	"go.uber.org/zap"
)

// Connections 按玩家查找在线连接，由 session.Manager 实现
type Connections interface {
	Connection(playerID string) (network.Connection, bool)
	Connections() []network.Connection
}

// Broadcaster 广播接口
type Broadcaster interface {
	SendTo(playerID string, msg *network.Message)
	Multicast(playerIDs []string, msg *network.Message)
	BroadcastToAll(msg *network.Message)
}

// Stats counts frames handed to connections.
type Stats struct {
	Sent    uint64
	Dropped uint64
	Offline uint64
}

// SessionBroadcaster encodes each message once and writes the frame to every
// live connection. Players without a connection (grace window) are skipped.
type SessionBroadcaster struct {
	conns   Connections
	sent    atomic.Uint64
	dropped atomic.Uint64
	offline atomic.Uint64
	log     *zap.Logger
}

func NewSessionBroadcaster(conns Connections) *SessionBroadcaster {
	return &SessionBroadcaster{
		conns: conns,
		log:   logger.WithModule("broadcast"),
	}
}

func (b *SessionBroadcaster) SendTo(playerID string, msg *network.Message) {
	b.Multicast([]string{playerID}, msg)
}

func (b *SessionBroadcaster) Multicast(playerIDs []string, msg *network.Message) {
	if len(playerIDs) == 0 {
		return
	}
	data, err := msg.Encode()
	if err != nil {
		b.log.Error("encode failed", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	for _, id := range playerIDs {
		conn, ok := b.conns.Connection(id)
		if !ok {
			b.offline.Add(1)
			continue
		}
		b.write(conn, msg.Type, data)
	}
}

// BroadcastToAll 发给所有在线连接，例如停服通知
func (b *SessionBroadcaster) BroadcastToAll(msg *network.Message) {
	data, err := msg.Encode()
	if err != nil {
		b.log.Error("encode failed", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	for _, conn := range b.conns.Connections() {
		b.write(conn, msg.Type, data)
	}
}

func (b *SessionBroadcaster) write(conn network.Connection, event string, data []byte) {
	if err := conn.SendRaw(data); err != nil {
		b.dropped.Add(1)
		if !errors.Is(err, network.ErrConnectionClosed) {
			// 发送缓冲满说明客户端读得太慢，丢帧而不是阻塞房间
			b.log.Warn("frame dropped", zap.String("conn", conn.ID()), zap.String("type", event), zap.Error(err))
		}
		return
	}
	b.sent.Add(1)
}

func (b *SessionBroadcaster) Stats() Stats {
	return Stats{
		Sent:    b.sent.Load(),
		Dropped: b.dropped.Load(),
		Offline: b.offline.Load(),
	}
}
