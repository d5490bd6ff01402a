package gateway

import (
	"context"
	"time"

	"github.com/wfunc/doodleserver/apperr"
	"github.com/wfunc/doodleserver/models"
	"github.com/wfunc/doodleserver/network"
	"github.com/wfunc/doodleserver/room"
	"github.com/wfunc/doodleserver/session"
	"go.uber.org/zap"
)

type handlerFunc func(g *Gateway, ctx context.Context, c *client, msg *network.Message) error

var handlers = map[string]handlerFunc{
	network.EventJoinPublicGame:     handleJoinPublic,
	network.EventCreatePrivateRoom:  handleCreatePrivate,
	network.EventJoinPrivateRoom:    handleJoinPrivate,
	network.EventLeaveRoom:          handleLeave,
	network.EventLobbyChat:          handleLobbyChat,
	network.EventPlayerReady:        handleReady,
	network.EventUpdateRoomSettings: handleUpdateSettings,
	network.EventStartGame:          handleStartGame,
	network.EventSelectWord:         handleSelectWord,
	network.EventDrawingStroke:      handleStroke,
	network.EventCanvasClear:        handleCanvasClear,
	network.EventCanvasUndo:         handleCanvasUndo,
	network.EventChatMessage:        handleText,
	network.EventGuessWord:          handleText,
	network.EventRequestCanvasSync:  handleCanvasSync,
	network.EventMobileEvent:        handleMobileEvent,
	network.EventConnectionQuality:  handleConnectionQuality,
	network.EventPing:               handlePing,
}

func (g *Gateway) handlePacket(ctx context.Context, c *client, msg *network.Message) error {
	if msg.Type == network.EventAuthenticate {
		return apperr.New(apperr.InvalidMessage, "already authenticated")
	}
	h, ok := handlers[msg.Type]
	if !ok {
		g.log.Debug("unknown event", zap.String("type", msg.Type), zap.String("player", c.player.ID))
		return apperr.Newf(apperr.InvalidMessage, "unknown event %q", msg.Type)
	}
	return h(g, ctx, c, msg)
}

func bind(msg *network.Message, v interface{}) error {
	if err := msg.Bind(v); err != nil {
		return apperr.Wrap(err, apperr.InvalidMessage)
	}
	return nil
}

func handleJoinPublic(g *Gateway, _ context.Context, c *client, _ *network.Message) error {
	_, _, err := g.rooms.JoinPublicGame(c.player)
	return err
}

func handleCreatePrivate(g *Gateway, _ context.Context, c *client, msg *network.Message) error {
	var req network.CreatePrivateRoomRequest
	if len(msg.Data) > 0 {
		if err := bind(msg, &req); err != nil {
			return err
		}
	}
	_, err := g.rooms.CreatePrivateRoom(c.player, req.Settings)
	return err
}

func handleJoinPrivate(g *Gateway, _ context.Context, c *client, msg *network.Message) error {
	var req network.JoinPrivateRoomRequest
	if err := bind(msg, &req); err != nil {
		return err
	}
	_, err := g.rooms.JoinPrivateRoom(c.player, req.Code)
	return err
}

func handleLeave(g *Gateway, _ context.Context, c *client, _ *network.Message) error {
	return g.rooms.LeaveRoom(c.player.ID, "left")
}

// withRoom 找到玩家所在房间再执行
func (g *Gateway) withRoom(c *client, fn func(r *room.Room) error) error {
	r, err := g.rooms.RoomOf(c.player.ID)
	if err != nil {
		return err
	}
	return fn(r)
}

func handleLobbyChat(g *Gateway, _ context.Context, c *client, msg *network.Message) error {
	var req network.TextRequest
	if err := bind(msg, &req); err != nil {
		return err
	}
	return g.withRoom(c, func(r *room.Room) error { return r.LobbyChat(c.player.ID, req.Text) })
}

func handleReady(g *Gateway, _ context.Context, c *client, msg *network.Message) error {
	var req network.ReadyRequest
	if err := bind(msg, &req); err != nil {
		return err
	}
	return g.withRoom(c, func(r *room.Room) error { return r.SetReady(c.player.ID, req.Ready) })
}

func handleUpdateSettings(g *Gateway, _ context.Context, c *client, msg *network.Message) error {
	var patch models.SettingsPatch
	if err := bind(msg, &patch); err != nil {
		return err
	}
	return g.withRoom(c, func(r *room.Room) error { return r.UpdateSettings(c.player.ID, patch) })
}

func handleStartGame(g *Gateway, _ context.Context, c *client, _ *network.Message) error {
	return g.withRoom(c, func(r *room.Room) error { return r.StartGame(c.player.ID) })
}

func handleSelectWord(g *Gateway, _ context.Context, c *client, msg *network.Message) error {
	var req network.SelectWordRequest
	if err := bind(msg, &req); err != nil {
		return err
	}
	return g.withRoom(c, func(r *room.Room) error { return r.SelectWord(c.player.ID, req.Word) })
}

func handleStroke(g *Gateway, _ context.Context, c *client, msg *network.Message) error {
	var stroke models.DrawingStroke
	if err := bind(msg, &stroke); err != nil {
		return err
	}
	return g.withRoom(c, func(r *room.Room) error { return r.DrawStroke(c.player.ID, stroke) })
}

func handleCanvasClear(g *Gateway, _ context.Context, c *client, _ *network.Message) error {
	return g.withRoom(c, func(r *room.Room) error { return r.ClearCanvas(c.player.ID) })
}

func handleCanvasUndo(g *Gateway, _ context.Context, c *client, _ *network.Message) error {
	return g.withRoom(c, func(r *room.Room) error { return r.UndoCanvas(c.player.ID) })
}

// chat_message 和 guess_word 走同一条路径，由房间按玩家状态决定是猜词还是聊天
func handleText(g *Gateway, _ context.Context, c *client, msg *network.Message) error {
	var req network.TextRequest
	if err := bind(msg, &req); err != nil {
		return err
	}
	return g.withRoom(c, func(r *room.Room) error { return r.SendMessage(c.player.ID, req.Text) })
}

func handleCanvasSync(g *Gateway, _ context.Context, c *client, _ *network.Message) error {
	return g.withRoom(c, func(r *room.Room) error { return r.CanvasSync(c.player.ID) })
}

func handleMobileEvent(g *Gateway, _ context.Context, c *client, msg *network.Message) error {
	var req network.MobileEventRequest
	if err := bind(msg, &req); err != nil {
		return err
	}
	switch req.Type {
	case network.MobileAppBackground, network.MobileAppForeground, network.MobileNetworkChange, network.MobileLowBattery:
	default:
		return apperr.Newf(apperr.InvalidMessage, "unknown mobile event %q", req.Type)
	}
	c.tuneMu.Lock()
	hints, changed := c.sess.Tuner.MobileEvent(req.Type, req.Payload)
	c.tuneMu.Unlock()
	if changed {
		g.applyHints(c, hints, 0)
	}
	return nil
}

func handleConnectionQuality(g *Gateway, _ context.Context, c *client, msg *network.Message) error {
	var req network.ConnectionQualityRequest
	if err := bind(msg, &req); err != nil {
		return err
	}
	if req.RTTMillis < 0 || req.PacketLoss < 0 || req.PacketLoss > 1 {
		return apperr.New(apperr.InvalidMessage, "quality sample out of range")
	}
	if req.BandwidthKbps > 0 {
		q := c.player.Quality()
		q.BandwidthKbps = req.BandwidthKbps
		c.player.SetQuality(q)
	}
	g.observe(c, time.Duration(req.RTTMillis)*time.Millisecond, req.PacketLoss)
	return nil
}

func handlePing(g *Gateway, _ context.Context, c *client, msg *network.Message) error {
	var req network.PingRequest
	if len(msg.Data) > 0 {
		if err := bind(msg, &req); err != nil {
			return err
		}
	}
	return c.conn.Send(network.MustMessage(network.EventPong, network.PongPayload{
		Timestamp:  req.Timestamp,
		ServerTime: g.clock().UnixMilli(),
	}))
}

// observe 处理一次延迟采样：心跳 pong 或客户端上报
func (g *Gateway) observe(c *client, rtt time.Duration, loss float64) {
	c.tuneMu.Lock()
	hints, changed := c.sess.Tuner.Observe(rtt, loss)
	c.tuneMu.Unlock()
	if changed {
		g.applyHints(c, hints, rtt)
		return
	}
	g.sessions.ApplyHints(c.player, hints, rtt)
}

func (g *Gateway) applyHints(c *client, h session.Hints, rtt time.Duration) {
	g.sessions.ApplyHints(c.player, h, rtt)
	c.conn.SetHeartbeat(h.Heartbeat)
	c.conn.Send(network.MustMessage(network.EventMobileOptimization, network.MobileOptimizationPayload{
		HeartbeatIntervalMs: h.Heartbeat.Milliseconds(),
		CompressionLevel:    h.Compression,
		Quality:             h.Quality,
		Reason:              h.Reason,
	}))
	g.log.Debug("hints applied",
		zap.String("player", c.player.ID),
		zap.String("quality", string(h.Quality)),
		zap.Int("compression", h.Compression),
		zap.Duration("heartbeat", h.Heartbeat))
}
