// network/connection.go
package network

import (
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

// Connection 一个已建立的客户端连接。Send 可并发调用；ReadMessage 只能由一个 goroutine 调用。
type Connection interface {
	ID() string
	Send(msg *Message) error
	SendRaw(data []byte) error
	ReadMessage() (*Message, error)
	Close(code int, reason string) error
	RemoteAddr() net.Addr
	SetHeartbeat(interval time.Duration)
	OnRTT(fn func(rtt time.Duration))
	Done() <-chan struct{}
}

type WSOptions struct {
	SendBuffer     int
	WriteTimeout   time.Duration
	MaxMessageSize int64
	Heartbeat      time.Duration
}

// WSConnection wraps a gorilla connection with a buffered write pump. Only the
// pump writes data frames; control frames go through WriteControl, which
// gorilla allows concurrently.
type WSConnection struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	opts      WSOptions

	closeCode   int
	closeReason string

	heartbeat   atomic.Int64
	heartbeatCh chan time.Duration
	rttMu       sync.RWMutex
	onRTT       func(time.Duration)
}

func NewWSConnection(id string, conn *websocket.Conn, opts WSOptions) *WSConnection {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 25 * time.Second
	}
	c := &WSConnection{
		id:          id,
		conn:        conn,
		send:        make(chan []byte, opts.SendBuffer),
		done:        make(chan struct{}),
		opts:        opts,
		heartbeatCh: make(chan time.Duration, 1),
	}
	c.heartbeat.Store(int64(opts.Heartbeat))

	if opts.MaxMessageSize > 0 {
		conn.SetReadLimit(opts.MaxMessageSize)
	}
	conn.SetReadDeadline(time.Now().Add(opts.Heartbeat * 2))
	conn.SetPongHandler(c.handlePong)

	go c.writePump()
	return c
}

func (c *WSConnection) ID() string { return c.id }

func (c *WSConnection) Done() <-chan struct{} { return c.done }

func (c *WSConnection) Send(msg *Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	return c.SendRaw(data)
}

// SendRaw enqueues an already encoded frame. A client that cannot keep up
// with its buffer is disconnected rather than allowed to stall a room.
func (c *WSConnection) SendRaw(data []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		c.Close(websocket.ClosePolicyViolation, "send buffer full")
		return ErrSendBufferFull
	}
}

func (c *WSConnection) ReadMessage() (*Message, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.Close(websocket.CloseNormalClosure, "")
			return nil, err
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		// any inbound frame proves liveness
		c.conn.SetReadDeadline(time.Now().Add(time.Duration(c.heartbeat.Load()) * 2))
		return DecodeMessage(data)
	}
}

// SetHeartbeat changes the ping cadence; the read deadline follows at twice the interval.
func (c *WSConnection) SetHeartbeat(interval time.Duration) {
	if interval <= 0 {
		return
	}
	c.heartbeat.Store(int64(interval))
	select {
	case c.heartbeatCh <- interval:
	default:
		// pump has a pending change; drain and replace
		select {
		case <-c.heartbeatCh:
		default:
		}
		c.heartbeatCh <- interval
	}
}

func (c *WSConnection) OnRTT(fn func(rtt time.Duration)) {
	c.rttMu.Lock()
	c.onRTT = fn
	c.rttMu.Unlock()
}

func (c *WSConnection) handlePong(appData string) error {
	c.conn.SetReadDeadline(time.Now().Add(time.Duration(c.heartbeat.Load()) * 2))
	if len(appData) != 8 {
		return nil
	}
	sent := time.Unix(0, int64(binary.BigEndian.Uint64([]byte(appData))))
	c.rttMu.RLock()
	fn := c.onRTT
	c.rttMu.RUnlock()
	if fn != nil {
		fn(time.Since(sent))
	}
	return nil
}

// Close stops the connection. Frames already queued are flushed by the write
// pump before the close frame goes out.
func (c *WSConnection) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		c.closeCode, c.closeReason = code, reason
		close(c.done)
	})
	return nil
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *WSConnection) writePump() {
	ticker := time.NewTicker(time.Duration(c.heartbeat.Load()))
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.flush()
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(c.closeCode, c.closeReason),
				time.Now().Add(time.Second))
			return
		case interval := <-c.heartbeatCh:
			ticker.Reset(interval)
		case data := <-c.send:
			if err := c.write(data); err != nil {
				c.Close(websocket.CloseGoingAway, "")
				return
			}
		case <-ticker.C:
			stamp := make([]byte, 8)
			binary.BigEndian.PutUint64(stamp, uint64(time.Now().UnixNano()))
			if err := c.conn.WriteControl(websocket.PingMessage, stamp, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				c.Close(websocket.CloseGoingAway, "")
				return
			}
		}
	}
}

func (c *WSConnection) write(data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *WSConnection) flush() {
	for {
		select {
		case data := <-c.send:
			if c.write(data) != nil {
				return
			}
		default:
			return
		}
	}
}
