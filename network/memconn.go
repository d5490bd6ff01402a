package network

import (
	"net"
	"sync"
	"time"
)

// MemConnection is an in-process Connection. Inbound messages are pushed
// with Push; everything sent is kept for inspection.
type MemConnection struct {
	id        string
	inbound   chan *Message
	done      chan struct{}
	closeOnce sync.Once

	mu          sync.Mutex
	sent        []*Message
	heartbeat   time.Duration
	closeCode   int
	closeReason string
	onRTT       func(time.Duration)
}

func NewMemConnection(id string) *MemConnection {
	return &MemConnection{
		id:      id,
		inbound: make(chan *Message, 64),
		done:    make(chan struct{}),
	}
}

func (c *MemConnection) ID() string { return c.id }

func (c *MemConnection) Send(msg *Message) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	return nil
}

func (c *MemConnection) SendRaw(data []byte) error {
	msg, err := DecodeMessage(data)
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// Push queues a message for ReadMessage.
func (c *MemConnection) Push(msg *Message) {
	c.inbound <- msg
}

func (c *MemConnection) ReadMessage() (*Message, error) {
	select {
	case msg := <-c.inbound:
		return msg, nil
	case <-c.done:
		return nil, ErrConnectionClosed
	}
}

func (c *MemConnection) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeCode, c.closeReason = code, reason
		c.mu.Unlock()
		close(c.done)
	})
	return nil
}

func (c *MemConnection) RemoteAddr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }

func (c *MemConnection) SetHeartbeat(interval time.Duration) {
	c.mu.Lock()
	c.heartbeat = interval
	c.mu.Unlock()
}

func (c *MemConnection) OnRTT(fn func(time.Duration)) {
	c.mu.Lock()
	c.onRTT = fn
	c.mu.Unlock()
}

// SampleRTT simulates a pong arriving with the given round trip.
func (c *MemConnection) SampleRTT(rtt time.Duration) {
	c.mu.Lock()
	fn := c.onRTT
	c.mu.Unlock()
	if fn != nil {
		fn(rtt)
	}
}

func (c *MemConnection) Done() <-chan struct{} { return c.done }

func (c *MemConnection) Heartbeat() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heartbeat
}

func (c *MemConnection) Closed() (code int, reason string, closed bool) {
	select {
	case <-c.done:
		closed = true
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode, c.closeReason, closed
}

// Sent returns a copy of every message sent so far.
func (c *MemConnection) Sent() []*Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Message, len(c.sent))
	copy(out, c.sent)
	return out
}

// SentOf returns the sent messages of one event type.
func (c *MemConnection) SentOf(event string) []*Message {
	var out []*Message
	for _, m := range c.Sent() {
		if m.Type == event {
			out = append(out, m)
		}
	}
	return out
}

// Last returns the most recent message of the event type, or nil.
func (c *MemConnection) Last(event string) *Message {
	msgs := c.SentOf(event)
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

func (c *MemConnection) Reset() {
	c.mu.Lock()
	c.sent = nil
	c.mu.Unlock()
}
