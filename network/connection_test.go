package network

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serve upgrades a single connection and hands the wrapped server side to fn.
func serve(t *testing.T, opts WSOptions, fn func(c *WSConnection)) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fn(NewWSConnection("c1", raw, opts))
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestMessageRoundTrip(t *testing.T) {
	msg, err := NewMessage(EventJoinPrivateRoom, JoinPrivateRoomRequest{Code: "ABC234"})
	require.NoError(t, err)
	data, err := msg.Encode()
	require.NoError(t, err)

	decoded, err := DecodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, EventJoinPrivateRoom, decoded.Type)

	var req JoinPrivateRoomRequest
	require.NoError(t, decoded.Bind(&req))
	assert.Equal(t, "ABC234", req.Code)
}

func TestDecodeMessageRejectsMissingType(t *testing.T) {
	_, err := DecodeMessage([]byte(`{"data":{}}`))
	assert.Error(t, err)
	_, err = DecodeMessage([]byte(`not json`))
	assert.Error(t, err)

	msg := &Message{Type: EventStartGame}
	assert.Error(t, msg.Bind(&struct{}{}))
}

func TestErrorMessageHidesInternalText(t *testing.T) {
	msg := ErrorMessage(assert.AnError)
	assert.Equal(t, EventError, msg.Type)
	assert.NotContains(t, string(msg.Data), assert.AnError.Error())
	assert.Contains(t, string(msg.Data), "INTERNAL_ERROR")
}

func TestWSConnectionSendAndRead(t *testing.T) {
	received := make(chan *Message, 1)
	client := serve(t, WSOptions{}, func(c *WSConnection) {
		require.NoError(t, c.Send(MustMessage(EventPong, PongPayload{Timestamp: 42})))
		msg, err := c.ReadMessage()
		if err == nil {
			received <- msg
		}
	})

	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	msg, err := DecodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, EventPong, msg.Type)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","data":{"timestamp":7}}`)))
	select {
	case got := <-received:
		assert.Equal(t, EventPing, got.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not read the message")
	}
}

func TestWSConnectionFlushesBeforeClose(t *testing.T) {
	client := serve(t, WSOptions{}, func(c *WSConnection) {
		c.Send(MustMessage(EventError, ErrorPayload{Code: "AUTHENTICATION_FAILED", Message: "authentication failed"}))
		c.Close(websocket.ClosePolicyViolation, "authentication failed")
		<-c.Done()
		assert.ErrorIs(t, c.SendRaw([]byte("{}")), ErrConnectionClosed)
	})

	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), "AUTHENTICATION_FAILED")

	_, _, err = client.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	assert.Equal(t, "authentication failed", closeErr.Text)
}

func TestWSConnectionMeasuresRTT(t *testing.T) {
	rtt := make(chan time.Duration, 1)
	client := serve(t, WSOptions{Heartbeat: 20 * time.Millisecond}, func(c *WSConnection) {
		c.OnRTT(func(d time.Duration) {
			select {
			case rtt <- d:
			default:
			}
		})
		go func() {
			for {
				if _, err := c.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})

	// the default client ping handler answers with a pong carrying the same payload
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case d := <-rtt:
		assert.GreaterOrEqual(t, d, time.Duration(0))
	case <-time.After(2 * time.Second):
		t.Fatal("no rtt sample")
	}
}
