package main

import (
	"bufio"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wfunc/doodleserver/auth"
	"github.com/wfunc/doodleserver/network"
)

// 命令行调试客户端：每行一条命令，收到的推送原样打印
const usage = `commands:
  join                 join a public game
  create               create a private room
  code <CODE>          join a private room
  ready | unready      toggle ready
  start                start the game (host)
  pick <word>          select a word when drawing
  say <text>           chat or guess
  lobby <text>         lobby chat
  clear | undo         canvas controls
  sync                 request canvas state
  leave                leave the room
  ping
  quit`

func send(c *websocket.Conn, event string, payload interface{}) error {
	data, err := network.MustMessage(event, payload).Encode()
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, data)
}

func command(c *websocket.Conn, line string) error {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "join":
		return send(c, network.EventJoinPublicGame, nil)
	case "create":
		return send(c, network.EventCreatePrivateRoom, nil)
	case "code":
		return send(c, network.EventJoinPrivateRoom, network.JoinPrivateRoomRequest{Code: arg})
	case "ready", "unready":
		return send(c, network.EventPlayerReady, network.ReadyRequest{Ready: cmd == "ready"})
	case "start":
		return send(c, network.EventStartGame, nil)
	case "pick":
		return send(c, network.EventSelectWord, network.SelectWordRequest{Word: arg})
	case "say":
		return send(c, network.EventChatMessage, network.TextRequest{Text: arg})
	case "lobby":
		return send(c, network.EventLobbyChat, network.TextRequest{Text: arg})
	case "clear":
		return send(c, network.EventCanvasClear, nil)
	case "undo":
		return send(c, network.EventCanvasUndo, nil)
	case "sync":
		return send(c, network.EventRequestCanvasSync, nil)
	case "leave":
		return send(c, network.EventLeaveRoom, nil)
	case "ping":
		return send(c, network.EventPing, network.PingRequest{Timestamp: time.Now().UnixMilli()})
	default:
		log.Println(usage)
		return nil
	}
}

// shutdown 发送 close 帧，最多等一秒让服务端回应
func shutdown(c *websocket.Conn, done <-chan struct{}) {
	err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		log.Println("Write close error:", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}

func main() {
	addr := flag.String("addr", "localhost:8080", "server host:port")
	token := flag.String("token", "", "JWT; minted locally from -secret and -user when empty")
	secret := flag.String("secret", "change-me", "JWT secret used to mint a token")
	issuer := flag.String("issuer", "doodleserver", "JWT issuer used to mint a token")
	user := flag.String("user", "player1", "user id used to mint a token")
	flag.Parse()

	if *token == "" {
		t, err := auth.NewJWTManager(*secret, *issuer, time.Hour).Generate(*user)
		if err != nil {
			log.Fatalf("Mint token failed: %v", err)
		}
		*token = t
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			msg, err := network.DecodeMessage(message)
			if err != nil {
				log.Printf("Received invalid frame: %v", err)
				continue
			}
			log.Printf("<- %s %s", msg.Type, string(msg.Data))
		}
	}()

	if err := send(c, network.EventAuthenticate, network.AuthenticateRequest{Token: *token}); err != nil {
		log.Println("Write error:", err)
		return
	}
	log.Println("Client started. Type 'help' for commands.")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	// Write loop
	for {
		select {
		case <-done:
			return
		case line, ok := <-lines:
			if !ok || line == "quit" {
				shutdown(c, done)
				return
			}
			if line == "" {
				continue
			}
			if line == "help" {
				log.Println(usage)
				continue
			}
			if err := command(c, line); err != nil {
				log.Println("Write error:", err)
				return
			}
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			shutdown(c, done)
			return
		}
	}
}
