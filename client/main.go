package main

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	MsgTypeJoinRoom      = 101
	MsgTypePlayerMove    = 102
	MsgTypeCollectItem   = 103
	MsgTypeAttemptPuzzle = 104
	MsgTypeUseHint       = 105
	MsgTypeChat          = 106
)

var msgNames = map[uint16]string{
	301: "join_ack",
	302: "player_joined",
	303: "player_moved",
	304: "player_left",
	305: "inventory_updated",
	306: "puzzle_solved",
	307: "puzzle_failed",
	308: "escape_success",
	309: "hint_used",
	310: "receive_chat",
	311: "server_message",
}

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	packet := make([]byte, 4+len(data))
	binary.BigEndian.PutUint16(packet[0:2], msgID)
	binary.BigEndian.PutUint16(packet[2:4], uint16(len(data)))
	copy(packet[4:], data)

	return c.WriteMessage(websocket.BinaryMessage, packet)
}

func main() {
	addr := flag.String("addr", "localhost:5000", "server address")
	roomID := flag.String("room", "demo", "room to join")
	username := flag.String("name", "", "display name")
	flag.Parse()

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
			if len(message) < 4 {
				log.Printf("Received invalid packet of size %d", len(message))
				continue
			}
			msgID := binary.BigEndian.Uint16(message[0:2])
			data := message[4:]
			name := msgNames[msgID]
			if name == "" {
				name = strconv.Itoa(int(msgID))
			}
			log.Printf("<- %s: %s", name, string(data))
		}
	}()

	log.Printf("Joining room %q...", *roomID)
	join := map[string]string{"roomId": *roomID, "username": *username}
	if err := send(c, MsgTypeJoinRoom, join); err != nil {
		log.Println("Write error:", err)
		return
	}

	log.Println("Commands: attempt <type> [payload] | collect <item> | hint | chat <text> | move <x> <y> <z>")

	// Write loop
	reader := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		default:
			text, _ := reader.ReadString('\n')
			fields := strings.Fields(text)
			if len(fields) == 0 {
				continue
			}

			var msgID uint16
			var payload interface{}

			switch fields[0] {
			case "attempt":
				if len(fields) < 2 {
					log.Println("Usage: attempt <type> [payload]")
					continue
				}
				req := map[string]string{"roomId": *roomID, "puzzleType": fields[1]}
				if len(fields) > 2 {
					req["payload"] = fields[2]
				}
				msgID, payload = MsgTypeAttemptPuzzle, req
			case "collect":
				if len(fields) < 2 {
					log.Println("Usage: collect <item>")
					continue
				}
				msgID, payload = MsgTypeCollectItem, map[string]string{"roomId": *roomID, "itemId": fields[1]}
			case "hint":
				msgID, payload = MsgTypeUseHint, map[string]string{"roomId": *roomID}
			case "chat":
				msgID, payload = MsgTypeChat, map[string]string{"roomId": *roomID, "message": strings.Join(fields[1:], " ")}
			case "move":
				if len(fields) != 4 {
					log.Println("Usage: move <x> <y> <z>")
					continue
				}
				pos := [3]float64{}
				ok := true
				for i, f := range fields[1:] {
					v, err := strconv.ParseFloat(f, 64)
					if err != nil {
						ok = false
						break
					}
					pos[i] = v
				}
				if !ok {
					log.Println("Invalid coordinates")
					continue
				}
				msgID = MsgTypePlayerMove
				payload = map[string]interface{}{"roomId": *roomID, "position": pos, "rotation": [3]float64{}}
			default:
				log.Printf("Unknown command %q", fields[0])
				continue
			}

			if err := send(c, msgID, payload); err != nil {
				log.Println("Write error:", err)
				return
			}
		}
	}
}
