// Command tracking-board shows every tracked rider in the terminal, fed by
// the live tracking websocket.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"delivery/internal/board"
	"delivery/internal/domain"
	"delivery/internal/middleware"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "tracking server base URL")
	actorID := flag.String("actor", "dispatch-board", "actor id sent with the subscription")
	role := flag.String("role", string(domain.RoleAdmin), "actor role sent with the subscription")
	flag.Parse()

	u, err := liveURL(*server)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	header := http.Header{}
	header.Set(middleware.ActorIDHeader, *actorID)
	header.Set(middleware.ActorRoleHeader, *role)

	conn, resp, err := websocket.DefaultDialer.DialContext(context.Background(), u, header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%s: %w", resp.Status, err)
		}
		fmt.Fprintf(os.Stderr, "Error connecting to %s: %v\n", u, err)
		os.Exit(1)
	}
	defer conn.Close()

	p := tea.NewProgram(board.New(board.WithSource(*server)), tea.WithAltScreen())
	go stream(conn, p)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running board: %v\n", err)
		os.Exit(1)
	}
}

func liveURL(server string) (string, error) {
	u, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path += "/v1/tracking/live/ws"
	return u.String(), nil
}

// stream forwards hub events to the program until the connection closes.
func stream(conn *websocket.Conn, p *tea.Program) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = nil
			}
			p.Send(board.StreamClosedMsg{Err: err})
			return
		}
		var ev domain.TrackingEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		p.Send(board.EventMsg(ev))
	}
}
