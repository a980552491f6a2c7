package websocket

import (
	"encoding/json"
	"net/http"

	ws "github.com/coder/websocket"
)

// HandleWebSocket returns an HTTP handler that upgrades connections to WebSocket
// and runs them as Hub clients. Each new client first receives the message
// returned by greet.
func HandleWebSocket(hub *Hub, greet func() Message) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // the agent only listens for the local UI
		})
		if err != nil {
			hub.logger.Warn("websocket accept", "error", err)
			return
		}

		var greeting []byte
		if greet != nil {
			if greeting, err = json.Marshal(greet()); err != nil {
				hub.logger.Error("marshal greeting", "error", err)
				greeting = nil
			}
		}

		client := NewClient(hub, conn)
		client.Run(r.Context(), greeting)
	}
}
