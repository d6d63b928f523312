package ws

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"cinesync/internal/gateway"
	"cinesync/internal/rooms"
)

type Handler struct {
	registry *rooms.Registry
	upgrader websocket.Upgrader
}

func NewHandler(registry *rooms.Registry) *Handler {
	return &Handler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrade may have partially written the response already;
		// writing an error here risks an EPIPE for nothing.
		log.Printf("websocket: upgrade failed: %v", err)
		return
	}

	sess := gateway.NewSession(h.registry, conn, r.RemoteAddr)
	sess.Start()
	defer sess.Close()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		sess.HandleMessage(data)
	}
}
