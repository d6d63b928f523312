package hertzws

import (
	"context"
	"log"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/websocket"

	"cinesync/internal/gateway"
	"cinesync/internal/rooms"
)

type Handler struct {
	registry *rooms.Registry
	upgrader websocket.HertzUpgrader
}

func NewHandler(registry *rooms.Registry) *Handler {
	return &Handler{
		registry: registry,
		upgrader: websocket.HertzUpgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(ctx *app.RequestContext) bool {
				return true
			},
		},
	}
}

func (h *Handler) HandleWebSocket(c context.Context, ctx *app.RequestContext) {
	remote := ctx.ClientIP()

	err := h.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		sess := gateway.NewSession(h.registry, conn, remote)
		sess.Start()
		defer sess.Close()

		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
					log.Printf("websocket: read error: %v", err)
				}
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}
			sess.HandleMessage(data)
		}
	})
	if err != nil {
		log.Printf("websocket: upgrade failed: %v", err)
	}
}
