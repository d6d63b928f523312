package hertzapi

import (
	"context"
	"errors"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"cinesync/internal/hertzws"
	"cinesync/internal/protocol"
	"cinesync/internal/rooms"
)

// NewRouter mounts the hertz flavour of the engine on h.
func NewRouter(h *server.Hertz, registry *rooms.Registry) *server.Hertz {
	wsHandler := hertzws.NewHandler(registry)

	h.Use(recoveryMiddleware())

	h.GET("/healthz", func(c context.Context, ctx *app.RequestContext) {
		ctx.String(consts.StatusOK, "ok")
	})

	api := h.Group("/api")
	{
		roomsGroup := api.Group("/rooms")
		{
			roomsGroup.GET("", handleListRooms(registry))
			roomsGroup.GET("/:roomId", handleGetRoom(registry))
		}
	}

	h.GET("/ws", wsHandler.HandleWebSocket)

	return h
}

func recoveryMiddleware() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		defer func() {
			if err := recover(); err != nil {
				ctx.String(consts.StatusInternalServerError, "Internal Server Error")
			}
		}()
		ctx.Next(c)
	}
}

func handleListRooms(registry *rooms.Registry) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, registry.List())
	}
}

func handleGetRoom(registry *rooms.Registry) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		roomID := ctx.Param("roomId")
		status, err := registry.Snapshot(roomID)
		if err != nil {
			if errors.Is(err, rooms.ErrRoomNotFound) {
				respondError(ctx, consts.StatusNotFound, protocol.CodeRoomNotFound, err.Error())
				return
			}
			respondError(ctx, consts.StatusInternalServerError, "snapshot_failed", err.Error())
			return
		}
		ctx.JSON(consts.StatusOK, status)
	}
}

func respondError(ctx *app.RequestContext, status int, code, message string) {
	ctx.JSON(status, protocol.Envelope{
		Event: protocol.EventError,
		Data:  protocol.ErrorPayload{Code: code, Message: message},
	})
}
