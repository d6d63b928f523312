package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"cinesync/internal/protocol"
	"cinesync/internal/rooms"
	"cinesync/internal/ws"
)

// Server is the net/http flavour of the engine: echo for the inspection
// endpoints, gorilla/websocket for the synchronization channel.
type Server struct {
	registry *rooms.Registry
	ws       *ws.Handler
	router   *echo.Echo
}

func NewServer(registry *rooms.Registry) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	server := &Server{
		registry: registry,
		ws:       ws.NewHandler(registry),
		router:   e,
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.GET("/api/rooms", server.handleListRooms)
	e.GET("/api/rooms/:roomId", server.handleGetRoom)
	e.GET("/ws", server.handleWebSocket)

	return server
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleListRooms(c echo.Context) error {
	return c.JSON(http.StatusOK, s.registry.List())
}

func (s *Server) handleGetRoom(c echo.Context) error {
	roomID := c.Param("roomId")
	status, err := s.registry.Snapshot(roomID)
	if err != nil {
		if errors.Is(err, rooms.ErrRoomNotFound) {
			return respondError(c, http.StatusNotFound, protocol.CodeRoomNotFound, err.Error())
		}
		return respondError(c, http.StatusInternalServerError, "snapshot_failed", err.Error())
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) handleWebSocket(c echo.Context) error {
	// The websocket handler takes full control of the connection; return
	// nil so echo does not write anything after it.
	s.ws.ServeHTTP(c.Response(), c.Request())
	return nil
}

func respondError(c echo.Context, status int, code, message string) error {
	return c.JSON(status, protocol.Envelope{
		Event: protocol.EventError,
		Data:  protocol.ErrorPayload{Code: code, Message: message},
	})
}
