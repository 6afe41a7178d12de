// Package server exposes the tabletop over HTTP, websockets and gRPC.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/magefree/tabletop-server/internal/room"
	"github.com/magefree/tabletop-server/internal/zone"
	"go.uber.org/zap"
)

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
}

// RoomDetail is the public view of one room returned by GET /api/rooms/:id.
// It never includes zone contents.
type RoomDetail struct {
	room.Summary
	Players            []room.Member          `json:"players"`
	GameState          room.GameState         `json:"gameState"`
	ZoneCounts         map[string]zone.Counts `json:"zoneCounts"`
	OnTurnPlayer       *room.Member           `json:"onTurnPlayer"`
	PreviousTurnPlayer *room.Member           `json:"previousTurnPlayer"`
	Seats              room.Seats             `json:"seats"`
}

// NewRouter builds the HTTP surface: diagnostics under /api and the
// websocket endpoint at /ws.
func NewRouter(mode string, registry *room.Registry, hub *Hub, logger *zap.Logger) *gin.Engine {
	if mode != "" {
		gin.SetMode(mode)
	}

	r := gin.New()
	r.Use(requestLogger(logger), gin.Recovery())

	api := r.Group("/api")
	api.GET("/health", healthHandler(registry, hub))
	api.GET("/rooms", listRoomsHandler(registry))
	api.GET("/rooms/:id", roomDetailHandler(registry))

	r.GET("/ws", hub.ServeWS)

	return r
}

func healthHandler(registry *room.Registry, hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
			Rooms:       registry.Count(),
			Connections: hub.ConnectionCount(),
		})
	}
}

func listRoomsHandler(registry *room.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, registry.List())
	}
}

func roomDetailHandler(registry *room.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		rm, ok := registry.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}

		detail := RoomDetail{
			Summary:    rm.Summary(),
			Players:    rm.Members(),
			GameState:  rm.GameState(),
			ZoneCounts: rm.ZoneCounts(),
			Seats:      rm.PreviewSeats(),
		}
		if m, ok := rm.OnTurnPlayer(); ok {
			detail.OnTurnPlayer = &m
		}
		if m, ok := rm.PreviousTurnPlayer(); ok {
			detail.PreviousTurnPlayer = &m
		}
		c.JSON(http.StatusOK, detail)
	}
}

// requestLogger logs one line per request through zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			logger.Warn("http request failed", append(fields, zap.String("errors", c.Errors.String()))...)
			return
		}
		logger.Debug("http request", fields...)
	}
}
