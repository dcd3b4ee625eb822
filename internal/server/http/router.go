// Package http wires the dev backend routes: REST, chat socket and call
// signaling socket.
package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/server/auth"
	"github.com/dkeye/Huddle/internal/server/chat"
	"github.com/dkeye/Huddle/internal/server/signal"
	"github.com/dkeye/Huddle/internal/server/store"
)

const (
	AppID      = "huddle-dev"
	userKey    = "user"
	roomPrefix = "room-"
)

type Deps struct {
	Issuer *auth.Issuer
	Store  *store.Store
	Chat   *chat.Server
	Signal *signal.Controller
}

// AuthMiddleware accepts the bearer token from the Authorization header or,
// for browser sockets, from the token query parameter.
func AuthMiddleware(iss *auth.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			token = c.Query("token")
		}
		claims, err := iss.Validate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		name := claims.Username
		if name == "" {
			name = "user-" + claims.UserID.String()
		}
		c.Set(userKey, &domain.User{ID: claims.UserID, Username: name})
		c.Next()
	}
}

func currentUser(c *gin.Context) *domain.User {
	u, _ := c.MustGet(userKey).(*domain.User)
	return u
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.Use(AuthMiddleware(deps.Issuer))

	api.GET("/conversations", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"conversations": deps.Chat.Hubs.List()})
	})

	api.GET("/conversations/:id/messages", func(c *gin.Context) {
		id := domain.ConversationID(c.Param("id"))
		c.JSON(http.StatusOK, deps.Store.History(id, currentUser(c).ID))
	})

	api.POST("/conversations/:id/read", func(c *gin.Context) {
		id := domain.ConversationID(c.Param("id"))
		deps.Store.MarkRead(id, currentUser(c).ID)
		c.Status(http.StatusNoContent)
	})

	api.POST("/calls/token", func(c *gin.Context) {
		var req struct {
			Room string `json:"room"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Room) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room"})
			return
		}
		user := currentUser(c)
		roomID := domain.RoomID(roomPrefix + strings.TrimSpace(req.Room))
		token, _, err := deps.Issuer.MintCall(roomID, user.ID, auth.DefaultCallTTL)
		if err != nil {
			log.Error().Err(err).Str("module", "server.http").Msg("mint call token")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"app_id":         AppID,
			"access_token":   token,
			"room_id":        roomID,
			"user_id":        user.ID,
			"server_address": signalAddress(c.Request),
		})
	})

	api.GET("/ws/chat/:id", func(c *gin.Context) {
		deps.Chat.Handle(ctx, c, domain.ConversationID(c.Param("id")), currentUser(c))
	})

	// Signaling authenticates with the call token on login, not here.
	r.GET("/api/ws/signal", func(c *gin.Context) {
		deps.Signal.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "server.http").Msg("router setup")
	return r
}

func signalAddress(r *http.Request) string {
	scheme := "ws"
	if r.TLS != nil {
		scheme = "wss"
	}
	return scheme + "://" + r.Host + "/api/ws/signal"
}
