package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/avelis/chatio/internal/adapters/signal"
	"github.com/avelis/chatio/internal/app"
	"github.com/avelis/chatio/internal/config"
	"github.com/avelis/chatio/internal/domain"
	"github.com/avelis/chatio/internal/store"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware hands every browser a stable opaque id; it becomes
// the connection id recorded on registration.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, st *store.Store, reg *app.Registry, ctl *signal.ChatController) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	cookieStore := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ChatIOSessions", cookieStore))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	r.GET("/healthz", func(c *gin.Context) {
		if err := st.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "store unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	// Read-side REST mirror of the users/rooms events.
	api.GET("/users", func(c *gin.Context) {
		roster, err := reg.ListUsers(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"users": roster})
	})

	api.GET("/rooms", func(c *gin.Context) {
		rooms, err := reg.ListRooms(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"rooms": rooms})
	})

	api.GET("/rooms/:room/users", func(c *gin.Context) {
		roster, err := reg.ListRoomMembers(c.Request.Context(), c.Param("room"))
		switch {
		case errors.Is(err, domain.ErrInvalidRoom):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room"})
			return
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"users": roster})
	})

	api.GET("/ws/chat", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("cid", c.GetString("client_token")).Msg("ws chat endpoint hit")
		ctl.HandleChat(ctx, c)
	})

	return r
}
