package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dkeye/watchparty/internal/adapters/signal"
	"github.com/dkeye/watchparty/internal/app"
	"github.com/dkeye/watchparty/internal/config"
	"github.com/dkeye/watchparty/internal/domain"
	"github.com/dkeye/watchparty/internal/store"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const clientTokenKey = "ct"

// UserDirectory is the lookup half of the store, used by the profile endpoint.
type UserDirectory interface {
	LookupUser(ctx context.Context, uid domain.UserID) (domain.User, error)
}

// ClientTokenMiddleware keeps a random per-browser token in the cookie
// session so that log lines of one client can be correlated across
// reconnects.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		token, _ := sess.Get(clientTokenKey).(string)
		if token == "" {
			token = uuid.NewString()
			sess.Set(clientTokenKey, token)
			if err := sess.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save client token")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("module", "adapters.http").
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client", c.GetString("client_token")).
			Msg("request")
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, srv *app.Server, users UserDirectory) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Mode == "debug" {
		r.Use(RequestLogger())
	}

	secret := cfg.Secret
	if secret == "" {
		secret = uuid.NewString()
		log.Warn().Str("module", "adapters.http").Msg("no secret configured, cookie sessions use an ephemeral key")
	}
	cookieStore := cookie.NewStore([]byte(secret))
	cookieStore.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("WatchPartySessions", cookieStore))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": srv.ConnCount()})
	})

	ctrl := signal.NewSignalWSController(srv, cfg.WS, cfg.Secret)
	r.GET(cfg.WS.Path, func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})

	api := r.Group("/api")
	api.GET("/users/:id", handleUser(users))
	api.GET("/sessions/:id/participants", handleParticipants(srv))

	log.Info().Str("module", "adapters.http").Str("ws", cfg.WS.Path).Msg("router setup")
	return r
}

func handleUser(users UserDirectory) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		u, err := users.LookupUser(c.Request.Context(), domain.UserID(id))
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Int64("user", id).Msg("lookup user")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

func handleParticipants(srv *app.Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"sessionId":    id,
			"participants": srv.Participants(domain.SessionID(id)),
		})
	}
}
