package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Tree/internal/adapters/media"
	"github.com/dkeye/Tree/internal/adapters/signal"
	"github.com/dkeye/Tree/internal/app"
	"github.com/dkeye/Tree/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const sessionName = "TreeSessions"

// ClientTokenMiddleware keeps a stable per-browser token in the cookie
// session. It is only consulted when the identity fallback is "cookie".
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		token, _ := sess.Get(signal.ClientTokenKey).(string)
		if token == "" {
			token = uuid.NewString()
			sess.Set(signal.ClientTokenKey, token)
			if err := sess.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save client token")
			}
		}
		c.Set(signal.ClientTokenKey, token)
		c.Next()
	}
}

type Deps struct {
	Hub      *app.Hub
	Media    *media.Cache
	Gatherer prometheus.Gatherer
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

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions(sessionName, store))

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	ctrl := signal.NewSignalWSController(deps.Hub, signal.Options{
		ReadLimit:        cfg.ReadLimit,
		PingPeriod:       cfg.PingPeriod,
		PongWait:         cfg.PongWait,
		WriteWait:        cfg.WriteWait,
		SendBuffer:       cfg.SendBuffer,
		IdentityFallback: cfg.IdentityFallback,
	})
	ws := func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("remote", c.ClientIP()).Msg("ws endpoint hit")
		ctrl.HandleSignal(ctx, c)
	}
	r.GET("/ws", ClientTokenMiddleware(), ws)
	r.GET("/socket", ClientTokenMiddleware(), ws)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")

	// GET /api/decorations: current tree, oldest first
	api.GET("/decorations", func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.Hub.Snapshot())
	})

	// GET /api/stats: connected clients and tree fill
	api.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.Hub.Stats())
	})

	if deps.Media != nil {
		r.GET(cfg.MediaRoute, deps.Media.Handler())
		r.HEAD(cfg.MediaRoute, deps.Media.Handler())
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Bool("media", deps.Media != nil).Msg("router setup")
	return r
}
