package webserver

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stake-plus/govdecisions/src/channels"
	"github.com/stake-plus/govdecisions/src/decisions"
	"github.com/stake-plus/govdecisions/src/decisions/oracle"
	"github.com/stake-plus/govdecisions/src/metrics"
)

// Deps are the collaborators the HTTP surface calls into.
type Deps struct {
	Service     *decisions.Service
	Channels    *channels.Store
	Metrics     *metrics.Metrics
	Clock       oracle.Clock
	JWTSecret   []byte
	CORSOrigins []string
	// RateLimit is requests per minute per caller; zero disables limiting.
	RateLimit int
}

// New builds the gin engine. ctx bounds background work such as the rate
// limiter's cleanup.
func New(ctx context.Context, deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), requestMetrics(deps.Metrics))

	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))

	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	clock := deps.Clock
	if clock == nil {
		clock = oracle.SystemClock{}
	}
	h := handlers{svc: deps.Service, engine: deps.Service.Engine(), channels: deps.Channels, clock: clock}

	v1 := r.Group("/v1")
	v1.Use(JWTMiddleware(deps.JWTSecret))
	if deps.RateLimit > 0 {
		v1.Use(RateLimitMiddleware(NewRateLimiter(ctx, deps.RateLimit, time.Minute)))
	}
	{
		v1.POST("/decisions", h.propose)
		v1.GET("/decisions/:id", h.get)
		v1.POST("/decisions/:id/votes", h.castVote)
		v1.GET("/decisions/:id/votes", h.votes)
		v1.GET("/decisions/:id/votes/me", h.myVote)

		v1.GET("/channels/:channel/decisions", h.list)
		v1.GET("/channels/:channel/decisions/search", h.search)
		v1.GET("/channels/:channel/summary", h.summary)
		v1.GET("/channels/:channel/config", h.getConfig)
		v1.PUT("/channels/:channel/config", h.putConfig)
		v1.GET("/channels/:channel/config/history", h.configHistory)
		v1.POST("/channels/:channel/member-left", h.memberLeft)
	}

	admin := v1.Group("/admin")
	admin.Use(AdminOnly())
	{
		admin.POST("/sweep", h.sweep)
		admin.POST("/decisions/:id/close", h.close)
	}

	return r
}

func requestMetrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()))
	}
}
