package http

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/sujalbistaa/entrenous/internal/config"
	"github.com/sujalbistaa/entrenous/internal/models"
)

const (
	adminStreamPath = "/admin/stream"

	limiterSweepInterval = 10 * time.Minute
	limiterMaxIdle       = 30 * time.Minute
)

// SetupRoutes configures all application routes and middleware. The limiter
// janitor stops when ctx is done.
func SetupRoutes(ctx context.Context, router *gin.Engine, env *Env, cfg *config.Config) {
	// --- Middleware ---
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(GinLoggerMiddleware())
	router.Use(OutcomeMiddleware(env.Admin))
	// Ban Guard runs before anything that touches a service.
	router.Use(BanGuardMiddleware(env.Bans, env.Admin))
	router.Use(SecurityHeadersMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.CORSOrigin},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Token", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: cfg.CORSOrigin != "*",
	}))
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{adminStreamPath})))

	// --- Rate Limiter Setup ---
	limiter := NewIPRateLimiter(rate.Limit(cfg.WriteRateRPS), cfg.WriteRateBurst)
	go limiter.RunJanitor(ctx, limiterSweepInterval, limiterMaxIdle)
	write := RateLimitMiddleware(limiter, env.Admin)

	bearer := BearerAuthMiddleware(env.Auth)
	adminOnly := AdminAuthMiddleware(cfg.AdminToken)

	router.GET("/health", env.Health)

	// --- Auth ---
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", write, env.Register)
		authGroup.POST("/login", write, env.Login)
		authGroup.POST("/password", bearer, write, env.ChangePassword)
	}

	// --- User routes ---
	user := router.Group("/", bearer)
	{
		user.GET("/feed", env.GetFeed)
		user.POST("/posts", write, env.CreatePost)
		user.GET("/posts/:id/replies", env.GetReplies)
		user.POST("/posts/:id/reply", write, env.CreateReply)
		user.POST("/posts/:id/kindness", write, env.Vote(models.TargetPost))
		user.POST("/replies/:id/kindness", write, env.Vote(models.TargetReply))

		user.POST("/moderation/flag", write, env.SubmitFlag)

		user.POST("/dm/start_from_post", write, env.StartConversation)
		user.GET("/dm/list", env.ListConversations)
		user.GET("/dm/:id/messages", env.GetMessages)
		user.POST("/dm/:id/send", write, env.SendMessage)
	}

	// --- Admin routes ---
	mod := router.Group("/moderation", adminOnly)
	{
		mod.GET("/queue", env.ModerationQueue)
		mod.POST("/flags/:id/review", env.ReviewFlag)
		mod.POST("/ban/ip", env.BanIP)
		mod.DELETE("/ban/ip", env.LiftBan)
		mod.GET("/bans", env.ListBans)
	}
	adm := router.Group("/admin", adminOnly)
	{
		adm.GET("/overview", env.Overview)
		adm.GET("/content/:type/:id", env.ContentInfo)
		adm.GET("/metrics", env.PrometheusMetrics)
		adm.GET("/stream", env.AdminStream)
	}
}
