package router

import (
	"net/http"
	"strconv"
	"strings"

	"sendcash-backend/internal/config"
	"sendcash-backend/internal/handlers"
	"sendcash-backend/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Handlers everything the router mounts
type Handlers struct {
	Username       *handlers.UsernameHandler
	Payment        *handlers.PaymentHandler
	AdminAuth      *handlers.AdminAuthHandler
	AdminScheduler *handlers.AdminSchedulerHandler
	WebSocket      *handlers.WebSocketHandler
}

// corsMiddleware allowed origins come from config; empty or "*" allows all
func corsMiddleware(cfg config.CORSConfig, logger *logrus.Logger) gin.HandlerFunc {
	allowAll := len(cfg.AllowedOrigins) == 0
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 3600
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			if cfg.AllowCredentials {
				c.Header("Access-Control-Allow-Credentials", "true")
			}
		case origin != "":
			logger.WithFields(logrus.Fields{
				"request_origin": origin,
				"path":           c.Request.URL.Path,
				"method":         c.Request.Method,
			}).Warn("🚫 CORS: Request blocked - Origin not in whitelist")
		}

		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
			c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// SetupRouter builds the gin engine with all routes
func SetupRouter(cfg *config.Config, h Handlers, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(corsMiddleware(cfg.CORS, logger))

	r.GET("/health", handlers.HealthCheckHandler)
	r.GET("/ping", handlers.PingHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		username := api.Group("/username")
		username.GET("/:username", h.Username.GetUsernameHandler)
		username.GET("/by-address/:address", h.Username.GetUsernameByAddressHandler)
		username.POST("/register", h.Username.RegisterUsernameHandler)

		payment := api.Group("/payment")
		payment.GET("/:txHash", h.Payment.GetPaymentHandler)
		payment.POST("/receipt", h.Payment.CreateReceiptHandler)
		payment.POST("/store", h.Payment.StorePaymentHandler)
		payment.POST("/submit", h.Payment.SubmitPaymentHandler)

		api.GET("/transactions/:address", h.Payment.ListTransactionsHandler)
	}

	if h.AdminAuth != nil {
		ipGuard := middleware.NewLocalhostOnly(logger, cfg.Admin.AllowedIPs)
		adminAuth := middleware.NewAdminAuthMiddleware(h.AdminAuth, logger)

		admin := r.Group("/api/admin", ipGuard.Restrict())
		admin.POST("/login", h.AdminAuth.AdminLoginHandler)
		admin.POST("/totp/generate", h.AdminAuth.GenerateTOTPSecretHandler)

		if h.AdminScheduler != nil {
			protected := admin.Group("", adminAuth.RequireAdminAuth())
			protected.POST("/reminders/run", h.AdminScheduler.RunRemindersHandler)
			protected.GET("/scheduler/stats", h.AdminScheduler.SchedulerStatsHandler)
		}
	}

	if h.WebSocket != nil {
		r.GET("/ws/payments", h.WebSocket.HandlePaymentFeed)
	}

	return r
}
