package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"sendcash-backend/internal/bot"
	"sendcash-backend/internal/clients"
	"sendcash-backend/internal/config"
	"sendcash-backend/internal/db"
	"sendcash-backend/internal/events"
	"sendcash-backend/internal/handlers"
	"sendcash-backend/internal/repository"
	"sendcash-backend/internal/router"
	"sendcash-backend/internal/services"
	"sendcash-backend/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ServiceContainer owns every long-lived component. Nothing is global;
// cmd/sendcash builds one container per process.
type ServiceContainer struct {
	Config *config.Config
	Log    *logrus.Logger

	// Database
	DB *gorm.DB

	// Repositories
	UsernameRepo repository.UsernameRepository
	PaymentRepo  repository.PaymentRepository
	ReceiptRepo  repository.ReceiptRepository

	// External clients (nil when not configured)
	ChainClient    *clients.ChainClient
	NATSClient     *clients.NATSClient
	TelegramClient *clients.TelegramClient
	Transport      clients.Transport

	// Services
	Tokens           *config.TokenTable
	Formatter        *services.NotificationFormatter
	UsernameService  *services.UsernameService
	PaymentService   *services.PaymentService
	PaymentFeed      *services.PaymentFeed
	SchedulerService *services.SchedulerService
	WatcherService   *services.PaymentWatcherService
	BotHandler       *bot.Handler

	server     *http.Server
	cancelBot  context.CancelFunc
	closeOnce  sync.Once
	background sync.WaitGroup
}

// NewLogger builds the process logger from log.level and log.format
func NewLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// NewServiceContainer opens the database and wires all components.
// Optional integrations (registry, NATS, Telegram) degrade with a warning.
func NewServiceContainer(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*ServiceContainer, error) {
	c := &ServiceContainer{Config: cfg, Log: logger}

	database, err := db.Open(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	c.DB = database

	c.initRepositories()
	c.initClients(ctx)
	if err := c.initServices(); err != nil {
		c.Close()
		return nil, err
	}

	logger.Info("✅ Service container initialized")
	return c, nil
}

// checkChainID warns when the RPC serves a different network than configured
func (c *ServiceContainer) checkChainID(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, c.Config.CallTimeout())
	defer cancel()

	want := c.Config.Blockchain.ChainID
	got, err := c.ChainClient.ChainID(callCtx)
	fields := logrus.Fields{
		"network":  utils.GlobalChainRegistry.ChainName(want),
		"chain_id": want,
	}
	if err != nil {
		c.Log.WithFields(fields).WithError(err).Warn("⚠️ could not read chain ID from RPC")
		return
	}
	if got.Int64() != want {
		fields["rpc_chain_id"] = got.Int64()
		c.Log.WithFields(fields).Warn("⚠️ RPC chain ID does not match configuration")
		return
	}
	c.Log.WithFields(fields).Info("✅ Chain RPC connected")
}

func (c *ServiceContainer) initRepositories() {
	c.UsernameRepo = repository.NewUsernameRepository(c.DB)
	c.PaymentRepo = repository.NewPaymentRepository(c.DB)
	c.ReceiptRepo = repository.NewReceiptRepository(c.DB)
}

func (c *ServiceContainer) initClients(ctx context.Context) {
	cfg := c.Config

	chainClient, err := clients.NewChainClient(ctx, cfg.Blockchain.RPCURL)
	if err != nil {
		c.Log.WithError(err).Warn("⚠️ chain RPC unavailable, registry fallback and watcher disabled")
	} else {
		c.ChainClient = chainClient
		c.checkChainID(ctx)
	}

	if cfg.NATS.URL != "" {
		natsClient, err := clients.NewNATSClient(cfg.NATS.URL, time.Duration(cfg.NATS.Timeout)*time.Second, c.Log)
		if err != nil {
			c.Log.WithError(err).Warn("⚠️ NATS unavailable, payment events will not be published")
		} else {
			c.NATSClient = natsClient
		}
	}

	c.Transport = clients.LogTransport{Log: c.Log}
	if cfg.Telegram.Enabled {
		tg, err := clients.NewTelegramClient(cfg.Telegram.BotToken, cfg.Telegram.Debug)
		if err != nil {
			c.Log.WithError(err).Warn("⚠️ Telegram bot unavailable, messages will only be logged")
		} else {
			c.TelegramClient = tg
			c.Transport = tg
			c.Log.WithField("bot", tg.BotUsername()).Info("✅ Telegram bot authorized")
		}
	}
}

func (c *ServiceContainer) initServices() error {
	cfg := c.Config

	// interfaces stay nil unless the concrete client exists
	var registry clients.RegistryClient
	var chain clients.ChainReader
	if c.ChainClient != nil {
		chain = c.ChainClient
		if cfg.Blockchain.UsernameRegistry != "" {
			rc, err := clients.NewUsernameRegistryClient(c.ChainClient, cfg.Blockchain.UsernameRegistry, cfg.CallTimeout())
			if err != nil {
				return err
			}
			registry = rc
		}
	}

	c.Tokens = config.NewTokenTable(cfg.Tokens)
	c.Formatter = services.NewNotificationFormatter(c.Tokens, cfg.Blockchain.ExplorerTxURL)
	c.UsernameService = services.NewUsernameService(c.UsernameRepo, registry, c.Log)

	c.PaymentFeed = services.NewPaymentFeed()
	sinks := []services.PaymentEventSink{c.PaymentFeed}
	if c.NATSClient != nil {
		sinks = append(sinks, events.NewNATSPaymentPublisher(c.NATSClient, cfg.NATS.Subject))
	}
	c.PaymentService = services.NewPaymentService(
		c.PaymentRepo, c.ReceiptRepo, c.UsernameService, chain, cfg.Receipt.BaseURL, c.Log, sinks...,
	)

	c.SchedulerService = services.NewSchedulerService(
		c.PaymentRepo, c.UsernameService, c.Formatter, c.Transport,
		services.SchedulerOptions{
			Interval:         cfg.SchedulerInterval(),
			PendingThreshold: time.Duration(cfg.Scheduler.PendingThreshold) * time.Second,
			RemindEvery:      time.Duration(cfg.Scheduler.RemindEvery) * time.Second,
			MaxReminders:     cfg.Scheduler.MaxReminders,
			BatchSize:        cfg.Scheduler.BatchSize,
		},
		c.Log,
	)
	c.SchedulerService.SetReconciler(c.PaymentService)

	if cfg.Watcher.Enabled && chain != nil {
		watcher, err := services.NewPaymentWatcherService(chain, c.PaymentService, services.WatcherOptions{
			Contract:      cfg.Blockchain.SendCash,
			Interval:      time.Duration(cfg.Watcher.Interval) * time.Second,
			BatchBlocks:   cfg.Watcher.BatchBlocks,
			Confirmations: cfg.Watcher.Confirmations,
			StartBlock:    cfg.Watcher.StartBlock,
		}, c.Log)
		if err != nil {
			return err
		}
		c.WatcherService = watcher
	}

	c.BotHandler = bot.NewHandler(c.Transport, c.UsernameService, c.PaymentService, c.Formatter, c.Log)
	return nil
}

// Router builds the HTTP engine over the container's services
func (c *ServiceContainer) Router() *gin.Engine {
	h := router.Handlers{
		Username:       handlers.NewUsernameHandler(c.UsernameService, c.Log),
		Payment:        handlers.NewPaymentHandler(c.PaymentService, c.Log),
		AdminAuth:      handlers.NewAdminAuthHandler(c.Config.Admin, c.Log),
		AdminScheduler: handlers.NewAdminSchedulerHandler(c.SchedulerService, c.Log),
		WebSocket:      handlers.NewWebSocketHandler(c.PaymentFeed, c.Log),
	}
	return router.SetupRouter(c.Config, h, c.Log)
}

// Start launches the background workers and the HTTP server
func (c *ServiceContainer) Start(ctx context.Context) error {
	if c.Config.Scheduler.Enabled {
		c.SchedulerService.Start(ctx)
	} else {
		c.Log.Info("⏸️ Scheduler disabled on this instance")
	}
	if c.WatcherService != nil {
		c.WatcherService.Start(ctx)
	}
	if c.TelegramClient != nil {
		botCtx, cancel := context.WithCancel(ctx)
		c.cancelBot = cancel
		updates := c.TelegramClient.Updates(60)
		c.background.Add(1)
		go func() {
			defer c.background.Done()
			c.BotHandler.Run(botCtx, updates)
		}()
	}

	c.server = &http.Server{
		Addr:              c.Config.Addr(),
		Handler:           c.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", c.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", c.server.Addr, err)
	}
	go func() {
		c.Log.WithField("addr", c.server.Addr).Info("🚀 HTTP server listening")
		if err := c.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.Log.WithError(err).Error("❌ HTTP server stopped")
		}
	}()
	return nil
}

// Shutdown stops intake first, then workers (waiting for in-flight ticks),
// then the HTTP server, then external connections
func (c *ServiceContainer) Shutdown(ctx context.Context) {
	c.Log.Info("🛑 Shutting down")

	if c.TelegramClient != nil {
		c.TelegramClient.StopUpdates()
	}
	if c.cancelBot != nil {
		c.cancelBot()
	}
	c.background.Wait()

	c.SchedulerService.Stop()
	if c.WatcherService != nil {
		c.WatcherService.Stop()
	}

	if c.server != nil {
		if err := c.server.Shutdown(ctx); err != nil {
			c.Log.WithError(err).Warn("HTTP server shutdown incomplete")
		}
	}

	c.Close()
}

// Close releases external connections; safe to call more than once
func (c *ServiceContainer) Close() {
	c.closeOnce.Do(func() {
		if c.NATSClient != nil {
			c.NATSClient.Close()
		}
		if c.ChainClient != nil {
			c.ChainClient.Close()
		}
		if c.DB != nil {
			if sqlDB, err := c.DB.DB(); err == nil {
				sqlDB.Close()
			}
		}
	})
}
