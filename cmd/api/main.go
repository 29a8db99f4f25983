package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"

	"github.com/convia-ai/convia/internal/api/router"
	"github.com/convia-ai/convia/internal/appointments"
	"github.com/convia-ai/convia/internal/availability"
	"github.com/convia-ai/convia/internal/buffer"
	appconfig "github.com/convia-ai/convia/internal/config"
	"github.com/convia-ai/convia/internal/conversation"
	"github.com/convia-ai/convia/internal/http/handlers"
	"github.com/convia-ai/convia/internal/messaging"
	"github.com/convia-ai/convia/internal/observability/metrics"
	"github.com/convia-ai/convia/internal/platform"
	"github.com/convia-ai/convia/internal/reminders"
	"github.com/convia-ai/convia/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting convia API server", "env", cfg.Env, "port", cfg.Port)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	coreMetrics := metrics.NewCoreMetrics(registry)

	// Redis backs conversation state and history.
	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	states := conversation.NewRedisStateStore(redisClient)
	history := conversation.NewRedisHistoryStore(redisClient)

	// LLM clients for the decision and formatting steps.
	openaiCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		openaiCfg.BaseURL = cfg.OpenAIBaseURL
	}
	llmClient := openai.NewClientWithConfig(openaiCfg)
	decider := conversation.NewOpenAIDecider(llmClient, cfg.DecisionModel,
		cfg.DecisionMaxTokens, float32(cfg.DecisionTemperature), logger)
	formatter := conversation.NewOpenAIFormatter(llmClient, cfg.FormatterModel,
		cfg.FormatterMaxTokens, float32(cfg.FormatterTemperature), logger)

	// Booking platform ports. Without a configured API the built-in
	// in-memory platform serves an empty catalog, which is enough for
	// local smoke runs.
	var (
		directory conversation.Directory
		calendar  conversation.Calendar
		booking   conversation.BookingSystem
	)
	if cfg.PlatformBaseURL != "" {
		client := platform.NewClient(cfg.PlatformBaseURL, cfg.PlatformAPIKey, logger)
		directory, calendar, booking = client, client, client
	} else {
		logger.Warn("no PLATFORM_BASE_URL configured, using in-memory platform")
		mem := platform.NewMemory()
		directory, calendar, booking = mem, mem, mem
	}

	search := availability.NewSearch(cfg.AvailabilityMaxAttempts, logger)
	tools := conversation.NewRegistry(directory, calendar, booking, search, logger)

	engine := conversation.NewEngine(decider, tools, formatter, states, history, logger, coreMetrics)

	sender, providerName, err := messaging.BuildSender(cfg.MessagingProvider, cfg.MessagingAPIKey, cfg.MessagingBaseURL, logger)
	if err != nil {
		logger.Error("failed to build messaging sender", "error", err)
		os.Exit(1)
	}
	logger.Info("outbound messaging configured", "provider", providerName)

	// The buffer hands debounced batches to the engine; replies go straight
	// back out through the messaging provider.
	buf := buffer.New(cfg.BufferTimeout, logger, coreMetrics)
	buf.OnFlush(func(key buffer.Key, msg buffer.Message) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		body := msg.Body
		if msg.Type != buffer.TypeText && body == "" {
			body = "[" + string(msg.Type) + " message]"
		}

		convKey := conversation.Key{TenantID: key.TenantID, ParticipantID: key.ParticipantID}
		result, err := engine.RunTurn(ctx, convKey, body)
		if err != nil {
			logger.Error("turn failed", "conversation", convKey.ID(), "error", err)
			return
		}
		if result.Reply == "" {
			return
		}
		if _, err := sender.Send(ctx, key.ParticipantID, result.Reply, nil); err != nil {
			logger.Error("failed to send reply", "conversation", convKey.ID(), "error", err)
		}
	})

	// PostgreSQL backs appointments and notification records. Reminders
	// stay off when no database is configured.
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	}

	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	if cfg.RemindersEnabled && db != nil {
		tenants := make([]reminders.TenantConfig, 0, len(cfg.ReminderTenants))
		for _, id := range cfg.ReminderTenants {
			tenants = append(tenants, reminders.TenantConfig{
				TenantID:   id,
				Enabled:    true,
				LeadDays:   cfg.ReminderLeadDays,
				SendHour:   cfg.ReminderSendHour,
				Timezone:   cfg.ReminderTimezone,
				TemplateID: cfg.ReminderTemplateID,
			})
		}
		scheduler := reminders.NewScheduler(tenants,
			appointments.NewRepository(db),
			reminders.NewStore(db),
			sender, engine, logger, coreMetrics)
		go scheduler.Run(schedulerCtx, cfg.ReminderPollMinWait)
		logger.Info("reminder scheduler started", "tenants", len(tenants))
	}

	r := router.New(&router.Config{
		Logger:             logger,
		Webhooks:           handlers.NewWebhookMessagesHandler(buf, logger),
		AdminConversations: handlers.NewAdminConversationsHandler(buf, states, history, logger),
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		AdminAuthSecret:    cfg.AdminAuthSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		WebhookRateLimit:   cfg.WebhookRateLimit,
		WebhookBurst:       cfg.WebhookBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopScheduler()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Drain pending batches so buffered messages are not lost on deploy.
	buf.Drain()

	logger.Info("server stopped")
}
