package main

import (
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/champfund/donation-gateway/internal/config"
	gateway "github.com/champfund/donation-gateway/internal/gateways"
	"github.com/champfund/donation-gateway/internal/handlers"
	"github.com/champfund/donation-gateway/internal/queue"
	"github.com/champfund/donation-gateway/internal/repository"
	"github.com/champfund/donation-gateway/internal/services"
	xhttp "github.com/champfund/donation-gateway/pkg/http"
	"github.com/champfund/donation-gateway/pkg/logger"
	"github.com/champfund/donation-gateway/pkg/pg"
	"github.com/champfund/donation-gateway/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	// transport (tcp for now)
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(time.Second * 15))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Router = xhttp.CreateDefaultRouter()

	readConf := pg.Config{
		User:     config.Get().PostgresReadUser,
		Host:     config.Get().PostgresReadHost,
		Port:     config.Get().PostgresReadPort,
		Password: config.Get().PostgresReadPassword,
		Database: config.Get().PostgresReadDatabase,
	}
	writeConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	pgDebug := false
	if config.Get().AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(readConf, writeConf, pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "default",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	reconcileQ, err := queue.NewQueue(redisAdap, queue.QueueConfig{
		Name:              config.Get().QueueName,
		ConsumerGroup:     config.Get().QueueConsumerGroup,
		ConsumerName:      config.Get().QueueConsumerName,
		MaxRetries:        config.Get().QueueMaxRetries,
		VisibilityTimeout: config.Get().QueueVisibilityTimeout,
		PollInterval:      config.Get().QueuePollInterval,
		BatchSize:         config.Get().QueueBatchSize,
		MaxLen:            config.Get().QueueMaxLen,
		EnableDLQ:         config.Get().QueueEnableDLQ,
	})
	if err != nil {
		logger.Error("failed creating queue", "error", err)
	}

	// Token caching is opt-in; without it every push fetches a fresh token.
	var tokens gateway.TokenCache
	if config.Get().DarajaTokenCacheEnabled {
		tokens = gateway.NewRedisTokenCache(redisAdap, config.Get().DarajaTokenCacheKey)
	}

	darajaClient, err := gateway.NewClient(&gateway.Config{
		ConsumerKey:    config.Get().DarajaConsumerKey,
		ConsumerSecret: config.Get().DarajaConsumerSecret,
		BaseURL:        config.Get().DarajaBaseURL,
		Shortcode:      config.Get().DarajaShortcode,
		Passkey:        config.Get().DarajaPasskey,
		CallbackURL:    config.Get().DarajaCallbackURL,
		Timeout:        config.Get().DarajaTimeout,
	}, tokens)
	if err != nil {
		logger.Error("failed creating daraja client", "error", err)
		return
	}

	donationRepo := repository.NewDonationRepository(db)
	paymentLogRepo := repository.NewPaymentLogRepository(db)

	// services
	donationService := services.NewDonationService(donationRepo, darajaClient)
	callbackService := services.NewCallbackService(paymentLogRepo, reconcileQ)
	healthService := services.NewHealthService()

	// v1 handlers
	donationHandler := handlers.NewDonationHandler(donationService)
	callbackHandler := handlers.NewCallbackHandler(callbackService)
	healthHandler := handlers.NewHealthHandler(healthService)

	g := s.Router.Group("/api/v1")
	handlers.RegisterDonationRoutes(g, donationHandler)
	handlers.RegisterCallbackRoutes(g, callbackHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)

	// Create new server
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Kill)

	go func() {
		var err = s.ListenAndServe(config.Get().HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	select {
	case <-c:
		s.Shutdown()
	}
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
