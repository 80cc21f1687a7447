package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TokenResponse mirrors the Daraja OAuth response shape. ExpiresIn is a
// string on the real wire.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// STKPushRequest is the processrequest payload the gateway accepts.
type STKPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode" binding:"required"`
	Password          string `json:"Password" binding:"required"`
	Timestamp         string `json:"Timestamp" binding:"required"`
	TransactionType   string `json:"TransactionType" binding:"required"`
	Amount            int64  `json:"Amount" binding:"required"`
	PartyA            string `json:"PartyA" binding:"required"`
	PartyB            string `json:"PartyB" binding:"required"`
	PhoneNumber       string `json:"PhoneNumber" binding:"required"`
	CallBackURL       string `json:"CallBackURL" binding:"required"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// STKPushResponse is the synchronous half of the push exchange.
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// MockGateway simulates the Daraja STK push flow: it accepts pushes and
// later delivers the asynchronous result callback.
type MockGateway struct {
	successRate    float64
	minDelay       time.Duration
	maxDelay       time.Duration
	consumerKey    string
	consumerSecret string
	rng            *rand.Rand
	httpClient     *http.Client
}

// NewMockGateway creates a new mock gateway instance
func NewMockGateway(successRate float64, minDelay, maxDelay time.Duration, consumerKey, consumerSecret string) *MockGateway {
	return &MockGateway{
		successRate:    successRate,
		minDelay:       minDelay,
		maxDelay:       maxDelay,
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		httpClient:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *MockGateway) randomDelay() time.Duration {
	delta := g.maxDelay - g.minDelay
	if delta <= 0 {
		return g.minDelay
	}
	return g.minDelay + time.Duration(g.rng.Int63n(int64(delta)))
}

func (g *MockGateway) shouldSucceed() bool {
	return g.rng.Float64() < g.successRate
}

func (g *MockGateway) randomReceipt() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 10)
	for i := range b {
		b[i] = letters[g.rng.Intn(len(letters))]
	}
	return string(b)
}

// deliverCallback posts the asynchronous STK result to the push's callback
// URL after a simulated user-interaction delay.
func (g *MockGateway) deliverCallback(req *STKPushRequest, merchantID, checkoutID string) {
	delay := g.randomDelay()
	time.Sleep(delay)

	var callback map[string]any
	if g.shouldSucceed() {
		receipt := g.randomReceipt()
		callback = map[string]any{
			"Body": map[string]any{
				"stkCallback": map[string]any{
					"MerchantRequestID": merchantID,
					"CheckoutRequestID": checkoutID,
					"ResultCode":        0,
					"ResultDesc":        "The service request is processed successfully.",
					"CallbackMetadata": map[string]any{
						"Item": []map[string]any{
							{"Name": "Amount", "Value": req.Amount},
							{"Name": "MpesaReceiptNumber", "Value": receipt},
							{"Name": "TransactionDate", "Value": jsonNumber(time.Now().Format("20060102150405"))},
							{"Name": "PhoneNumber", "Value": jsonNumber(req.PhoneNumber)},
						},
					},
				},
			},
		}
		log.Info().
			Str("checkout_request_id", checkoutID).
			Str("receipt", receipt).
			Dur("delay", delay).
			Msg("Delivering success callback")
	} else {
		callback = map[string]any{
			"Body": map[string]any{
				"stkCallback": map[string]any{
					"MerchantRequestID": merchantID,
					"CheckoutRequestID": checkoutID,
					"ResultCode":        1032,
					"ResultDesc":        "Request cancelled by user",
				},
			},
		}
		log.Warn().
			Str("checkout_request_id", checkoutID).
			Dur("delay", delay).
			Msg("Delivering failure callback")
	}

	body, _ := json.Marshal(callback)
	resp, err := g.httpClient.Post(req.CallBackURL, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Str("url", req.CallBackURL).Msg("Callback delivery failed")
		return
	}
	defer resp.Body.Close()

	log.Info().
		Str("checkout_request_id", checkoutID).
		Int("status", resp.StatusCode).
		Msg("Callback delivered")
}

// jsonNumber converts a numeric string to a JSON number the way the real
// gateway sends amounts and phone numbers; non-numeric input stays a string.
func jsonNumber(s string) any {
	var f float64
	if _, err := fmt.Sscanf(s, "%f", &f); err == nil {
		return f
	}
	return s
}

// Handler struct holds the mock gateway and routes
type Handler struct {
	gateway *MockGateway
}

func NewHandler(gateway *MockGateway) *Handler {
	return &Handler{gateway: gateway}
}

// GenerateToken handles the OAuth client-credentials exchange
func (h *Handler) GenerateToken(c *gin.Context) {
	auth := c.GetHeader("Authorization")
	expected := "Basic " + base64.StdEncoding.EncodeToString([]byte(h.gateway.consumerKey+":"+h.gateway.consumerSecret))
	if h.gateway.consumerKey != "" && auth != expected {
		c.JSON(http.StatusUnauthorized, gin.H{
			"errorCode":    "404.001.03",
			"errorMessage": "Invalid Access Token",
		})
		return
	}

	token := uuid.New().String()
	log.Info().Str("token", token[:8]+"...").Msg("Issued access token")

	c.JSON(http.StatusOK, TokenResponse{
		AccessToken: token,
		ExpiresIn:   "3599",
	})
}

// ProcessSTKPush handles STK push requests and schedules the async callback
func (h *Handler) ProcessSTKPush(c *gin.Context) {
	if !strings.HasPrefix(c.GetHeader("Authorization"), "Bearer ") {
		c.JSON(http.StatusUnauthorized, gin.H{
			"errorCode":    "404.001.03",
			"errorMessage": "Invalid Access Token",
		})
		return
	}

	var req STKPushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"requestId":    uuid.New().String(),
			"errorCode":    "400.002.02",
			"errorMessage": "Bad Request - Invalid " + err.Error(),
		})
		return
	}

	merchantID := fmt.Sprintf("%d-%d-1", h.gateway.rng.Intn(99999), h.gateway.rng.Intn(99999999))
	checkoutID := "ws_CO_" + time.Now().Format("02012006150405") + uuid.New().String()[:6]

	log.Info().
		Str("checkout_request_id", checkoutID).
		Str("phone", req.PhoneNumber).
		Int64("amount", req.Amount).
		Msg("Received STK push request")

	// Deliver the result asynchronously, like the real gateway
	go h.gateway.deliverCallback(&req, merchantID, checkoutID)

	c.JSON(http.StatusOK, STKPushResponse{
		MerchantRequestID:   merchantID,
		CheckoutRequestID:   checkoutID,
		ResponseCode:        "0",
		ResponseDescription: "Success. Request accepted for processing",
		CustomerMessage:     "Success. Request accepted for processing",
	})
}

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"success_rate": h.gateway.successRate,
		"timestamp":    time.Now(),
	})
}

// UpdateConfig allows changing gateway behaviour at runtime
func (h *Handler) UpdateConfig(c *gin.Context) {
	var config struct {
		SuccessRate *float64 `json:"success_rate"`
	}

	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	if config.SuccessRate != nil {
		if *config.SuccessRate >= 0 && *config.SuccessRate <= 1.0 {
			h.gateway.successRate = *config.SuccessRate
			log.Info().Float64("rate", *config.SuccessRate).Msg("Updated success rate")
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Configuration updated",
		"success_rate": h.gateway.successRate,
	})
}

// SetupRouter configures all routes
func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.Default()

	// Add request logging middleware
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Msg("Request processed")
	})

	// Daraja-shaped routes
	router.GET("/oauth/v1/generate", handler.GenerateToken)
	router.POST("/mpesa/stkpush/v1/processrequest", handler.ProcessSTKPush)

	// Control routes
	router.GET("/health", handler.HealthCheck)
	router.PUT("/config", handler.UpdateConfig)

	return router
}

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Get configuration from environment
	port := getEnv("PORT", "8082")
	successRate := getEnvFloat("SUCCESS_RATE", 1)
	minDelay := getEnvDuration("MIN_DELAY", 1*time.Second)
	maxDelay := getEnvDuration("MAX_DELAY", 5*time.Second)
	consumerKey := getEnv("CONSUMER_KEY", "")
	consumerSecret := getEnv("CONSUMER_SECRET", "")

	log.Info().
		Str("port", port).
		Float64("success_rate", successRate).
		Dur("min_delay", minDelay).
		Dur("max_delay", maxDelay).
		Msg("Starting Mock Payment Gateway")

	// Create mock gateway
	gateway := NewMockGateway(successRate, minDelay, maxDelay, consumerKey, consumerSecret)
	handler := NewHandler(gateway)
	router := SetupRouter(handler)

	// Setup HTTP server
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
