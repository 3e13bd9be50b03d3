// Command searchagg-server exposes the session-based search aggregation
// service over HTTP. All semantics live in pkg/; this binary only wires
// configuration, dependencies, and routes.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/leadgrid/searchagg/pkg/aggregate"
	"github.com/leadgrid/searchagg/pkg/logging"
	"github.com/leadgrid/searchagg/pkg/paginate"
	"github.com/leadgrid/searchagg/pkg/provider"
	"github.com/leadgrid/searchagg/pkg/querygen"
	"github.com/leadgrid/searchagg/pkg/quota"
	"github.com/leadgrid/searchagg/pkg/session"
)

func main() {
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnv("LOG_PRETTY", "false") == "true",
		Output: os.Stderr,
	})

	apiKey := os.Getenv("GOOGLE_API_KEY")
	engineID := os.Getenv("GOOGLE_CSE_ID")
	if apiKey == "" || engineID == "" {
		logger.Fatal().Msg("GOOGLE_API_KEY and GOOGLE_CSE_ID are required")
	}
	port := getEnv("PORT", "8080")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providerCfg := provider.DefaultConfig(apiKey, engineID)

	// Quota gating is enabled only when Redis is configured; a single
	// replica without Redis runs ungated.
	if redisURL := getEnv("REDIS_URL", ""); redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis", redisURL).Msg("Failed to connect to Redis")
		}
		providerCfg.Quota = quota.NewTracker(
			redisClient,
			getEnvInt("QUOTA_DAILY_LIMIT", quota.DefaultDailyLimit),
			logging.NewLogger("quota"),
		)
		logger.Info().Str("redis", redisURL).Msg("Quota tracking enabled")
	}

	searcher, err := provider.New(providerCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create search provider")
	}

	store := session.NewStore(session.StoreConfig{
		TTL:         getEnvDuration("SESSION_TTL", 30*time.Minute),
		MaxSessions: getEnvInt("SESSION_MAX", 10000),
	})
	store.StartSweeper(ctx, getEnvDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute))

	svc := paginate.NewService(store, aggregate.New(searcher), querygen.NewOpenAI())

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v1/search", searchHandler(svc, logger))
	mux.HandleFunc("/v1/search/next", nextHandler(svc, logger))

	addr := ":" + port
	logger.Info().Str("addr", addr).Msg("Starting search aggregation server")

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

type searchRequest struct {
	Prompt string `json:"prompt"`
	UserID string `json:"user_id"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

type nextRequest struct {
	SessionID string `json:"session_id"`
	Limit     int    `json:"limit"`
}

func searchHandler(svc *paginate.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		reqLogger := requestLogger(w, logger)

		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Prompt == "" || req.UserID == "" {
			http.Error(w, "prompt and user_id are required", http.StatusBadRequest)
			return
		}
		if req.Limit <= 0 {
			req.Limit = 10
		}

		resp, err := svc.SearchWithOffset(r.Context(), req.Prompt, req.UserID, req.Offset, req.Limit)
		if err != nil {
			writeError(w, reqLogger, err)
			return
		}

		writeJSON(w, reqLogger, resp)
	}
}

func nextHandler(svc *paginate.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		reqLogger := requestLogger(w, logger)

		var req nextRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.SessionID == "" {
			http.Error(w, "session_id is required", http.StatusBadRequest)
			return
		}
		if req.Limit <= 0 {
			req.Limit = 10
		}

		resp, err := svc.FetchNext(r.Context(), req.SessionID, req.Limit)
		if err != nil {
			writeError(w, reqLogger, err)
			return
		}

		writeJSON(w, reqLogger, resp)
	}
}

// requestLogger tags the response and log events with a request id.
func requestLogger(w http.ResponseWriter, logger zerolog.Logger) zerolog.Logger {
	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)
	return logger.With().Str("request_id", requestID).Logger()
}

// writeError maps service errors to HTTP statuses.
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	status := http.StatusInternalServerError

	var searchErr *provider.SearchError
	switch {
	case errors.Is(err, paginate.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.As(err, &searchErr):
		switch searchErr.Kind {
		case provider.KindRateLimited:
			status = http.StatusTooManyRequests
		case provider.KindTransport:
			status = http.StatusGatewayTimeout
		default:
			status = http.StatusBadGateway
		}
	}

	logger.Error().Err(err).Int("status", status).Msg("Request failed")
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, logger zerolog.Logger, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("Failed to write response")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
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
