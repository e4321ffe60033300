// Package main provides the HTTP API server for order intake and the
// top-category read path.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/rueidis"

	"github.com/merchkit/sales-pipeline/internal/config"
	"github.com/merchkit/sales-pipeline/internal/logger"
	"github.com/merchkit/sales-pipeline/internal/model"
	"github.com/merchkit/sales-pipeline/internal/repository"
	"github.com/merchkit/sales-pipeline/internal/service"
)

const (
	contentTypeJSON        = "Content-Type"
	applicationJSON        = "application/json"
	failedToEncodeResponse = "failed to encode response"
	decimalBase            = 10
	int64BitSize           = 64
	exitCode               = 1
)

// APIServer handles HTTP requests for order intake and reporting.
type APIServer struct {
	orderService service.OrderService
	querySvc     service.TopCategoryService
}

// NewAPIServer creates a new API server instance.
func NewAPIServer(orderService service.OrderService, querySvc service.TopCategoryService) *APIServer {
	return &APIServer{
		orderService: orderService,
		querySvc:     querySvc,
	}
}

// CreateOrder handles POST /orders endpoint for order intake.
func (s *APIServer) CreateOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var params model.CreateOrderParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	result, err := s.orderService.CreateOrder(r.Context(), &params)
	if err != nil {
		if isValidationError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	w.Header().Set(contentTypeJSON, applicationJSON)

	if result.Status == model.OrderStatusCreated {
		w.WriteHeader(http.StatusCreated)
	}

	if err := json.NewEncoder(w).Encode(result); err != nil {
		http.Error(w, failedToEncodeResponse, http.StatusInternalServerError)
		return
	}
}

// TopCategories handles GET /top-categories for ranked category reads.
// bucketEnd switches the request to a custom DAY-bucket range.
func (s *APIServer) TopCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query, err := parseTopCategoryQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rows, err := s.querySvc.TopCategories(r.Context(), query)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set(contentTypeJSON, applicationJSON)

	if err := json.NewEncoder(w).Encode(rows); err != nil {
		http.Error(w, failedToEncodeResponse, http.StatusInternalServerError)
		return
	}
}

// HealthCheck handles GET /health endpoint for service health check.
func (*APIServer) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set(contentTypeJSON, applicationJSON)
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		http.Error(w, failedToEncodeResponse, http.StatusInternalServerError)
		return
	}
}

func parseTopCategoryQuery(r *http.Request) (model.TopCategoryQuery, error) {
	var query model.TopCategoryQuery

	merchantStr := r.URL.Query().Get("merchantId")
	if merchantStr == "" {
		return query, errors.New("merchantId parameter is required")
	}

	merchantID, err := strconv.ParseInt(merchantStr, decimalBase, int64BitSize)
	if err != nil {
		return query, errors.New("invalid merchantId parameter")
	}

	bucketType, err := model.ParseBucketType(r.URL.Query().Get("bucketType"))
	if err != nil {
		return query, err
	}

	bucketStart, err := time.Parse(time.RFC3339, r.URL.Query().Get("bucketStart"))
	if err != nil {
		return query, errors.New("invalid bucketStart parameter, expected RFC3339")
	}

	query.MerchantID = merchantID
	query.BucketType = bucketType
	query.BucketStart = bucketStart

	if endStr := r.URL.Query().Get("bucketEnd"); endStr != "" {
		bucketEnd, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			return query, errors.New("invalid bucketEnd parameter, expected RFC3339")
		}

		query.BucketEnd = bucketEnd
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			return query, errors.New("invalid limit parameter")
		}

		query.Limit = limit
	}

	return query, nil
}

func isValidationError(err error) bool {
	return errors.Is(err, model.ErrInvalidMerchant) ||
		errors.Is(err, model.ErrInvalidOrderDate) ||
		errors.Is(err, model.ErrEmptyOrder) ||
		errors.Is(err, model.ErrInvalidCategory) ||
		errors.Is(err, model.ErrInvalidQuantity)
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	slog.SetDefault(logger.Setup(cfg.LogLevel, "api"))

	dbPool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer dbPool.Close()

	redisClient, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{cfg.RedisAddr},
	})
	if err != nil {
		slog.Error("failed to connect to Redis", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer redisClient.Close()

	orderRepo := repository.NewOrderRepositoryImpl(dbPool)
	outboxRepo := repository.NewOutboxRepositoryImpl(dbPool)
	txManager := repository.NewTransactionManagerImpl(dbPool)
	orderService := service.NewOrderServiceImpl(orderRepo, outboxRepo, txManager)

	authoritative := repository.NewAggregateStoreImpl(dbPool)
	catalog := repository.NewCategoryCatalogImpl(dbPool)

	var ranking repository.AggregateQueryStore
	if cfg.RankingReplicaEnabled {
		ranking = repository.NewRankingStoreImpl(redisClient)
	}

	querySvc := service.NewTopCategoryServiceImpl(authoritative, ranking, catalog)

	server := NewAPIServer(orderService, querySvc)

	http.HandleFunc("/orders", server.CreateOrder)
	http.HandleFunc("/top-categories", server.TopCategories)
	http.HandleFunc("/health", server.HealthCheck)

	slog.Info("starting API server", slog.String("port", cfg.Port))

	if err := http.ListenAndServe(":"+cfg.Port, nil); err != nil {
		slog.Error("failed to start server", slog.String("error", err.Error()))
		return
	}
}
