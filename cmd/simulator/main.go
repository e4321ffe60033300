// Package main provides a load generator posting randomized orders to
// the intake API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/merchkit/sales-pipeline/internal/config"
	"github.com/merchkit/sales-pipeline/internal/logger"
	"github.com/merchkit/sales-pipeline/internal/model"
	"github.com/merchkit/sales-pipeline/internal/money"
)

const (
	signalBufferSize = 1
	exitCode         = 1

	requestTimeout = 5 * time.Second

	merchantCount    = 5
	categoryBase     = 101
	categoryCount    = 10
	productBase      = 1
	productCount     = 50
	maxItemsPerOrder = 3
	maxQuantity      = 5
	maxWholePrice    = 50
	centsPerUnit     = 100
)

// randomOrder builds a valid intake request with randomized merchant,
// lines, and prices. The external order id is left empty so the API
// generates one and every request creates a distinct order.
func randomOrder(now time.Time) *model.CreateOrderParams {
	itemCount := rand.IntN(maxItemsPerOrder) + 1
	items := make([]model.CreateOrderItemParams, itemCount)

	for i := range items {
		price := money.MustParse(fmt.Sprintf("%d.%02d",
			rand.IntN(maxWholePrice)+1, rand.IntN(centsPerUnit)))

		items[i] = model.CreateOrderItemParams{
			ProductID:  int64(productBase + rand.IntN(productCount)),
			CategoryID: int64(categoryBase + rand.IntN(categoryCount)),
			Quantity:   int64(rand.IntN(maxQuantity) + 1),
			UnitPrice:  price,
		}
	}

	return &model.CreateOrderParams{
		MerchantID: int64(rand.IntN(merchantCount) + 1),
		OrderDate:  now,
		Items:      items,
	}
}

func postOrder(ctx context.Context, client *http.Client, targetURL string, params *model.CreateOrderParams) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post order: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("order rejected with status %d: %s", resp.StatusCode, msg)
	}

	var result model.CreateOrderResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	slog.Info("order posted",
		slog.Int64("order_id", result.OrderID),
		slog.Int64("merchant_id", result.MerchantID),
		slog.Int("item_count", result.ItemCount),
		slog.String("status", string(result.Status)),
	)

	return nil
}

func setupSignalHandling() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, signalBufferSize)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("shutdown signal received, stopping simulator")
		cancel()
	}()

	return ctx, cancel
}

func run(ctx context.Context, client *http.Client, targetURL string, ticks <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("simulator stopped")
			return
		case now := <-ticks:
			if err := postOrder(ctx, client, targetURL, randomOrder(now.UTC())); err != nil {
				slog.Error("failed to submit order", slog.String("error", err.Error()))
			}
		}
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	slog.SetDefault(logger.Setup(cfg.LogLevel, "simulator"))

	ctx, cancel := setupSignalHandling()
	defer cancel()

	slog.Info("starting order simulator",
		slog.String("target_url", cfg.SimulatorTargetURL),
		slog.Duration("interval", cfg.SimulatorInterval),
	)

	ticker := time.NewTicker(cfg.SimulatorInterval)
	defer ticker.Stop()

	client := &http.Client{Timeout: requestTimeout}

	run(ctx, client, cfg.SimulatorTargetURL, ticker.C)
}
