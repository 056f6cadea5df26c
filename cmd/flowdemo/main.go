// Package main implements a minimal flow pipeline: a rate-limited publisher
// feeding a transformer and a consumer until a cancellation deadline.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/RoboSDK/flow/config"
	"github.com/RoboSDK/flow/logging"
	"github.com/RoboSDK/flow/metric"
	"github.com/RoboSDK/flow/network"
)

const appName = "flowdemo"

func main() {
	if err := run(); err != nil {
		slog.Error("application failed", "app", appName, "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML configuration")
	runFor := flag.Duration("run-for", 2*time.Second, "how long to run before cancelling")
	perSecond := flag.Float64("rate", 100, "messages per second to publish")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger := logging.NewLogger(os.Stderr, level)

	opts := []network.Option{
		network.WithLogger(logger),
		network.WithChannelCapacity(cfg.Runtime.ChannelCapacity),
		network.WithBatchSize(cfg.Runtime.BatchSize),
	}

	var metrics *metric.MetricsRegistry
	if cfg.Metrics.Enabled {
		metrics = metric.NewMetricsRegistry()
		opts = append(opts, network.WithMetrics(metrics))

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Listen, mux); err != nil {
				logger.Error("metrics endpoint failed", "error", err)
			}
		}()
		logger.Info("metrics endpoint listening", "listen", cfg.Metrics.Listen)
	}

	// The publisher paces itself so the consumer output stays readable; the
	// limiter blocks inside the user callable, outside any channel
	// suspension point.
	limiter := rate.NewLimiter(rate.Limit(*perSecond), 1)
	next := 0

	c := network.NewChain()
	c = network.Publish(c, func() int {
		_ = limiter.Wait(context.Background())
		next++
		return next
	}, "ticks")
	c = network.Transform(c, func(x int) string {
		return fmt.Sprintf("tick %d", x)
	}, "labels")
	c = network.Consume(c, func(msg string) {
		logger.Info("received", "message", msg)
	})

	net, err := network.New(c, opts...)
	if err != nil {
		return err
	}

	logger.Info("spinning network",
		"run_for", runFor.String(),
		"workers", net.Pool().Workers())

	// Cancellation begins at the deadline but is non-deterministic; the
	// drain phase still delivers in-flight messages after it.
	net.CancelAfter(*runFor)
	if err := net.Spin(context.Background()); err != nil {
		return err
	}

	logger.Info("network drained and stopped")
	return nil
}
