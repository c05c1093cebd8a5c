// Copyright 2026 The Taskmill Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// taskmill-worker runs a demo worker against a NATS-backed task queue.
// It registers a small order-settlement scenario so an orchestrator can
// drive workflow and activity tasks end to end.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/taskmill-io/taskmill/internal/config"
	"github.com/taskmill-io/taskmill/internal/logger"
	"github.com/taskmill-io/taskmill/sdk/worker"
	"github.com/taskmill-io/taskmill/sdk/workflow"
)

func main() {
	if err := run(context.Background()); err != nil {
		log.Fatalf("worker exited: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	appLogger, err := logger.NewLogger(ctx, &logger.LoggerOptions{
		Mode:     cfg.Mode,
		Exporter: cfg.Log.Exporter,
		Writer:   os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	if appLogger.LoggerProvider != nil {
		defer appLogger.LoggerProvider.Shutdown(context.Background())
	}
	slogger := appLogger.Slogger

	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name(cfg.NATS.ClientName),
		nats.MaxReconnects(cfg.NATS.MaxReconnects),
		nats.ReconnectWait(cfg.NATS.ReconnectWait),
		nats.DrainTimeout(cfg.NATS.DrainTimeout),
		nats.PingInterval(cfg.NATS.PingInterval),
		nats.MaxPingsOutstanding(cfg.NATS.MaxPingsOut),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer nc.Close()

	w, err := worker.NewWorker(nc, &worker.Options{
		TaskQueue:    cfg.Worker.TaskQueue,
		ExecutorKind: worker.ExecutorKind(cfg.Executor.Kind),
		MaxWorkers:   int64(cfg.Executor.MaxWorkers),
		Logger:       slogger,
	})
	if err != nil {
		return fmt.Errorf("creating worker: %w", err)
	}

	if err := registerScenario(w); err != nil {
		return fmt.Errorf("registering scenario: %w", err)
	}

	// Drain on SIGINT/SIGTERM; a second signal aborts hard via ctx.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		w.Drain()
	}()

	slogger.Info("starting worker", "task_queue", cfg.Worker.TaskQueue, "mode", string(cfg.Mode))
	return w.Run(context.Background())
}

func registerScenario(w worker.Worker) error {
	gateway := &paymentGateway{}
	return errors.Join(
		w.RegisterWorkflow(SettleOrder),
		w.RegisterActivity(gateway.ChargeCard,
			worker.WithBlocking(),
			worker.WithInstance(gateway),
			worker.WithDefaultTimeout(30*time.Second)),
		w.RegisterActivity(SendReceipt),
	)
}

// SettleOrder charges the order's card and emails a receipt.
func SettleOrder(ctx workflow.Context, orderID string, amountCents int64) (string, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &workflow.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    3,
		},
	})

	var chargeID string
	if err := workflow.ExecuteActivity(ctx, (&paymentGateway{}).ChargeCard, orderID, amountCents).Get(ctx, &chargeID); err != nil {
		return "", err
	}

	// Give the payment processor a moment before emailing.
	if err := workflow.Sleep(ctx, 5*time.Second); err != nil {
		return "", err
	}

	if err := workflow.ExecuteActivity(ctx, SendReceipt, orderID, chargeID).Get(ctx, nil); err != nil {
		return "", err
	}
	return chargeID, nil
}

// paymentGateway owns the connection to the payment processor. One
// instance is shared by every ChargeCard attempt and closed on drain.
type paymentGateway struct{}

func (g *paymentGateway) ChargeCard(ctx context.Context, orderID string, amountCents int64) (string, error) {
	if amountCents <= 0 {
		return "", fmt.Errorf("invalid amount %d for order %s", amountCents, orderID)
	}
	// Stand-in for a real processor call.
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "charge-" + orderID, nil
}

func (g *paymentGateway) Close() error { return nil }

func SendReceipt(ctx context.Context, orderID, chargeID string) error {
	// Stand-in for an email provider call.
	return nil
}
