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

// Package config loads worker process configuration from environment
// variables.
package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

// Mode selects the logging and diagnostics profile of the process.
type Mode string

const (
	ModeDebug   Mode = "debug"
	ModeRelease Mode = "release"
)

// Exporter selects the OTLP transport used in release mode.
type Exporter string

const (
	ExporterHTTP Exporter = "http"
	ExporterGRPC Exporter = "grpc"
)

// Config is the worker process configuration, loadable from env vars.
type Config struct {
	Mode     Mode           `json:"mode" env:"MODE" envDefault:"debug"`
	NATS     NATSConfig     `json:"nats" envPrefix:"NATS_"`
	Worker   WorkerConfig   `json:"worker" envPrefix:"WORKER_"`
	Executor ExecutorConfig `json:"executor" envPrefix:"EXECUTOR_"`
	Log      LogConfig      `json:"log" envPrefix:"LOG_"`
}

type NATSConfig struct {
	URL           string        `json:"url"            env:"URL"`
	Host          string        `json:"host"           env:"HOST"           envDefault:"localhost"`
	Port          string        `json:"port"           env:"PORT"           envDefault:"4222"`
	MaxReconnects int           `json:"max_reconnects" env:"MAX_RECONNECTS" envDefault:"-1"`
	ReconnectWait time.Duration `json:"reconnect_wait" env:"RECONNECT_WAIT" envDefault:"2s"`
	DrainTimeout  time.Duration `json:"drain_timeout"  env:"DRAIN_TIMEOUT"  envDefault:"30s"`
	PingInterval  time.Duration `json:"ping_interval"  env:"PING_INTERVAL"  envDefault:"2m"`
	MaxPingsOut   int           `json:"max_pings_out"  env:"MAX_PINGS_OUT"  envDefault:"2"`
	ClientName    string        `json:"client_name"    env:"CLIENT_NAME"    envDefault:"taskmill-worker"`
}

type WorkerConfig struct {
	// TaskQueue is the logical queue this worker polls.
	TaskQueue string `json:"task_queue" env:"TASK_QUEUE" envDefault:"default"`
}

type ExecutorConfig struct {
	// Kind selects the blocking-activity strategy: "thread" or "process".
	Kind string `json:"kind" env:"KIND" envDefault:"thread"`
	// MaxWorkers bounds concurrent blocking activities. Zero means the
	// worker default.
	MaxWorkers int `json:"max_workers" env:"MAX_WORKERS" envDefault:"0"`
}

type LogConfig struct {
	// Exporter selects the OTLP transport in release mode.
	Exporter Exporter `json:"exporter" env:"OTEL_EXPORTER" envDefault:"http"`
}

// Load loads configuration from environment variables applying defaults.
func Load() (*Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	// Compose URL if not provided explicitly.
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = fmt.Sprintf("nats://%s:%s", cfg.NATS.Host, cfg.NATS.Port)
	}
	return &cfg, cfg.Validate()
}

// Validate rejects values env defaults cannot guard against.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeDebug, ModeRelease:
	default:
		return fmt.Errorf("invalid mode %q", c.Mode)
	}
	switch c.Log.Exporter {
	case ExporterHTTP, ExporterGRPC:
	default:
		return fmt.Errorf("invalid log exporter %q", c.Log.Exporter)
	}
	switch c.Executor.Kind {
	case "thread", "process":
	default:
		return fmt.Errorf("invalid executor kind %q", c.Executor.Kind)
	}
	if c.Executor.MaxWorkers < 0 {
		return fmt.Errorf("executor max workers must be non-negative, got %d", c.Executor.MaxWorkers)
	}
	return nil
}

// Interface implementation for the SDK connection config.
func (c *Config) Endpoint() string                 { return c.NATS.URL }
func (c *Config) NATSMaxReconnects() int           { return c.NATS.MaxReconnects }
func (c *Config) NATSReconnectWait() time.Duration { return c.NATS.ReconnectWait }
func (c *Config) NATSDrainTimeout() time.Duration  { return c.NATS.DrainTimeout }
func (c *Config) NATSPingInterval() time.Duration  { return c.NATS.PingInterval }
func (c *Config) NATSMaxPingsOut() int             { return c.NATS.MaxPingsOut }
func (c *Config) NATSClientName() string           { return c.NATS.ClientName }
