// Package config reads service settings from the environment. A .env file in
// the working directory, when present, is loaded first.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr      string
	DatabasePath  string
	PublicBaseURL string
	Timezone      *time.Location

	Graph GraphConfig

	TokenSecret       string
	OperatorJWTSecret string

	ReconcileInterval time.Duration
	BatchSize         int
	LockTTL           time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Metrics MetricsConfig
}

// MetricsConfig controls OTLP metric export. An empty endpoint keeps
// instruments recording in-process without exporting.
type MetricsConfig struct {
	ServiceName  string
	OTLPEndpoint string
	Insecure     bool
	Interval     time.Duration
}

type GraphConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Mailbox      string
	BaseURL      string
	Timeout      time.Duration
	RPS          float64
}

// Load reads the .env file (if any) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	p := &parser{getenv: getenv}

	cfg := &Config{
		HTTPAddr:      p.str("HTTP_ADDR", ":6060"),
		DatabasePath:  p.str("DATABASE_PATH", "./database.db"),
		PublicBaseURL: strings.TrimRight(p.required("PUBLIC_BASE_URL"), "/"),
		Graph: GraphConfig{
			TenantID:     p.required("GRAPH_TENANT_ID"),
			ClientID:     p.required("GRAPH_CLIENT_ID"),
			ClientSecret: p.required("GRAPH_CLIENT_SECRET"),
			Mailbox:      p.required("GRAPH_MAILBOX"),
			BaseURL:      strings.TrimRight(p.str("GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0"), "/"),
			Timeout:      p.duration("GRAPH_TIMEOUT", 15*time.Second),
			RPS:          p.float("GRAPH_RPS", 5),
		},
		TokenSecret:       p.required("SCHEDULE_TOKEN_SECRET"),
		OperatorJWTSecret: p.required("OPERATOR_JWT_SECRET"),
		ReconcileInterval: p.duration("RECONCILE_INTERVAL", 5*time.Minute),
		BatchSize:         p.integer("RECONCILE_BATCH_SIZE", 20),
		LockTTL:           p.duration("LOCK_TTL", 2*time.Minute),
		RedisAddr:         p.str("REDIS_ADDR", ""),
		RedisPassword:     p.str("REDIS_PASSWORD", ""),
		RedisDB:           p.integer("REDIS_DB", 0),
		Metrics: MetricsConfig{
			ServiceName:  p.str("OTEL_SERVICE_NAME", "fieldconfirm"),
			OTLPEndpoint: p.str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Insecure:     p.boolean("OTEL_EXPORTER_OTLP_INSECURE", false),
			Interval:     p.duration("METRICS_INTERVAL", 15*time.Second),
		},
	}

	tzName := p.str("APP_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("APP_TIMEZONE: %w", err))
	}
	cfg.Timezone = loc

	if cfg.BatchSize <= 0 {
		p.errs = append(p.errs, errors.New("RECONCILE_BATCH_SIZE must be positive"))
	}
	if cfg.Metrics.Interval <= 0 {
		p.errs = append(p.errs, errors.New("METRICS_INTERVAL must be positive"))
	}
	if cfg.Graph.RPS <= 0 {
		p.errs = append(p.errs, errors.New("GRAPH_RPS must be positive"))
	}

	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	return cfg, nil
}

type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) required(key string) string {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		p.errs = append(p.errs, fmt.Errorf("%s is required", key))
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (p *parser) integer(key string, def int) int {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func (p *parser) boolean(key string, def bool) bool {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}
