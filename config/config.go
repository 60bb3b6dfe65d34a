// Package config builds a *tiered.DB from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/caarlos0/env/v11"
	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/tiered"
	"github.com/unkn0wn-root/tiered/backend"
	"github.com/unkn0wn-root/tiered/backend/dynamo"
	"github.com/unkn0wn-root/tiered/backend/local"
	redisbackend "github.com/unkn0wn-root/tiered/backend/redis"
	"github.com/unkn0wn-root/tiered/backend/sqlite"
	"github.com/unkn0wn-root/tiered/codec"
	"github.com/unkn0wn-root/tiered/idgen"
	"github.com/unkn0wn-root/tiered/provider"
	"github.com/unkn0wn-root/tiered/provider/bigcache"
	"github.com/unkn0wn-root/tiered/provider/ristretto"
)

// Config selects and configures the tiers. "none" disables a tier.
type Config struct {
	Namespace string `env:"TIERED_NAMESPACE" envDefault:"tiered"`

	// Fast is redis, ristretto, bigcache or none.
	Fast        string        `env:"TIERED_FAST" envDefault:"redis"`
	RedisAddr   string        `env:"TIERED_REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisDB     int           `env:"TIERED_REDIS_DB" envDefault:"0"`
	Codec       string        `env:"TIERED_CODEC" envDefault:"msgpack"`
	MaxRowBytes int           `env:"TIERED_MAX_ROW_BYTES"`
	CacheTTL    time.Duration `env:"TIERED_CACHE_TTL"`
	CacheMB     int           `env:"TIERED_CACHE_MB" envDefault:"64"`

	// Durable is sqlite, dynamo or none.
	Durable           string `env:"TIERED_DURABLE" envDefault:"sqlite"`
	SQLitePath        string `env:"TIERED_SQLITE_PATH" envDefault:"tiered.db"`
	DynamoTablePrefix string `env:"TIERED_DYNAMO_TABLE_PREFIX"`
	DynamoIndexTable  string `env:"TIERED_DYNAMO_INDEX_TABLE"`
	DynamoEndpoint    string `env:"TIERED_DYNAMO_ENDPOINT"`
	AWSProfile        string `env:"TIERED_AWS_PROFILE"`
	AWSRegion         string `env:"TIERED_AWS_REGION"`

	// IDGen is local, redis or uuid. redis shares the fast tier's client.
	IDGen             string        `env:"TIERED_IDGEN" envDefault:"local"`
	FastWrites        string        `env:"TIERED_FAST_WRITES" envDefault:"strict"`
	RepopulateTimeout time.Duration `env:"TIERED_REPOPULATE_TIMEOUT" envDefault:"5s"`

	LogLevel string `env:"TIERED_LOG_LEVEL" envDefault:"info"`
}

// Parse loads Config from the environment and validates it.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func oneOf(name, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("config: %s must be one of %s, got %q", name, strings.Join(allowed, "|"), v)
}

func (c Config) Validate() error {
	errs := []error{
		oneOf("TIERED_FAST", c.Fast, "redis", "ristretto", "bigcache", "none"),
		oneOf("TIERED_DURABLE", c.Durable, "sqlite", "dynamo", "none"),
		oneOf("TIERED_IDGEN", c.IDGen, "local", "redis", "uuid"),
		oneOf("TIERED_FAST_WRITES", c.FastWrites, "strict", "best-effort"),
	}
	if _, err := codec.ForRows(c.Codec); err != nil {
		errs = append(errs, fmt.Errorf("config: TIERED_CODEC: %w", err))
	}
	if c.Fast == "none" && c.Durable == "none" {
		errs = append(errs, errors.New("config: at least one tier is required"))
	}
	if c.IDGen == "redis" && c.Fast != "redis" {
		errs = append(errs, errors.New("config: TIERED_IDGEN=redis requires TIERED_FAST=redis"))
	}
	if (c.Fast == "ristretto" || c.Fast == "bigcache") && c.CacheMB <= 0 {
		errs = append(errs, errors.New("config: TIERED_CACHE_MB must be positive"))
	}
	if c.Durable == "sqlite" && strings.TrimSpace(c.SQLitePath) == "" {
		errs = append(errs, errors.New("config: TIERED_SQLITE_PATH is required"))
	}
	return errors.Join(errs...)
}

// Open builds the configured tiers and opens a DB. opts supplies the
// Registry and optionally Logger and Hooks; tier, id and policy fields are
// filled from c. Backends are closed again if opening fails.
func Open(ctx context.Context, c Config, opts tiered.Options) (*tiered.DB, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	var (
		built []backend.Backend
		rdb   goredis.UniversalClient
		err   error
	)
	fail := func(err error) (*tiered.DB, error) {
		for _, b := range built {
			_ = b.Close(ctx)
		}
		if rdb != nil && c.Fast != "redis" {
			_ = rdb.Close()
		}
		return nil, err
	}

	if c.Fast != "none" {
		if c.Fast == "redis" {
			rdb = goredis.NewClient(&goredis.Options{Addr: c.RedisAddr, DB: c.RedisDB})
		}
		opts.Fast, err = c.fast(rdb)
		if err != nil {
			if rdb != nil {
				_ = rdb.Close()
			}
			return nil, err
		}
		built = append(built, opts.Fast)
	}
	if c.Durable != "none" {
		opts.Durable, err = c.durable(ctx)
		if err != nil {
			return fail(err)
		}
		built = append(built, opts.Durable)
	}

	switch c.IDGen {
	case "redis":
		opts.IDGen = idgen.NewRedis(rdb, c.Namespace)
	case "uuid":
		opts.IDGen = idgen.UUID{}
	default:
		opts.IDGen = idgen.NewLocal()
	}
	if c.FastWrites == "best-effort" {
		opts.FastWrites = tiered.BestEffort
	}
	opts.RepopulateTimeout = c.RepopulateTimeout

	db, err := tiered.Open(ctx, opts)
	if err != nil {
		return fail(err)
	}
	return db, nil
}

func (c Config) fast(rdb goredis.UniversalClient) (backend.Backend, error) {
	if c.Fast == "redis" {
		return redisbackend.New(redisbackend.Config{Client: rdb, Namespace: c.Namespace, CloseClient: true})
	}
	rows, err := codec.ForRows(c.Codec)
	if err != nil {
		return nil, err
	}
	var p provider.Provider
	switch c.Fast {
	case "ristretto":
		p, err = ristretto.New(ristretto.Config{MaxBytes: int64(c.CacheMB) << 20})
	case "bigcache":
		life := c.CacheTTL
		if life <= 0 {
			life = 10 * time.Minute
		}
		p, err = bigcache.New(bigcache.Config{LifeWindow: life, MaxMB: c.CacheMB, MaxFrameBytes: c.MaxRowBytes})
	}
	if err != nil {
		return nil, fmt.Errorf("config: %s provider: %w", c.Fast, err)
	}
	return local.New(local.Config{
		Provider:      p,
		Codec:         rows,
		Namespace:     c.Namespace,
		TTL:           c.CacheTTL,
		MaxRowBytes:   c.MaxRowBytes,
		CloseProvider: true,
	})
}

func (c Config) durable(ctx context.Context) (backend.Backend, error) {
	if c.Durable == "sqlite" {
		return sqlite.Open(c.SQLitePath)
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if c.AWSProfile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(c.AWSProfile))
	}
	if c.AWSRegion != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(c.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("config: load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if c.DynamoEndpoint != "" {
			o.BaseEndpoint = aws.String(c.DynamoEndpoint)
		}
	})
	return dynamo.New(dynamo.Config{
		Client:      client,
		TablePrefix: c.DynamoTablePrefix,
		IndexTable:  c.DynamoIndexTable,
	})
}
