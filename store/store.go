// Package store persists per-user snapshots under keys of the form
// {namespace}_{userId}. Every write replaces the whole value.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"nutrilog"
)

var ErrNotFound = errors.New("store: key not found")

// Namespaces of the per-user snapshot.
const (
	NamespaceMeals     = "meals"
	NamespaceHydration = "hydration"
	NamespaceGoal      = "goal"
	NamespaceProfile   = "profile"
	NamespacePlans     = "plans"
	NamespaceChat      = "chat"
)

type Store interface {
	// Load returns ErrNotFound when nothing has been saved under key.
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Close() error
}

// Key builds the storage key for one namespace of one user.
func Key(namespace, userID string) (string, error) {
	if strings.TrimSpace(namespace) == "" {
		return "", fmt.Errorf("%w: namespace is required", nutrilog.ErrInvalidInput)
	}
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("%w: user id is required", nutrilog.ErrInvalidInput)
	}
	return namespace + "_" + userID, nil
}

// Open selects a backend by cfg.Driver.
func Open(ctx context.Context, cfg nutrilog.StoreConfig) (Store, error) {
	slog.Info("STORE: Opening", "driver", cfg.Driver)

	switch cfg.Driver {
	case "memory":
		return NewMemory(), nil

	case "", "file":
		return NewFile(cfg.FileDir)

	case "s3":
		if cfg.S3Bucket == "" {
			return nil, errors.New("store: STORE_S3_BUCKET is required for the s3 driver")
		}
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("unable to load AWS config: %w", err)
		}
		return NewS3(s3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.S3Prefix), nil

	case "redis":
		return NewRedis(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)

	case "sqlite":
		return NewSQLite(ctx, cfg.SQLitePath)

	case "postgres":
		return NewPostgres(ctx, cfg.PostgresDSN)

	case "mongo":
		return NewMongo(ctx, cfg.MongoURI, cfg.MongoDB)

	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
