// cmd/migrate creates the DynamoDB table or the Postgres schema used by the
// conversation store.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"booking/config"
	"booking/services"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
)

const (
	connectAttempts = 3
	retryDelay      = 2 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	backend := flag.String("backend", os.Getenv("STORE_BACKEND"), "store to provision: dynamodb or postgres")
	table := flag.String("table", envOr("DYNAMODB_TABLE", services.DefaultDynamoDBTable), "DynamoDB table name")
	endpoint := flag.String("endpoint", os.Getenv("DYNAMODB_ENDPOINT"), "DynamoDB endpoint override (DynamoDB Local)")
	region := flag.String("region", envOr("AWS_REGION", "us-east-1"), "AWS region")
	postgresURI := flag.String("postgres-uri", os.Getenv("POSTGRES_URI"), "Postgres connection string")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var err error
	switch *backend {
	case config.StoreDynamoDB:
		err = migrateDynamoDB(ctx, *region, *endpoint, *table)
	case config.StorePostgres:
		err = migratePostgres(ctx, *postgresURI)
	default:
		err = fmt.Errorf("unsupported backend %q", *backend)
	}
	if err != nil {
		slog.Error("Migration failed", "backend", *backend, "error", err)
		os.Exit(1)
	}
	slog.Info("Migration completed", "backend", *backend)
}

func migrateDynamoDB(ctx context.Context, region, endpoint, table string) error {
	client, err := services.NewDynamoDBClient(ctx, region, endpoint)
	if err != nil {
		return err
	}
	store := services.NewDynamoStore(client, table, nil)
	return retry(func() error { return store.EnsureTable(ctx) })
}

func migratePostgres(ctx context.Context, uri string) error {
	if uri == "" {
		return fmt.Errorf("postgres-uri is required")
	}
	var store *services.PostgresStore
	err := retry(func() error {
		db, err := services.OpenPostgres(ctx, uri)
		if err != nil {
			return err
		}
		store = services.NewPostgresStore(db)
		return nil
	})
	if err != nil {
		return err
	}
	defer store.Close()
	return store.EnsureSchema(ctx)
}

func retry(fn func() error) error {
	var err error
	for i := 0; i < connectAttempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		slog.Warn("Attempt failed", "attempt", i+1, "error", err)
		if i < connectAttempts-1 {
			time.Sleep(retryDelay)
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", connectAttempts, err)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
