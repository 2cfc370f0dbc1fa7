// Command seed-db loads demo products and an admin API key into the catalog
// database.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/scan-and-go/internal/app"
	"github.com/xenking/scan-and-go/internal/domain/auth"
	"github.com/xenking/scan-and-go/internal/storage/postgres"
)

type options struct {
	databaseURL  string
	productFiles []string
	apiKey       string
	apiKeyPepper string
}

func main() {
	var (
		opts  options
		files string
	)
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or SCANGO_DATABASE_URL / DATABASE_URL env)")
	flag.StringVar(&files, "products-file", "", "comma-separated product JSON files, .gz allowed (default: embedded demo catalog)")
	flag.StringVar(&opts.apiKey, "api-key", "", "admin API key to seed (or SCANGO_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SCANGO_ADMIN_API_KEY_PEPPER env)")
	flag.Parse()

	if err := app.LoadDotenv(".env"); err != nil {
		slog.Error("load .env", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if files != "" {
		opts.productFiles = strings.Split(files, ",")
	}
	opts.databaseURL = firstNonEmpty(opts.databaseURL, os.Getenv("SCANGO_DATABASE_URL"), os.Getenv("DATABASE_URL"))
	opts.apiKey = firstNonEmpty(opts.apiKey, os.Getenv("SCANGO_SEED_API_KEY"))
	opts.apiKeyPepper = firstNonEmpty(opts.apiKeyPepper, os.Getenv("SCANGO_ADMIN_API_KEY_PEPPER"))

	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("seed completed successfully")
}

func run(ctx context.Context, opts options) error {
	products, err := loadCatalogs(ctx, opts.productFiles)
	if err != nil {
		return errors.Wrap(err, "load catalog")
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	inserted, err := postgres.NewProductRepository(pool).InsertMany(ctx, products)
	if err != nil {
		return errors.Wrap(err, "insert products")
	}
	slog.Info("products seeded",
		slog.Int("read", len(products)),
		slog.Int("inserted", inserted),
		slog.Int("already_present", len(products)-inserted),
	)

	if opts.apiKey == "" {
		slog.Info("no admin API key given, skipping")
		return nil
	}
	info := auth.APIKeyInfo{
		ID:      "admin",
		KeyHash: auth.Hash([]byte(opts.apiKeyPepper), opts.apiKey),
		Name:    "Store admin",
		Scopes:  []string{auth.ScopeCreateProduct},
	}
	if err := postgres.NewAPIKeyRepository(pool).Upsert(ctx, info); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	slog.Info("upserted API key", slog.String("id", info.ID), slog.String("name", info.Name))

	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
