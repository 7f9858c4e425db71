// Command seed-catalog loads the bar catalog and staff PINs into PostgreSQL.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/mandala-pos/terminal/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		catalogFile string
		pepper      string
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog", "db/seed/catalog.json", "catalog JSON file, optionally gzipped (.gz)")
	flag.StringVar(&pepper, "pin-pepper", "", "HMAC pepper for staff PINs (or MANDALA_PIN_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if pepper == "" {
		pepper = os.Getenv("MANDALA_PIN_PEPPER")
	}

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		if databaseURL == "" {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		if pepper == "" {
			return errors.New("PIN pepper is required: set --pin-pepper or MANDALA_PIN_PEPPER")
		}
		if err := run(ctx, lg, databaseURL, catalogFile, []byte(pepper)); err != nil {
			return errors.Wrap(err, "seed")
		}
		lg.Info("Seed completed")
		return nil
	})
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, catalogFile string, pepper []byte) error {
	lg.Info("Reading catalog", zap.String("path", catalogFile))
	c, err := openCatalog(catalogFile)
	if err != nil {
		return errors.Wrapf(err, "read %s", catalogFile)
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := postgres.NewProductRepository(pool).Upsert(ctx, c.Products); err != nil {
		return errors.Wrap(err, "upsert products")
	}
	lg.Info("Upserted products", zap.Int("count", len(c.Products)))

	if err := postgres.NewStaffRepository(pool).Upsert(ctx, c.members(pepper)); err != nil {
		return errors.Wrap(err, "upsert staff")
	}
	lg.Info("Upserted staff", zap.Int("count", len(c.Staff)))
	return nil
}
