// Command catalog-import bulk-loads a gzipped NDJSON catalog export into
// the products table. Supplier exports overlap and repeat SKUs; a bloom
// filter keeps the fast path of duplicate detection off the database, and
// files are scanned in parallel.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/orbisretail/fulfillment/internal/domain/product"
	"github.com/orbisretail/fulfillment/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 100_000
)

// catalogRow is one NDJSON line of a supplier export.
type catalogRow struct {
	SKU       string           `json:"sku"`
	Title     string           `json:"title"`
	Price     decimal.Decimal  `json:"price"`
	SalePrice *decimal.Decimal `json:"salePrice"`
	Stock     int              `json:"stock"`
	Image     string           `json:"image"`
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing catalog-*.ndjson.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "catalog-*.ndjson.gz"))
	if err != nil {
		return errors.Wrap(err, "glob catalog files")
	}
	if len(files) == 0 {
		return errors.Errorf("no catalog files found in %s", dataDir)
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewProductRepository(pool)
	imp := &importer{
		repo:   repo,
		filter: bloom.NewWithEstimates(bloomCapacity, bloomFPR),
	}

	slog.Info("importing catalog files", slog.Int("files", len(files)))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(imp.importFile(ctx, i, f))
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("import finished",
		slog.Uint64("imported", imp.imported),
		slog.Uint64("duplicates", imp.duplicates),
	)
	return nil
}

type importer struct {
	repo *postgres.ProductRepository

	mu         sync.Mutex
	filter     *bloom.BloomFilter
	imported   uint64
	duplicates uint64
}

// seen records the SKU in the shared bloom filter and reports whether it
// was (probably) already imported. False positives only cost an extra
// upsert of the same row, never a lost product.
func (imp *importer) seen(sku string) bool {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	return imp.filter.TestOrAddString(sku)
}

func (imp *importer) importFile(ctx context.Context, idx int, path string) func() error {
	return func() error {
		var count uint64

		err := streamGzFile(ctx, path, func(line []byte) error {
			var row catalogRow
			if err := json.Unmarshal(line, &row); err != nil {
				return errors.Wrap(err, "parse catalog row")
			}
			if row.SKU == "" {
				return nil
			}

			if imp.seen(row.SKU) {
				imp.mu.Lock()
				imp.duplicates++
				imp.mu.Unlock()
				return nil
			}

			err := imp.repo.Upsert(ctx, product.Product{
				ID:        row.SKU,
				Title:     row.Title,
				Price:     row.Price,
				SalePrice: row.SalePrice,
				Stock:     row.Stock,
				Image:     row.Image,
				Active:    true,
			})
			if err != nil {
				return err
			}

			imp.mu.Lock()
			imp.imported++
			count++
			imp.mu.Unlock()

			if count%progressEvery == 0 {
				slog.Info("import progress",
					slog.Int("file", idx+1),
					slog.Uint64("rows", count),
				)
			}
			return nil
		})
		if err != nil {
			return errors.Wrapf(err, "import file %d", idx+1)
		}

		slog.Info("file imported", slog.Int("file", idx+1), slog.Uint64("rows", count))
		return nil
	}
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Bytes()); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
