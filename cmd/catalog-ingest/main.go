// Command catalog-ingest bulk-loads distributor catalog dumps into the books
// table. Dumps are gzipped JSONL files ("books-*.jsonl.gz"); the same title
// routinely appears in several dumps, so a bloom filter of ISBNs already in
// the database (plus those inserted this run) prefilters duplicates before
// they reach PostgreSQL. The unique index on isbn stays the exact backstop
// for bloom false negatives.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/pageturn/bookstore/internal/postgres"
)

const (
	bloomCapacity = 20_000_000
	bloomFPR      = 0.001
	batchSize     = 1_000
	progressEvery = 100_000
)

// record is one parsed dump line.
type record struct {
	title  string
	isbn   string
	price  decimal.Decimal
	stock  int
	genre  string
	author string
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing books-*.jsonl.gz dumps")
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
		slog.Error("ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "books-*.jsonl.gz"))
	if err != nil {
		return errors.Wrap(err, "glob dumps")
	}
	if len(files) == 0 {
		return errors.Errorf("no dumps matching books-*.jsonl.gz in %s", dataDir)
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("priming bloom filter from existing catalog")
	seen, err := primeFilter(ctx, pool)
	if err != nil {
		return errors.Wrap(err, "prime bloom filter")
	}

	slog.Info("ingesting dumps", slog.Int("files", len(files)))

	records := make(chan record, 4*batchSize)
	g, ctx := errgroup.WithContext(ctx)

	// One reader goroutine per dump, one writer draining the channel.
	readers, readerCtx := errgroup.WithContext(ctx)
	for _, path := range files {
		readers.Go(scanDump(readerCtx, path, records))
	}
	g.Go(func() error {
		defer close(records)
		return readers.Wait()
	})

	var inserted int64
	g.Go(func() error {
		n, err := writeRecords(ctx, pool, records, seen)
		inserted = n
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("ingest complete", slog.Int64("inserted", inserted))
	return nil
}

// primeFilter streams every ISBN already in the books table into a fresh
// bloom filter.
func primeFilter(ctx context.Context, pool *pgxpool.Pool) (*bloom.BloomFilter, error) {
	filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)

	rows, err := pool.Query(ctx, `SELECT isbn FROM books WHERE isbn IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var isbn string
		if err := rows.Scan(&isbn); err != nil {
			return nil, err
		}
		filter.AddString(isbn)
	}
	return filter, rows.Err()
}

// scanDump streams one gzipped JSONL dump and sends parsed records.
func scanDump(ctx context.Context, path string, out chan<- record) func() error {
	return func() error {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "open %s", path)
		}
		defer f.Close()

		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "gzip %s", path)
		}
		defer gz.Close()

		var lines int64
		sc := bufio.NewScanner(gz)
		sc.Buffer(make([]byte, 0, 1<<16), 1<<20)
		for sc.Scan() {
			rec, err := parseLine(sc.Bytes())
			if err != nil {
				slog.Warn("skipping malformed line",
					slog.String("file", filepath.Base(path)),
					slog.String("error", err.Error()))
				continue
			}
			if rec.isbn == "" || rec.title == "" {
				continue
			}

			select {
			case out <- rec:
			case <-ctx.Done():
				return ctx.Err()
			}

			lines++
			if lines%progressEvery == 0 {
				slog.Info("progress",
					slog.String("file", filepath.Base(path)),
					slog.Int64("lines", lines))
			}
		}
		return errors.Wrapf(sc.Err(), "scan %s", path)
	}
}

func parseLine(line []byte) (record, error) {
	var rec record
	d := jx.DecodeBytes(line)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "title":
			v, err := d.Str()
			rec.title = v
			return err
		case "isbn":
			v, err := d.Str()
			rec.isbn = v
			return err
		case "price":
			num, err := d.Num()
			if err != nil {
				return err
			}
			p, err := decimal.NewFromString(num.String())
			rec.price = p
			return err
		case "stock_quantity":
			v, err := d.Int()
			rec.stock = v
			return err
		case "genre":
			v, err := d.Str()
			rec.genre = v
			return err
		case "author":
			v, err := d.Str()
			rec.author = v
			return err
		default:
			return d.Skip()
		}
	})
	return rec, err
}

// writeRecords drains the channel, skipping ISBNs the bloom filter has seen,
// and flushes batched inserts. Returns the number of rows sent.
func writeRecords(ctx context.Context, pool *pgxpool.Pool, in <-chan record, seen *bloom.BloomFilter) (int64, error) {
	const insertSQL = `INSERT INTO books (title, isbn, price, stock_quantity, genre_id, author_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (isbn) DO NOTHING`

	var (
		refs     = newRefCache(pool)
		pending  pgx.Batch
		inserted int64
	)

	flush := func() error {
		if pending.Len() == 0 {
			return nil
		}
		br := pool.SendBatch(ctx, &pending)
		defer br.Close()
		for range pending.Len() {
			if _, err := br.Exec(); err != nil {
				return errors.Wrap(err, "flush batch")
			}
		}
		inserted += int64(pending.Len())
		pending = pgx.Batch{}
		return nil
	}

	for rec := range in {
		if seen.TestString(rec.isbn) {
			continue
		}
		seen.AddString(rec.isbn)

		genreID, err := refs.genre(ctx, rec.genre)
		if err != nil {
			return inserted, err
		}
		authorID, err := refs.author(ctx, rec.author)
		if err != nil {
			return inserted, err
		}

		pending.Queue(insertSQL, rec.title, rec.isbn, rec.price, rec.stock, genreID, authorID)
		if pending.Len() >= batchSize {
			if err := flush(); err != nil {
				return inserted, err
			}
		}
	}
	return inserted, flush()
}

// refCache lazily upserts genres and authors by name.
type refCache struct {
	pool    *pgxpool.Pool
	genres  map[string]int64
	authors map[string]int64
}

func newRefCache(pool *pgxpool.Pool) *refCache {
	return &refCache{
		pool:    pool,
		genres:  make(map[string]int64),
		authors: make(map[string]int64),
	}
}

func (c *refCache) genre(ctx context.Context, name string) (*int64, error) {
	if name == "" {
		return nil, nil
	}
	if id, ok := c.genres[name]; ok {
		return &id, nil
	}
	var id int64
	err := c.pool.QueryRow(ctx,
		`INSERT INTO genres (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`, name).Scan(&id)
	if err != nil {
		return nil, errors.Wrapf(err, "upsert genre %q", name)
	}
	c.genres[name] = id
	return &id, nil
}

func (c *refCache) author(ctx context.Context, name string) (*int64, error) {
	if name == "" {
		return nil, nil
	}
	if id, ok := c.authors[name]; ok {
		return &id, nil
	}
	var id int64
	err := c.pool.QueryRow(ctx,
		`SELECT id FROM authors WHERE name = $1 LIMIT 1`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		err = c.pool.QueryRow(ctx,
			`INSERT INTO authors (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "upsert author %q", name)
	}
	c.authors[name] = id
	return &id, nil
}
