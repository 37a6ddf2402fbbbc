// Command seed-db creates the schema and loads the development catalog:
// genres, authors, users, books, and promotions from a JSON seed file.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pageturn/bookstore/internal/postgres"
)

type seedFile struct {
	Genres  []string `json:"genres"`
	Authors []struct {
		Name string `json:"name"`
		Bio  string `json:"bio"`
	} `json:"authors"`
	Users []struct {
		Email    string `json:"email"`
		FullName string `json:"full_name"`
	} `json:"users"`
	Books []struct {
		Title      string          `json:"title"`
		ISBN       string          `json:"isbn"`
		Price      decimal.Decimal `json:"price"`
		Stock      int             `json:"stock_quantity"`
		Genre      string          `json:"genre"`
		Author     string          `json:"author"`
		CoverImage string          `json:"cover_image"`
	} `json:"books"`
	Promotions []struct {
		Name          string          `json:"name"`
		DiscountType  string          `json:"discount_type"`
		DiscountValue decimal.Decimal `json:"discount_value"`
		Conditions    json.RawMessage `json:"conditions"`
		StartDate     *time.Time      `json:"start_date"`
		EndDate       *time.Time      `json:"end_date"`
		IsActive      bool            `json:"is_active"`
	} `json:"promotions"`
}

func main() {
	var (
		databaseURL string
		seedPath    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/bookstore.json", "path to seed JSON file")
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

	if err := run(ctx, databaseURL, seedPath); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	data, err := os.ReadFile(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed file")
	}

	genreIDs, err := seedGenres(ctx, pool, seed)
	if err != nil {
		return err
	}
	authorIDs, err := seedAuthors(ctx, pool, seed)
	if err != nil {
		return err
	}
	if err := seedUsers(ctx, pool, seed); err != nil {
		return err
	}
	if err := seedBooks(ctx, pool, seed, genreIDs, authorIDs); err != nil {
		return err
	}
	return seedPromotions(ctx, pool, seed)
}

func seedGenres(ctx context.Context, pool *pgxpool.Pool, seed seedFile) (map[string]int64, error) {
	ids := make(map[string]int64, len(seed.Genres))
	for _, name := range seed.Genres {
		var id int64
		err := pool.QueryRow(ctx,
			`INSERT INTO genres (name) VALUES ($1)
			 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			 RETURNING id`, name).Scan(&id)
		if err != nil {
			return nil, errors.Wrapf(err, "seed genre %q", name)
		}
		ids[name] = id
	}
	slog.Info("seeded genres", slog.Int("count", len(ids)))
	return ids, nil
}

func seedAuthors(ctx context.Context, pool *pgxpool.Pool, seed seedFile) (map[string]int64, error) {
	ids := make(map[string]int64, len(seed.Authors))
	for _, a := range seed.Authors {
		var id int64
		// Authors have no unique key, so look up by name before inserting to
		// keep reruns idempotent.
		err := pool.QueryRow(ctx, `SELECT id FROM authors WHERE name = $1 LIMIT 1`, a.Name).Scan(&id)
		if err != nil {
			err = pool.QueryRow(ctx,
				`INSERT INTO authors (name, bio) VALUES ($1, $2) RETURNING id`,
				a.Name, a.Bio).Scan(&id)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "seed author %q", a.Name)
		}
		ids[a.Name] = id
	}
	slog.Info("seeded authors", slog.Int("count", len(ids)))
	return ids, nil
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, seed seedFile) error {
	for _, u := range seed.Users {
		_, err := pool.Exec(ctx,
			`INSERT INTO users (email, full_name) VALUES ($1, $2)
			 ON CONFLICT (email) DO NOTHING`, u.Email, u.FullName)
		if err != nil {
			return errors.Wrapf(err, "seed user %q", u.Email)
		}
	}
	slog.Info("seeded users", slog.Int("count", len(seed.Users)))
	return nil
}

func seedBooks(ctx context.Context, pool *pgxpool.Pool, seed seedFile, genres, authors map[string]int64) error {
	for _, b := range seed.Books {
		var genreID, authorID *int64
		if id, ok := genres[b.Genre]; ok {
			genreID = &id
		}
		if id, ok := authors[b.Author]; ok {
			authorID = &id
		}
		_, err := pool.Exec(ctx,
			`INSERT INTO books (title, isbn, price, stock_quantity, genre_id, author_id, cover_image)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (isbn) DO UPDATE
			 SET price = EXCLUDED.price, stock_quantity = EXCLUDED.stock_quantity`,
			b.Title, b.ISBN, b.Price, b.Stock, genreID, authorID, b.CoverImage)
		if err != nil {
			return errors.Wrapf(err, "seed book %q", b.Title)
		}
	}
	slog.Info("seeded books", slog.Int("count", len(seed.Books)))
	return nil
}

func seedPromotions(ctx context.Context, pool *pgxpool.Pool, seed seedFile) error {
	for _, p := range seed.Promotions {
		start := time.Now()
		if p.StartDate != nil {
			start = *p.StartDate
		}
		conditions := p.Conditions
		if len(conditions) == 0 {
			conditions = json.RawMessage(`{}`)
		}
		_, err := pool.Exec(ctx,
			`INSERT INTO promotions (name, discount_type, discount_value, conditions, start_date, end_date, is_active)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			p.Name, p.DiscountType, p.DiscountValue, conditions, start, p.EndDate, p.IsActive)
		if err != nil {
			return errors.Wrapf(err, "seed promotion %q", p.Name)
		}
	}
	slog.Info("seeded promotions", slog.Int("count", len(seed.Promotions)))
	return nil
}
