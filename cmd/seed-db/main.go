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

	"github.com/velmart/storefront/internal/storage/postgres"
)

type productJSON struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Price         decimal.Decimal  `json:"price"`
	DiscountPrice *decimal.Decimal `json:"discount_price,omitempty"`
	StockQuantity int              `json:"stock_quantity"`
	IsActive      bool             `json:"is_active"`
}

type courierJSON struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Phone  string   `json:"phone"`
	Lat    *float64 `json:"lat,omitempty"`
	Lng    *float64 `json:"lng,omitempty"`
	Rating float64  `json:"rating"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		couriersFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&couriersFile, "couriers-file", "db/seed/couriers.json", "path to couriers JSON file")
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

	if err := run(ctx, databaseURL, productsFile, couriersFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, couriersFile string) error {
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

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedCouriers(ctx, pool, couriersFile); err != nil {
		return errors.Wrap(err, "seed couriers")
	}

	if err := seedDiscountCodes(ctx, pool); err != nil {
		return errors.Wrap(err, "seed discount codes")
	}

	return nil
}

const upsertProductSQL = `INSERT INTO products (id, name, price, discount_price, stock_quantity, is_active)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name,
		price = EXCLUDED.price,
		discount_price = EXCLUDED.discount_price,
		stock_quantity = EXCLUDED.stock_quantity,
		is_active = EXCLUDED.is_active`

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		var discountPrice decimal.NullDecimal
		if p.DiscountPrice != nil {
			discountPrice = decimal.NullDecimal{Decimal: *p.DiscountPrice, Valid: true}
		}
		if _, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.Price, discountPrice, p.StockQuantity, p.IsActive,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

const upsertCourierSQL = `INSERT INTO courier_riders (id, name, phone, is_available, current_lat, current_lng, rating, total_deliveries)
	VALUES ($1, $2, $3, TRUE, $4, $5, $6, 0)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name,
		phone = EXCLUDED.phone,
		current_lat = EXCLUDED.current_lat,
		current_lng = EXCLUDED.current_lng,
		rating = EXCLUDED.rating`

func seedCouriers(ctx context.Context, pool *pgxpool.Pool, couriersFile string) error {
	slog.Info("reading couriers file", slog.String("path", couriersFile))

	data, err := os.ReadFile(couriersFile)
	if err != nil {
		return errors.Wrap(err, "read couriers file")
	}

	var couriers []courierJSON
	if err := json.Unmarshal(data, &couriers); err != nil {
		return errors.Wrap(err, "parse couriers JSON")
	}

	slog.Info("upserting couriers", slog.Int("count", len(couriers)))

	for _, c := range couriers {
		if _, err := pool.Exec(ctx, upsertCourierSQL,
			c.ID, c.Name, c.Phone, c.Lat, c.Lng, c.Rating,
		); err != nil {
			return errors.Wrapf(err, "upsert courier %s", c.ID)
		}

		slog.Info("upserted courier", slog.String("id", c.ID), slog.String("name", c.Name))
	}

	return nil
}

const upsertDiscountSQL = `INSERT INTO discount_codes
	(code, discount_type, discount_value, is_active, valid_from, valid_until, max_uses, min_purchase_amount)
	VALUES ($1, $2, $3, TRUE, $4, $5, $6, $7)
	ON CONFLICT (code) DO UPDATE SET
		discount_type = EXCLUDED.discount_type,
		discount_value = EXCLUDED.discount_value,
		is_active = TRUE,
		valid_from = EXCLUDED.valid_from,
		valid_until = EXCLUDED.valid_until,
		max_uses = EXCLUDED.max_uses,
		min_purchase_amount = EXCLUDED.min_purchase_amount`

func seedDiscountCodes(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding discount codes")

	type seedCode struct {
		code        string
		kind        string
		value       decimal.Decimal
		maxUses     *int
		minPurchase *decimal.Decimal
	}

	hundredUses := 100
	minFifty := decimal.NewFromInt(50)

	now := time.Now().UTC()
	codes := []seedCode{
		{code: "SAVE10", kind: "percentage", value: decimal.NewFromInt(10), maxUses: &hundredUses},
		{code: "WELCOME20", kind: "percentage", value: decimal.NewFromInt(20), minPurchase: &minFifty},
		{code: "FIVEOFF", kind: "fixed", value: decimal.NewFromInt(5)},
	}

	for _, c := range codes {
		if _, err := pool.Exec(ctx, upsertDiscountSQL,
			c.code, c.kind, c.value, now, now.AddDate(1, 0, 0), c.maxUses, c.minPurchase,
		); err != nil {
			return errors.Wrapf(err, "upsert discount code %s", c.code)
		}

		slog.Info("upserted discount code", slog.String("code", c.code), slog.String("type", c.kind))
	}

	return nil
}
