package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/maltedev/sku-scraper/internal/models"
)

// ScrapedProduct is an archived table row. Fields that were not found are
// stored as NULL.
type ScrapedProduct struct {
	ID          uuid.UUID           `db:"id"`
	BatchID     uuid.UUID           `db:"batch_id"`
	SKU         string              `db:"sku"`
	Name        *string             `db:"name"`
	Description *string             `db:"description"`
	Price       decimal.NullDecimal `db:"price"`
	Stock       *int                `db:"stock"`
	URL         string              `db:"url"`
	ScrapedAt   time.Time           `db:"scraped_at"`
}

func NewScrapedProduct(batchID uuid.UUID, rec *models.ProductRecord) *ScrapedProduct {
	p := &ScrapedProduct{
		ID:        uuid.New(),
		BatchID:   batchID,
		SKU:       rec.SKU,
		URL:       rec.URL,
		ScrapedAt: rec.ScrapedAt,
	}
	if rec.Name.Found {
		name := rec.Name.Value
		p.Name = &name
	}
	if rec.Description.Found {
		desc := rec.Description.Value
		p.Description = &desc
	}
	if rec.Price.Found {
		p.Price = decimal.NewNullDecimal(rec.Price.Value)
	}
	if rec.Stock.Found {
		stock := rec.Stock.Value
		p.Stock = &stock
	}
	return p
}

// Record converts the row back into a table record.
func (p *ScrapedProduct) Record() models.ProductRecord {
	rec := models.ProductRecord{
		SKU:       p.SKU,
		URL:       p.URL,
		ScrapedAt: p.ScrapedAt,
	}
	if p.Name != nil {
		rec.Name = models.Found(*p.Name)
	}
	if p.Description != nil {
		rec.Description = models.Found(*p.Description)
	}
	if p.Price.Valid {
		rec.Price = models.Found(p.Price.Decimal)
	}
	if p.Stock != nil {
		rec.Stock = models.Found(*p.Stock)
	}
	return rec
}

type ScrapeRepository struct {
	db *DB
}

func NewScrapeRepository(db *DB) *ScrapeRepository {
	return &ScrapeRepository{db: db}
}

func (r *ScrapeRepository) InsertWithTx(ctx context.Context, tx pgx.Tx, p *ScrapedProduct) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.ScrapedAt.IsZero() {
		p.ScrapedAt = time.Now()
	}

	query := `
		INSERT INTO scraped_products (
			id, batch_id, sku, name, description,
			price, stock, url, scraped_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)`

	_, err := tx.Exec(ctx, query,
		p.ID, p.BatchID, p.SKU, p.Name, p.Description,
		p.Price, p.Stock, p.URL, p.ScrapedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert scraped product: %w", err)
	}

	return nil
}

// ListBySKU returns the archived scrapes of sku, newest first.
func (r *ScrapeRepository) ListBySKU(ctx context.Context, sku string, limit int) ([]*ScrapedProduct, error) {
	query := `
		SELECT id, batch_id, sku, name, description, price, stock, url, scraped_at
		FROM scraped_products
		WHERE sku = $1
		ORDER BY scraped_at DESC
		LIMIT $2`

	rows, err := r.db.pool.Query(ctx, query, sku, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scrapes for %s: %w", sku, err)
	}
	defer rows.Close()

	var products []*ScrapedProduct
	for rows.Next() {
		p := &ScrapedProduct{}
		if err := rows.Scan(
			&p.ID, &p.BatchID, &p.SKU, &p.Name, &p.Description,
			&p.Price, &p.Stock, &p.URL, &p.ScrapedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan scraped product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return products, nil
}
