package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-grocery/models"

	_ "modernc.org/sqlite"
)

const productsSchema = `
CREATE TABLE IF NOT EXISTS products (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	url         TEXT NOT NULL,
	sku         TEXT NOT NULL,
	brand       TEXT,
	name        TEXT,
	description TEXT,
	package     TEXT,
	image_url   TEXT,
	barcodes    TEXT,
	branch      TEXT NOT NULL,
	stock       INTEGER,
	category    TEXT,
	price       REAL NOT NULL,
	store       TEXT NOT NULL,
	scraped_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS products_sku_branch ON products (sku, branch);
`

const insertProduct = `
INSERT INTO products (url, sku, brand, name, description, package, image_url, barcodes, branch, stock, category, price, store, scraped_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SQLiteWriter appends products to a products table. Each batch is one transaction.
type SQLiteWriter struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteWriter opens (or creates) the database at filename and ensures the schema.
func NewSQLiteWriter(filename string) (*SQLiteWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serialises writers on one file.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(productsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create products schema: %w", err)
	}
	return &SQLiteWriter{db: db}, nil
}

// Write inserts a batch of products in one transaction.
func (sw *SQLiteWriter) Write(products []*models.Product) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	ctx := context.Background()
	tx, err := sw.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sqlite tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertProduct)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range products {
		if _, err := stmt.ExecContext(ctx,
			p.URL, p.SKU, p.Brand, p.Name, p.Description, p.Package, p.ImageURL,
			p.Barcodes, p.Branch, p.Stock, p.Category, p.Price, p.Store,
			p.ScrapedAt.UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("insert product %s: %w", p.SKU, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sqlite tx: %w", err)
	}
	return nil
}

// Close closes the database.
func (sw *SQLiteWriter) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.db.Close()
}

// Validate reports ErrEmptyOutput when the products table has no rows.
func (sw *SQLiteWriter) Validate() error {
	var count int
	if err := sw.db.QueryRow(`SELECT COUNT(*) FROM products`).Scan(&count); err != nil {
		return fmt.Errorf("count products: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("sqlite products table: %w", ErrEmptyOutput)
	}
	return nil
}
