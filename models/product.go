// Package models defines data structures for the scraper.
package models

import "time"

// Product is one finalized catalog record for a single SKU at a branch.
//
// The detail stage fills everything except Price and Store; the price stage
// completes the record before it is handed to the pipeline.
type Product struct {
	URL         string    `csv:"url" json:"url"`
	SKU         string    `csv:"sku" json:"sku"`
	Brand       string    `csv:"brand" json:"brand"`
	Name        string    `csv:"name" json:"name"`
	Description string    `csv:"description" json:"description"`
	Package     string    `csv:"package" json:"package"`
	ImageURL    string    `csv:"image_url" json:"image_url"`
	Barcodes    string    `csv:"barcodes" json:"barcodes"`
	Branch      string    `csv:"branch" json:"branch"`
	Stock       int       `csv:"stock" json:"stock"`
	Category    string    `csv:"category" json:"category"`
	Price       float64   `csv:"price" json:"price"`
	Store       string    `csv:"store" json:"store"`
	ScrapedAt   time.Time `csv:"scraped_at" json:"scraped_at"`

	priced bool
}

// SetOffer records the branch price and seller, completing the record.
func (p *Product) SetOffer(price float64, store string) {
	p.Price = price
	p.Store = store
	p.priced = true
}

// Priced reports whether SetOffer has been called.
func (p *Product) Priced() bool {
	return p != nil && p.priced
}

// ScraperResult holds the overall result of a scraping operation
type ScraperResult struct {
	StartTime    time.Time
	EndTime      time.Time
	TotalCount   int
	ErrorCount   int
	DroppedCount int
	FailedURLs   []string
	ErrorsByType map[string]int
	DropsByType  map[string]int
	RetryCount   int
	RequestCount int
	PageCount    int
}
