package parser

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-grocery/models"
)

// ValidateProduct ensures a record is complete enough to emit.
func ValidateProduct(p *models.Product) error {
	if p == nil {
		return fmt.Errorf("product is nil")
	}
	if strings.TrimSpace(p.SKU) == "" {
		return fmt.Errorf("product missing sku for %s", p.URL)
	}
	if !p.Priced() {
		return fmt.Errorf("product %s: %w", p.SKU, ErrUnpriced)
	}
	if strings.TrimSpace(p.Store) == "" {
		return fmt.Errorf("product missing store for %s", p.SKU)
	}
	return nil
}
