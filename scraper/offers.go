package scraper

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-grocery/parser"
)

// offerCache remembers price responses per product id. The endpoint answers
// for every SKU of a product at once, so sibling SKU pages can be priced
// without another request. A zero size disables it.
type offerCache struct {
	cache *lru.Cache[string, parser.Offers]
}

func newOfferCache(size int) (*offerCache, error) {
	if size <= 0 {
		return &offerCache{}, nil
	}
	cache, err := lru.New[string, parser.Offers](size)
	if err != nil {
		return nil, fmt.Errorf("create offer cache: %w", err)
	}
	return &offerCache{cache: cache}, nil
}

func (c *offerCache) Get(productID string) (parser.Offers, bool) {
	if c == nil || c.cache == nil || productID == "" {
		return nil, false
	}
	return c.cache.Get(productID)
}

func (c *offerCache) Add(productID string, offers parser.Offers) {
	if c == nil || c.cache == nil || productID == "" {
		return
	}
	c.cache.Add(productID, offers)
}

func (c *offerCache) Len() int {
	if c == nil || c.cache == nil {
		return 0
	}
	return c.cache.Len()
}
