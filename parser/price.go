package parser

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/aluiziolira/go-scrape-grocery/config"
	"github.com/aluiziolira/go-scrape-grocery/models"
)

type priceProduct struct {
	ProductID string   `json:"productId"`
	SkuIDs    []string `json:"skuIds"`
}

// PriceForm builds the form the site's product page posts to the price endpoint.
func PriceForm(cfg *config.Config, q PriceQuery) (url.Values, error) {
	products, err := json.Marshal([]priceProduct{{ProductID: q.ProductID, SkuIDs: q.SkuIDs}})
	if err != nil {
		return nil, fmt.Errorf("encode price products: %w", err)
	}

	form := url.Values{}
	form.Set("availabilityStoreId", cfg.AvailabilityStoreID)
	form.Set("experience", cfg.Experience)
	form.Set("fsa", cfg.FSA)
	form.Set("lang", cfg.Lang)
	form.Set("products", string(products))
	return form, nil
}

// Offer is one store-specific price entry for a SKU.
type Offer struct {
	CurrentPrice *float64       `json:"currentPrice"`
	SellerInfo   map[string]any `json:"sellerInfo"`
}

// Offers maps SKU ids to their undecoded offers. Entries are decoded one at a
// time, so an odd sibling entry cannot spoil the others.
type Offers map[string]json.RawMessage

// ParseOffers decodes a price endpoint response body.
func ParseOffers(body []byte) (Offers, error) {
	var payload struct {
		Offers Offers `json:"offers"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, ExtractionError{Field: "offers", Err: err}
	}
	if payload.Offers == nil {
		return nil, missing("offers")
	}
	return payload.Offers, nil
}

// ApplyOffer completes p with the offer for its SKU, using the seller name
// in lang.
func ApplyOffer(p *models.Product, offers Offers, lang string) error {
	raw, ok := offers[p.SKU]
	if !ok {
		return ExtractionError{Field: "offers." + p.SKU, Err: ErrOfferNotFound}
	}
	var offer Offer
	if err := json.Unmarshal(raw, &offer); err != nil {
		return ExtractionError{Field: "offers." + p.SKU, Err: err}
	}
	if offer.CurrentPrice == nil {
		return missing("offers." + p.SKU + ".currentPrice")
	}
	store, ok := offer.SellerInfo[lang].(string)
	if !ok {
		return missing("offers." + p.SKU + ".sellerInfo." + lang)
	}
	p.SetOffer(*offer.CurrentPrice, store)
	return nil
}
