package parser

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-scrape-grocery/config"
	"github.com/aluiziolira/go-scrape-grocery/models"
)

func TestPriceForm(t *testing.T) {
	form, err := PriceForm(config.DefaultConfig(), PriceQuery{
		ProductID:   "6000197424572",
		SkuIDs:      []string{"6000197424573", "6000197424574"},
		ActiveSkuID: "6000197424573",
	})
	require.NoError(t, err)

	require.Equal(t, "1001", form.Get("availabilityStoreId"))
	require.Equal(t, "grocery", form.Get("experience"))
	require.Equal(t, "L1C", form.Get("fsa"))
	require.Equal(t, "en", form.Get("lang"))

	var products []map[string]any
	require.NoError(t, json.Unmarshal([]byte(form.Get("products")), &products))
	require.Len(t, products, 1)
	require.Equal(t, "6000197424572", products[0]["productId"])
	require.Equal(t, []any{"6000197424573", "6000197424574"}, products[0]["skuIds"])
}

func TestApplyOffer(t *testing.T) {
	offers, err := ParseOffers([]byte(`{"offers":{"6000197424573":{"currentPrice":1.47,"sellerInfo":{"en":"Walmart","fr":"Walmart"}}}}`))
	require.NoError(t, err)

	product := &models.Product{SKU: "6000197424573"}
	require.NoError(t, ApplyOffer(product, offers, "en"))
	require.True(t, product.Priced())
	require.Equal(t, 1.47, product.Price)
	require.Equal(t, "Walmart", product.Store)
}

func TestApplyOfferMissingSku(t *testing.T) {
	offers, err := ParseOffers([]byte(`{"offers":{"other":{"currentPrice":2,"sellerInfo":{"en":"Walmart"}}}}`))
	require.NoError(t, err)

	product := &models.Product{SKU: "6000197424573"}
	err = ApplyOffer(product, offers, "en")
	require.True(t, errors.Is(err, ErrOfferNotFound), "got %v", err)
	require.False(t, product.Priced())
}

func TestApplyOfferIgnoresMalformedSiblings(t *testing.T) {
	body := `{"offers":{
		"S1":{"currentPrice":3.25,"sellerInfo":{"en":"Walmart","id":0}},
		"S4":{"currentPrice":"N/A","sellerInfo":{"en":7}}
	}}`
	offers, err := ParseOffers([]byte(body))
	require.NoError(t, err)

	product := &models.Product{SKU: "S1"}
	require.NoError(t, ApplyOffer(product, offers, "en"))
	require.Equal(t, 3.25, product.Price)
	require.Equal(t, "Walmart", product.Store)

	sibling := &models.Product{SKU: "S4"}
	err = ApplyOffer(sibling, offers, "en")
	var extraction ExtractionError
	require.True(t, errors.As(err, &extraction), "got %v", err)
	require.Equal(t, "offers.S4", extraction.Field)
	require.False(t, sibling.Priced())
}

func TestApplyOfferIncompleteOffer(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "no price", body: `{"offers":{"1":{"sellerInfo":{"en":"Walmart"}}}}`},
		{name: "no seller in language", body: `{"offers":{"1":{"currentPrice":2,"sellerInfo":{"fr":"Walmart"}}}}`},
		{name: "seller name not a string", body: `{"offers":{"1":{"currentPrice":2,"sellerInfo":{"en":12}}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offers, err := ParseOffers([]byte(tt.body))
			require.NoError(t, err)
			product := &models.Product{SKU: "1"}
			require.Error(t, ApplyOffer(product, offers, "en"))
			require.False(t, product.Priced())
		})
	}
}

func TestParseOffersMalformed(t *testing.T) {
	for _, body := range []string{`not json`, `{"price":1}`} {
		_, err := ParseOffers([]byte(body))
		var extraction ExtractionError
		require.True(t, errors.As(err, &extraction), "body %q: got %v", body, err)
	}
}

func TestValidateProduct(t *testing.T) {
	priced := &models.Product{SKU: "1", URL: "http://example.test/1"}
	priced.SetOffer(1.5, "Walmart")

	noStore := &models.Product{SKU: "2"}
	noStore.SetOffer(1.5, " ")

	tests := []struct {
		name    string
		product *models.Product
		wantErr bool
	}{
		{name: "complete", product: priced, wantErr: false},
		{name: "nil", product: nil, wantErr: true},
		{name: "missing sku", product: &models.Product{URL: "http://example.test/3"}, wantErr: true},
		{name: "unpriced", product: &models.Product{SKU: "4"}, wantErr: true},
		{name: "missing store", product: noStore, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProduct(tt.product)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateProduct() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if err := ValidateProduct(&models.Product{SKU: "4"}); !errors.Is(err, ErrUnpriced) {
		t.Fatalf("expected ErrUnpriced, got %v", err)
	}
}
