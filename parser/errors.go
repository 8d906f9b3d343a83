package parser

import (
	"errors"
	"fmt"
)

var (
	// ErrStateNotFound means the product page carried no embedded state blob.
	ErrStateNotFound = errors.New("parser: embedded state not found")
	// ErrOfferNotFound means the price response had no offer for the active SKU.
	ErrOfferNotFound = errors.New("parser: offer not found")
	// ErrUnpriced means a record reached validation without a resolved offer.
	ErrUnpriced = errors.New("parser: product has no price")
)

// ExtractionError reports a missing or malformed field in page or API data.
type ExtractionError struct {
	Field string
	Err   error
}

func (e ExtractionError) Error() string {
	return fmt.Errorf("extract %s: %w", e.Field, e.Err).Error()
}

func (e ExtractionError) Unwrap() error {
	return e.Err
}

func missing(field string) error {
	return ExtractionError{Field: field, Err: errors.New("missing")}
}
