package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/aluiziolira/go-scrape-grocery/parser"
)

// Request failure kinds, also used as metric labels.
const (
	kindTimeout     = "timeout"
	kindConnection  = "connection"
	kindForbidden   = "forbidden"
	kindNotFound    = "not_found"
	kindRateLimited = "rate_limited"
)

// RequestError is a fetch failure tagged with its kind.
type RequestError struct {
	Kind string
	Err  error
}

func (e RequestError) Error() string {
	return fmt.Errorf("%s: %w", e.Kind, e.Err).Error()
}

func (e RequestError) Unwrap() error {
	return e.Err
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return RequestError{Kind: kindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return RequestError{Kind: kindTimeout, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return RequestError{Kind: kindConnection, Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return RequestError{Kind: kindForbidden, Err: wrapped}
		case http.StatusNotFound:
			return RequestError{Kind: kindNotFound, Err: wrapped}
		case http.StatusTooManyRequests:
			return RequestError{Kind: kindRateLimited, Err: wrapped}
		}
	}

	return err
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var reqErr RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Kind
	}
	return "other"
}

// dropReason labels why an item left the crawl before it was emitted.
func dropReason(err error) string {
	switch {
	case err == nil:
		return "unknown"
	case errors.Is(err, parser.ErrStateNotFound):
		return "state_missing"
	case errors.Is(err, parser.ErrOfferNotFound):
		return "offer_missing"
	}
	var extraction parser.ExtractionError
	if errors.As(err, &extraction) {
		return "extraction"
	}
	return "price_" + errorTypeLabel(err)
}
