package config

import (
	"fmt"
	"net/http"
)

// Session is the per-run request context every stage shares: which branch
// is being priced, where the site lives, and the cookies that pin the store.
// It is built once and never mutated.
type Session struct {
	branch       string
	baseURL      string
	categoryURL  string
	imageBaseURL string
	cookies      []*http.Cookie
}

// NewSession derives the session from a validated config.
func NewSession(cfg *Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}

	// Order matches what the site sets when a shopper picks a store.
	cookies := []*http.Cookie{
		{Name: "deliveryCatchment", Value: cfg.AvailabilityStoreID},
		{Name: "defaultNearestStoreId", Value: cfg.AvailabilityStoreID},
		{Name: "wmt.breakpoint", Value: "d"},
		{Name: "walmart.shippingPostalCode", Value: cfg.PostalCode},
		{Name: "walmart.preferredstore", Value: cfg.Branch},
	}

	return &Session{
		branch:       cfg.Branch,
		baseURL:      cfg.BaseURL,
		categoryURL:  cfg.CategoryURL(),
		imageBaseURL: cfg.ImageBaseURL,
		cookies:      cookies,
	}, nil
}

func (s *Session) Branch() string       { return s.branch }
func (s *Session) BaseURL() string      { return s.baseURL }
func (s *Session) CategoryURL() string  { return s.categoryURL }
func (s *Session) ImageBaseURL() string { return s.imageBaseURL }

// Cookies returns a copy of the session cookies in their configured order.
func (s *Session) Cookies() []*http.Cookie {
	out := make([]*http.Cookie, len(s.cookies))
	for i, c := range s.cookies {
		cp := *c
		out[i] = &cp
	}
	return out
}
