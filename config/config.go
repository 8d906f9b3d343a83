package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds scraper configuration.
//
// Durations loaded from a config file are expressed in nanoseconds.
type Config struct {
	BaseURL      string `json:"base_url"`
	CategoryPath string `json:"category_path"`
	ImageBaseURL string `json:"image_base_url"`
	PricePath    string `json:"price_path"`
	Branch       string `json:"branch"`

	// Fixed parameters the site's own UI sends to the price-offer endpoint.
	AvailabilityStoreID string `json:"availability_store_id"`
	Experience          string `json:"experience"`
	FSA                 string `json:"fsa"`
	Lang                string `json:"lang"`
	PostalCode          string `json:"postal_code"`

	MaxPages           int           `json:"max_pages"` // 0 follows every pagination token
	Parallelism        int           `json:"parallelism"`
	Delay              time.Duration `json:"delay"`
	RandomDelay        time.Duration `json:"random_delay"`
	Timeout            time.Duration `json:"timeout"`
	MaxRetries         int           `json:"max_retries"` // 0 drops a failed fetch without retrying
	RetryBackoff       time.Duration `json:"retry_backoff"`
	RetryBackoffMax    time.Duration `json:"retry_backoff_max"`
	PipelineBufferSize int           `json:"pipeline_buffer_size"`
	BatchSize          int           `json:"batch_size"`
	OfferCacheSize     int           `json:"offer_cache_size"`
	OutputFile         string        `json:"output_file"`
	OutputFormat       string        `json:"output_format"` // csv, json, dual, or sqlite
	UserAgent          string        `json:"user_agent"`
	Verbose            bool          `json:"verbose"`
	RespectRobotsTxt   bool          `json:"respect_robots_txt"`
	MetricsAddr        string        `json:"metrics_addr"`
	LogFile            string        `json:"log_file"`
}

// DefaultConfig returns defaults for the fruits category of the Canadian grocery site.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:             "https://www.walmart.ca",
		CategoryPath:        "/en/grocery/fruits-vegetables/fruits/N-3852",
		ImageBaseURL:        "https://i5.walmartimages.ca",
		PricePath:           "/api/product-page/price-offer",
		Branch:              "3106",
		AvailabilityStoreID: "1001",
		Experience:          "grocery",
		FSA:                 "L1C",
		Lang:                "en",
		PostalCode:          "M9V2G9",
		MaxPages:            0,
		Parallelism:         8,
		Delay:               0,
		RandomDelay:         0,
		Timeout:             15 * time.Second,
		MaxRetries:          0,
		RetryBackoff:        200 * time.Millisecond,
		RetryBackoffMax:     2 * time.Second,
		PipelineBufferSize:  512,
		BatchSize:           64,
		OfferCacheSize:      1024,
		OutputFile:          "output/products.csv",
		OutputFormat:        "csv",
		UserAgent:           "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		Verbose:             false,
		RespectRobotsTxt:    false,
	}
}

// CategoryURL is the absolute URL of the category landing page.
func (c *Config) CategoryURL() string {
	return strings.TrimSuffix(c.BaseURL, "/") + "/" + strings.TrimPrefix(c.CategoryPath, "/")
}

// PriceURL is the absolute URL of the price-offer endpoint.
func (c *Config) PriceURL() string {
	return strings.TrimSuffix(c.BaseURL, "/") + "/" + strings.TrimPrefix(c.PricePath, "/")
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	if c.CategoryPath == "" {
		return fmt.Errorf("category path cannot be empty")
	}
	if c.PricePath == "" {
		return fmt.Errorf("price path cannot be empty")
	}
	if c.ImageBaseURL == "" {
		return fmt.Errorf("image base URL cannot be empty")
	}
	if strings.TrimSpace(c.Branch) == "" {
		return fmt.Errorf("branch cannot be empty")
	}

	if c.MaxPages < 0 {
		return fmt.Errorf("max pages cannot be negative")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.OfferCacheSize < 0 {
		return fmt.Errorf("offer cache size cannot be negative")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	switch c.OutputFormat {
	case "csv", "json", "dual", "sqlite":
	default:
		return fmt.Errorf("output format must be csv, json, dual, or sqlite")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}
