package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-grocery/config"
	"github.com/aluiziolira/go-scrape-grocery/models"
	"github.com/aluiziolira/go-scrape-grocery/parser"
	"github.com/aluiziolira/go-scrape-grocery/pipeline"
)

// Request context keys. Everything an item needs downstream travels on its
// own request context; stages share no per-item state.
const (
	stageKey     = "stage"
	startKey     = "start"
	productKey   = "product"
	productIDKey = "product_id"
)

// Crawl stages, in the order a product passes through them.
const (
	stageListing = "listing"
	stagePage    = "page"
	stageItem    = "item"
	stagePrice   = "price"
)

// Scraper drives the listing -> page -> item -> price crawl for one branch.
type Scraper struct {
	cfg       *config.Config
	session   *config.Session
	collector *colly.Collector
	pricing   *colly.Collector
	extractor parser.StateExtractor
	offers    *offerCache
	retry     *retryManager
	Metrics   *Metrics

	requestCount int64
	pageCount    int64
	errorCount   int64
	dropCount    int64

	mu           sync.Mutex
	failedURLs   []string
	errorsByType map[string]int
	dropsByType  map[string]int

	handlersOnce sync.Once
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	session, err := config.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	collector := colly.NewCollector(
		colly.Async(true),
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	// The store is selected purely by cookie; the jar is shared with the
	// pricing clone below.
	if err := collector.SetCookies(cfg.BaseURL, session.Cookies()); err != nil {
		return nil, fmt.Errorf("set session cookies: %w", err)
	}

	// Sibling SKUs of one product post identical forms, which the main
	// collector would treat as already visited.
	pricing := collector.Clone()
	pricing.AllowURLRevisit = true

	offers, err := newOfferCache(cfg.OfferCacheSize)
	if err != nil {
		return nil, err
	}

	s := &Scraper{
		cfg:          cfg,
		session:      session,
		collector:    collector,
		pricing:      pricing,
		extractor:    parser.NewScriptStateExtractor(),
		offers:       offers,
		errorsByType: make(map[string]int),
		dropsByType:  make(map[string]int),
		Metrics:      NewMetrics(),
	}
	s.retry = newRetryManager(cfg, s.Metrics)
	return s, nil
}

// WithTransport swaps the HTTP transport used by every stage.
func (s *Scraper) WithTransport(rt http.RoundTripper) {
	s.collector.WithTransport(rt)
}

// Run starts the crawl and streams priced products through the pipeline.
func (s *Scraper) Run(ctx context.Context, p *pipeline.Pipeline) (*models.ScraperResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.retry.SetContext(ctx)
	s.configureHandlers(ctx, p)

	start := time.Now()
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			s.retry.Stop()
		case <-done:
		}
	}()

	if err := s.visit(stageListing, s.session.CategoryURL()); err != nil {
		return nil, fmt.Errorf("initial visit: %w", err)
	}

	s.wait()
	s.retry.Stop()

	result := &models.ScraperResult{
		StartTime:    start,
		EndTime:      time.Now(),
		ErrorCount:   int(atomic.LoadInt64(&s.errorCount)),
		DroppedCount: int(atomic.LoadInt64(&s.dropCount)),
		FailedURLs:   s.snapshotFailedURLs(),
		ErrorsByType: snapshot(&s.mu, s.errorsByType),
		DropsByType:  snapshot(&s.mu, s.dropsByType),
		RetryCount:   s.retry.TotalRetries(),
		RequestCount: int(atomic.LoadInt64(&s.requestCount)),
		PageCount:    int(atomic.LoadInt64(&s.pageCount)),
	}

	if metrics := p.GetMetrics(); metrics != nil {
		if processed, ok := metrics["processed_products"].(int64); ok {
			result.TotalCount = int(processed)
		}
	}

	return result, nil
}

// wait returns once both collectors are idle and no retry is left to fire.
func (s *Scraper) wait() {
	for {
		fired := s.retry.Fired()
		s.collector.Wait()
		s.pricing.Wait()
		s.retry.Wait()
		if s.retry.Fired() == fired {
			return
		}
	}
}

func (s *Scraper) visit(stage, rawURL string) error {
	ctx := colly.NewContext()
	ctx.Put(stageKey, stage)
	return s.collector.Request(http.MethodGet, rawURL, nil, ctx, nil)
}

func (s *Scraper) requestPrice(detail *parser.Detail) error {
	form, err := parser.PriceForm(s.cfg, detail.Query)
	if err != nil {
		return err
	}

	ctx := colly.NewContext()
	ctx.Put(stageKey, stagePrice)
	ctx.Put(productKey, detail.Product)
	ctx.Put(productIDKey, detail.Query.ProductID)

	hdr := http.Header{}
	hdr.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.pricing.Request(http.MethodPost, s.cfg.PriceURL(), strings.NewReader(form.Encode()), ctx, hdr)
}

func (s *Scraper) configureHandlers(ctx context.Context, p *pipeline.Pipeline) {
	s.handlersOnce.Do(func() {
		for _, c := range []*colly.Collector{s.collector, s.pricing} {
			c.OnRequest(s.onRequest)
			c.OnResponse(s.onResponse)
			c.OnError(s.onError)
		}

		s.collector.OnHTML("html", func(e *colly.HTMLElement) {
			if ctx.Err() != nil {
				return
			}
			switch e.Request.Ctx.Get(stageKey) {
			case stageListing:
				s.handleListing(ctx, e)
			case stagePage:
				s.handlePage(ctx, e)
			case stageItem:
				s.handleItem(p, e)
			}
		})

		s.pricing.OnResponse(func(r *colly.Response) {
			if r.Ctx.Get(stageKey) == stagePrice {
				s.handlePrice(p, r)
			}
		})
	})
}

func (s *Scraper) onRequest(r *colly.Request) {
	r.Ctx.Put(startKey, time.Now())
	current := atomic.AddInt64(&s.requestCount, 1)
	s.Metrics.IncRequest(r.Ctx.Get(stageKey))
	if current%50 == 0 {
		slog.Debug("scraper request progress",
			slog.Int64("requests", current),
			slog.Int64("pages", atomic.LoadInt64(&s.pageCount)),
			slog.String("url", r.URL.String()),
		)
	}
}

func (s *Scraper) onResponse(r *colly.Response) {
	if r.StatusCode >= http.StatusBadRequest {
		slog.Error("non-200 response",
			slog.Int("status", r.StatusCode),
			slog.String("url", r.Request.URL.String()),
		)
	}
	if start, ok := r.Ctx.GetAny(startKey).(time.Time); ok {
		s.Metrics.ObserveDuration(r.Ctx.Get(stageKey), time.Since(start))
	}
}

func (s *Scraper) onError(r *colly.Response, err error) {
	atomic.AddInt64(&s.errorCount, 1)
	statusCode := 0
	if r != nil {
		statusCode = r.StatusCode
	}
	classified := classifyError(err, statusCode)
	category := errorTypeLabel(classified)

	s.mu.Lock()
	s.errorsByType[category]++
	s.mu.Unlock()
	s.Metrics.IncError(category)

	if r == nil || r.Request == nil {
		slog.Error("request error", slog.String("category", category), slog.Any("error", err))
		return
	}
	rawURL := r.Request.URL.String()
	stage := r.Ctx.Get(stageKey)
	slog.Error("request error",
		slog.String("url", rawURL),
		slog.String("stage", stage),
		slog.String("category", category),
		slog.Any("error", err),
	)

	// A failed price lookup is final for that product.
	if stage == stagePrice {
		s.drop(rawURL, classified)
		return
	}

	req := r.Request
	if !s.retry.Schedule(rawURL, req.Retry) {
		s.mu.Lock()
		s.failedURLs = append(s.failedURLs, rawURL)
		s.mu.Unlock()
	}
}

func (s *Scraper) handleListing(ctx context.Context, e *colly.HTMLElement) {
	tokens := parser.PageTokens(e.DOM)
	if len(tokens) == 0 {
		slog.Debug("no pagination control on listing", slog.String("url", e.Request.URL.String()))
		return
	}
	if max := s.cfg.MaxPages; max > 0 && len(tokens) > max {
		tokens = tokens[:max]
	}

	for _, token := range tokens {
		if ctx.Err() != nil {
			return
		}
		pageURL := parser.PageURL(s.session.CategoryURL(), token)
		if err := s.visit(stagePage, pageURL); err != nil {
			slog.Debug("listing page not scheduled", slog.String("url", pageURL), slog.Any("error", err))
			continue
		}
		atomic.AddInt64(&s.pageCount, 1)
	}
}

func (s *Scraper) handlePage(ctx context.Context, e *colly.HTMLElement) {
	for _, link := range parser.ProductLinks(e.DOM, s.session.BaseURL()) {
		if ctx.Err() != nil {
			return
		}
		if err := s.visit(stageItem, link); err != nil {
			slog.Debug("product page not scheduled", slog.String("url", link), slog.Any("error", err))
		}
	}
}

func (s *Scraper) handleItem(p *pipeline.Pipeline, e *colly.HTMLElement) {
	pageURL := e.Request.URL.String()

	raw, err := s.extractor.Extract(e.DOM)
	if err != nil {
		s.drop(pageURL, err)
		return
	}
	detail, err := parser.ParseProduct(raw, pageURL, s.session)
	if err != nil {
		s.drop(pageURL, err)
		return
	}

	if offers, ok := s.offers.Get(detail.Query.ProductID); ok {
		s.Metrics.IncOfferCacheHit()
		s.resolve(p, detail.Product, offers)
		return
	}

	if err := s.requestPrice(detail); err != nil {
		s.drop(pageURL, fmt.Errorf("schedule price request: %w", err))
	}
}

func (s *Scraper) handlePrice(p *pipeline.Pipeline, r *colly.Response) {
	product, ok := r.Ctx.GetAny(productKey).(*models.Product)
	if !ok {
		return
	}

	offers, err := parser.ParseOffers(r.Body)
	if err != nil {
		s.drop(product.URL, err)
		return
	}
	s.offers.Add(r.Ctx.Get(productIDKey), offers)
	s.resolve(p, product, offers)
}

// resolve is the only place a product is emitted, and only once it is priced.
func (s *Scraper) resolve(p *pipeline.Pipeline, product *models.Product, offers parser.Offers) {
	if err := parser.ApplyOffer(product, offers, s.cfg.Lang); err != nil {
		s.drop(product.URL, err)
		return
	}

	s.Metrics.IncItems()
	if err := p.Process(product); err != nil && err != pipeline.ErrPipelineClosed {
		slog.Error("pipeline process error", slog.Any("error", err))
	}
}

func (s *Scraper) drop(itemURL string, err error) {
	reason := dropReason(err)
	atomic.AddInt64(&s.dropCount, 1)
	s.mu.Lock()
	s.dropsByType[reason]++
	s.mu.Unlock()
	s.Metrics.IncDropped(reason)

	level := slog.LevelWarn
	if reason == "state_missing" {
		level = slog.LevelDebug
	}
	slog.Log(context.Background(), level, "item dropped",
		slog.String("url", itemURL),
		slog.String("reason", reason),
		slog.Any("error", err),
	)
}

func (s *Scraper) snapshotFailedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.failedURLs))
	copy(out, s.failedURLs)
	return out
}

func snapshot(mu *sync.Mutex, counts map[string]int) map[string]int {
	mu.Lock()
	defer mu.Unlock()
	out := make(map[string]int, len(counts))
	for k, v := range counts {
		out[k] = v
	}
	return out
}
