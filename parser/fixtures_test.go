package parser

import (
	"fmt"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-grocery/config"
)

const sampleState = `{"product":{"activeSkuId":"6000197424573","item":{"id":"6000197424572","skus":["6000197424573","6000197424574"],"description":"Sold individually"}},"entities":{"skus":{"6000197424573":{"name":"Bananas","longDescription":"<p>Sweet <b>yellow</b> bananas.</p><br/>","upc":["0012345678905"],"brand":{"name":"Your Fresh Market"},"grocery":{"isSoldByWeight":true,"minWeight":0.3,"maxWeight":0.8,"sellQuantityUOM":"kg"},"images":[{"large":{"url":"images/Large/573/bananas.jpg"}}],"items":[{"id":"a"},{"id":"b"},{"id":"c"}],"categories":[{"hierarchy":[{"displayName":{"en":"Grocery"}},{"displayName":{"en":"Fruits"}}]}]}}}}`

func productPage(script string) string {
	return fmt.Sprintf(`<html><head></head><body><div id="root"></div><script>window.__PRELOADED_STATE__=%s;</script></body></html>`, script)
}

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

func testSession(t *testing.T) *config.Session {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://example.test"
	cfg.ImageBaseURL = "http://img.example.test"
	cfg.Branch = "3106"
	session, err := config.NewSession(cfg)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return session
}
