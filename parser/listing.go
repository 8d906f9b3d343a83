package parser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	// PaginationSelector matches one <option> per listing page in the shelf dropdown.
	PaginationSelector = "#shelf-pagination > div.select-native > select > option"
	// ProductLinkSelector matches anchors to product detail pages on a listing page.
	ProductLinkSelector = "div > a.product-link"
)

// PageTokens returns the page tokens offered by the pagination control.
// A page without the control yields nil.
func PageTokens(sel *goquery.Selection) []string {
	var tokens []string
	sel.Find(PaginationSelector).Each(func(_ int, opt *goquery.Selection) {
		value, ok := opt.Attr("value")
		value = strings.TrimSpace(value)
		if !ok || value == "" {
			return
		}
		tokens = append(tokens, value)
	})
	return tokens
}

// PageURL builds the listing URL for a pagination token.
func PageURL(categoryURL, token string) string {
	return fmt.Sprintf("%s/page-%s", strings.TrimSuffix(categoryURL, "/"), token)
}

// ProductLinks resolves every product anchor on a listing page against baseURL.
func ProductLinks(sel *goquery.Selection, baseURL string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var links []string
	sel.Find(ProductLinkSelector).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		links = append(links, base.ResolveReference(ref).String())
	})
	return links
}
