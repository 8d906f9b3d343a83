package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/titanous/json5"
)

// StateExtractor pulls the raw embedded state blob out of a product page.
// Everything that depends on the page's script layout lives behind it.
type StateExtractor interface {
	Extract(page *goquery.Selection) ([]byte, error)
}

const (
	defaultStateSelector = "body > script:nth-child(2)"
	defaultStatePattern  = `\{.*\:\{.*\:.*\}\}`
)

// ScriptStateExtractor finds the state object inside an inline script by
// position and by the nested-object shape of its text.
type ScriptStateExtractor struct {
	Selector string
	Pattern  *regexp.Regexp
}

// NewScriptStateExtractor returns an extractor for the product page layout
// the site currently serves.
func NewScriptStateExtractor() *ScriptStateExtractor {
	return &ScriptStateExtractor{
		Selector: defaultStateSelector,
		Pattern:  regexp.MustCompile(defaultStatePattern),
	}
}

// Extract returns the first state-shaped match in the selected script.
func (x *ScriptStateExtractor) Extract(page *goquery.Selection) ([]byte, error) {
	script := page.Find(x.Selector).First()
	if script.Length() == 0 {
		return nil, ExtractionError{Field: "state", Err: ErrStateNotFound}
	}
	match := x.Pattern.FindString(script.Text())
	if strings.TrimSpace(match) == "" {
		return nil, ExtractionError{Field: "state", Err: ErrStateNotFound}
	}
	return []byte(match), nil
}

// DecodeState decodes a state blob. JSON5 is accepted because the blob is a
// JavaScript assignment and not guaranteed to be strict JSON.
func DecodeState(raw []byte) (*State, error) {
	var st State
	if err := json5.Unmarshal(raw, &st); err != nil {
		return nil, ExtractionError{Field: "state", Err: err}
	}
	return &st, nil
}
