package parser

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPageTokens(t *testing.T) {
	tests := []struct {
		name string
		html string
		want []string
	}{
		{
			name: "dropdown present",
			html: `<div id="shelf-pagination"><div class="select-native"><select>
				<option value="1">1</option><option value="2">2</option><option value=" 3 ">3</option>
			</select></div></div>`,
			want: []string{"1", "2", "3"},
		},
		{
			name: "empty option values skipped",
			html: `<div id="shelf-pagination"><div class="select-native"><select>
				<option value="">-</option><option>2</option><option value="4">4</option>
			</select></div></div>`,
			want: []string{"4"},
		},
		{
			name: "no pagination control",
			html: `<div class="shelf"><select><option value="1">1</option></select></div>`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustDoc(t, "<html><body>"+tt.html+"</body></html>")
			if diff := cmp.Diff(tt.want, PageTokens(doc.Selection)); diff != "" {
				t.Fatalf("PageTokens mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPageURL(t *testing.T) {
	got := PageURL("http://example.test/en/grocery/fruits/N-3852/", "2")
	if want := "http://example.test/en/grocery/fruits/N-3852/page-2"; got != want {
		t.Fatalf("PageURL = %q, want %q", got, want)
	}
}

func TestProductLinks(t *testing.T) {
	doc := mustDoc(t, `<html><body>
		<div><a class="product-link" href="/en/ip/bananas/6000197424572">Bananas</a></div>
		<div><a class="product-link" href="https://other.example/en/ip/apples/1">Apples</a></div>
		<div><a class="banner" href="/en/deals">Deals</a></div>
		<div><a class="product-link">no href</a></div>
	</body></html>`)

	want := []string{
		"http://example.test/en/ip/bananas/6000197424572",
		"https://other.example/en/ip/apples/1",
	}
	if diff := cmp.Diff(want, ProductLinks(doc.Selection, "http://example.test")); diff != "" {
		t.Fatalf("ProductLinks mismatch (-want +got):\n%s", diff)
	}
}

func TestProductLinksNone(t *testing.T) {
	doc := mustDoc(t, `<html><body><p>nothing here</p></body></html>`)
	if got := ProductLinks(doc.Selection, "http://example.test"); len(got) != 0 {
		t.Fatalf("expected no links, got %v", got)
	}
}
