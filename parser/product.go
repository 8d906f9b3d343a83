package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-grocery/config"
	"github.com/aluiziolira/go-scrape-grocery/models"
)

// State is the subset of the page's preloaded state the scraper reads.
type State struct {
	Product *struct {
		ActiveSkuID any `json:"activeSkuId"`
		Item        *struct {
			ID          any    `json:"id"`
			Skus        []any  `json:"skus"`
			Description string `json:"description"`
		} `json:"item"`
	} `json:"product"`
	// Only the active SKU entity is decoded into a SKU; siblings stay generic.
	Entities *struct {
		Skus map[string]any `json:"skus"`
	} `json:"entities"`
}

// SKU is one sellable variant as described in the state's entity map.
type SKU struct {
	Name            string     `json:"name"`
	LongDescription string     `json:"longDescription"`
	UPC             any        `json:"upc"`
	Brand           *Brand     `json:"brand"`
	Grocery         *Grocery   `json:"grocery"`
	Images          []Image    `json:"images"`
	Items           []any      `json:"items"`
	Categories      []Category `json:"categories"`
}

// Brand is the manufacturer block of a SKU.
type Brand struct {
	Name string `json:"name"`
}

// Grocery carries the sold-by-weight attributes of a SKU.
type Grocery struct {
	IsSoldByWeight  bool   `json:"isSoldByWeight"`
	MinWeight       any    `json:"minWeight"`
	MaxWeight       any    `json:"maxWeight"`
	SellQuantityUOM string `json:"sellQuantityUOM"`
}

// Image holds the renditions of one product image.
type Image struct {
	Large *struct {
		URL string `json:"url"`
	} `json:"large"`
}

// Category is one category path a SKU is listed under.
type Category struct {
	Hierarchy []CategoryLevel `json:"hierarchy"`
}

// CategoryLevel is one step of a category path, named per language.
type CategoryLevel struct {
	DisplayName map[string]string `json:"displayName"`
}

// PriceQuery identifies what the price endpoint must be asked about.
type PriceQuery struct {
	ProductID   string
	SkuIDs      []string
	ActiveSkuID string
}

// Detail is a product page reduced to a partial record and its price query.
type Detail struct {
	Product *models.Product
	Query   PriceQuery
}

// ParseProduct turns a raw state blob from pageURL into a partial record.
// Price and store stay unset until an offer is applied.
func ParseProduct(raw []byte, pageURL string, session *config.Session) (*Detail, error) {
	st, err := DecodeState(raw)
	if err != nil {
		return nil, err
	}
	if st.Product == nil {
		return nil, missing("product")
	}
	if st.Product.Item == nil {
		return nil, missing("product.item")
	}
	productID := formatScalar(st.Product.Item.ID)
	if productID == "" {
		return nil, missing("product.item.id")
	}
	if len(st.Product.Item.Skus) == 0 {
		return nil, missing("product.item.skus")
	}
	skuIDs := make([]string, 0, len(st.Product.Item.Skus))
	for _, id := range st.Product.Item.Skus {
		skuIDs = append(skuIDs, formatScalar(id))
	}
	skuID := formatScalar(st.Product.ActiveSkuID)
	if skuID == "" {
		return nil, missing("product.activeSkuId")
	}
	if st.Entities == nil {
		return nil, missing("entities")
	}
	entity, ok := st.Entities.Skus[skuID]
	if !ok || entity == nil {
		return nil, missing("entities.skus." + skuID)
	}
	sku, err := decodeSKU(entity)
	if err != nil {
		return nil, ExtractionError{Field: "entities.skus." + skuID, Err: err}
	}

	pkg, err := FormatPackage(sku.Grocery, st.Product.Item.Description)
	if err != nil {
		return nil, err
	}
	if sku.Brand == nil {
		return nil, missing("sku.brand")
	}
	if sku.Items == nil {
		return nil, missing("sku.items")
	}
	category, err := FormatCategory(sku.Categories)
	if err != nil {
		return nil, err
	}
	imageURL, err := ImageURL(session.ImageBaseURL(), sku.Images)
	if err != nil {
		return nil, err
	}

	product := &models.Product{
		URL:         pageURL,
		SKU:         skuID,
		Brand:       sku.Brand.Name,
		Name:        sku.Name,
		Description: StripTags(sku.LongDescription),
		Package:     pkg,
		ImageURL:    imageURL,
		Barcodes:    FlattenBarcodes(sku.UPC),
		Branch:      session.Branch(),
		Stock:       len(sku.Items),
		Category:    category,
		ScrapedAt:   time.Now(),
	}

	return &Detail{
		Product: product,
		Query: PriceQuery{
			ProductID:   productID,
			SkuIDs:      skuIDs,
			ActiveSkuID: skuID,
		},
	}, nil
}

// decodeSKU converts a generically decoded entity into a SKU.
func decodeSKU(entity any) (*SKU, error) {
	raw, err := json.Marshal(entity)
	if err != nil {
		return nil, err
	}
	var sku SKU
	if err := json.Unmarshal(raw, &sku); err != nil {
		return nil, err
	}
	return &sku, nil
}

// FormatPackage describes how a SKU is sold: a weight range for
// sold-by-weight produce, otherwise the product's own description.
func FormatPackage(g *Grocery, description string) (string, error) {
	if g == nil {
		return "", missing("sku.grocery")
	}
	if !g.IsSoldByWeight {
		return description, nil
	}
	return fmt.Sprintf("%s x %s%s", formatScalar(g.MinWeight), formatScalar(g.MaxWeight), g.SellQuantityUOM), nil
}

var tagPattern = regexp.MustCompile(`<.*?>`)

// StripTags removes markup tags from s.
func StripTags(s string) string {
	return tagPattern.ReplaceAllString(s, "")
}

var barcodeReplacer = strings.NewReplacer("[", "", "]", "", "'", "")

// FlattenBarcodes renders a UPC value, single or list, as a plain string.
// List values are joined with ", ".
func FlattenBarcodes(v any) string {
	var s string
	if list, ok := v.([]any); ok {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			parts = append(parts, formatScalar(item))
		}
		s = strings.Join(parts, ", ")
	} else {
		s = formatScalar(v)
	}
	return strings.TrimSpace(barcodeReplacer.Replace(s))
}

// FormatCategory joins the English display name of every hierarchy level of
// every category with "|". No categories yields "".
func FormatCategory(categories []Category) (string, error) {
	var names []string
	for _, c := range categories {
		for _, level := range c.Hierarchy {
			name, ok := level.DisplayName["en"]
			if !ok {
				return "", missing("sku.categories.hierarchy.displayName.en")
			}
			names = append(names, name)
		}
	}
	return strings.Join(names, "|"), nil
}

// ImageURL returns the large rendition of the first image under base.
func ImageURL(base string, images []Image) (string, error) {
	if len(images) == 0 || images[0].Large == nil {
		return "", missing("sku.images.large")
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(images[0].Large.URL, "/"), nil
}

func formatScalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
