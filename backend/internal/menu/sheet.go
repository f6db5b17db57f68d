package menu

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	apperrors "pizza-phone-agent/backend/pkg/errors"
)

// SheetSource reads the menu from a spreadsheet published as HTML.
//
// Expected columns: Category | Item | Size | Price | Description.
// Wing rows carry the piece count in the Size column ("10", "10 pc").
// Rows with category "wing flavor" or "wing dressing" list the options
// in the Item column. A first row whose Category cell reads "category"
// is treated as the header.
type SheetSource struct {
	url        string
	httpClient *http.Client
}

// NewSheetSource creates a source for a published sheet URL.
func NewSheetSource(url string, httpClient *http.Client) *SheetSource {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &SheetSource{url: url, httpClient: httpClient}
}

// Name identifies the source in logs.
func (s *SheetSource) Name() string {
	return "sheet"
}

// Fetch downloads and parses the sheet.
func (s *SheetSource) Fetch(ctx context.Context) (*Menu, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, apperrors.NewMenuFetchFailed(s.Name(), err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewMenuFetchFailed(s.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewMenuFetchFailed(s.Name(), fmt.Errorf("status %d", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, apperrors.NewMenuFetchFailed(s.Name(), err)
	}

	m, err := ParseSheet(doc)
	if err != nil {
		return nil, apperrors.NewMenuFetchFailed(s.Name(), err)
	}
	return m, nil
}

var (
	pieceCountPattern = regexp.MustCompile(`(\d+)`)
	pricePattern      = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)?`)
)

// ParseSheet turns the rows of the first table in doc into a menu.
func ParseSheet(doc *goquery.Document) (*Menu, error) {
	byName := make(map[string]*MenuItem)
	var order []string
	var flavors, dressings []string
	pieceCounts := make(map[int]bool)
	skipped := 0

	doc.Find("table").First().Find("tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		cell := func(idx int) string {
			return strings.TrimSpace(cells.Eq(idx).Text())
		}

		category := strings.ToLower(cell(0))
		name := strings.ToLower(cell(1))
		if category == "category" || name == "" {
			return
		}

		switch category {
		case "wing flavor", "wing flavors", "flavor":
			flavors = append(flavors, name)
			return
		case "wing dressing", "wing dressings", "dressing":
			dressings = append(dressings, name)
			return
		}

		price, ok := parsePrice(cell(3))
		if !ok {
			skipped++
			return
		}
		size := strings.ToLower(cell(2))

		it, exists := byName[name]
		if !exists {
			it = &MenuItem{Name: name, Category: category}
			byName[name] = it
			order = append(order, name)
		}
		if desc := cell(4); desc != "" && it.Description == "" {
			it.Description = desc
		}

		if category == CategoryWings || strings.Contains(name, "wing") {
			match := pieceCountPattern.FindString(size)
			count, err := strconv.Atoi(match)
			if err != nil || count <= 0 {
				skipped++
				return
			}
			if it.PriceByPieceCount == nil {
				it.PriceByPieceCount = make(map[int]float64)
			}
			it.Category = CategoryWings
			it.PriceByPieceCount[count] = price
			pieceCounts[count] = true
			return
		}

		if size == "" {
			size = "regular"
		}
		if it.PriceBySize == nil {
			it.PriceBySize = make(map[string]float64)
		}
		if _, dup := it.PriceBySize[size]; !dup {
			it.Sizes = append(it.Sizes, size)
		}
		it.PriceBySize[size] = price
	})

	if len(order) == 0 {
		return nil, fmt.Errorf("no menu rows found (%d skipped)", skipped)
	}

	items := make([]MenuItem, 0, len(order))
	for _, n := range order {
		items = append(items, *byName[n])
	}

	wings := DefaultWingOptions()
	if len(pieceCounts) > 0 {
		wings.PieceCounts = wings.PieceCounts[:0:0]
		for c := range pieceCounts {
			wings.PieceCounts = append(wings.PieceCounts, c)
		}
		sort.Ints(wings.PieceCounts)
	}
	if len(flavors) > 0 {
		wings.Flavors = flavors
	}
	if len(dressings) > 0 {
		wings.Dressings = dressings
	}

	return New(items, wings, "sheet"), nil
}

func parsePrice(s string) (float64, bool) {
	match := pricePattern.FindString(strings.ReplaceAll(s, ",", ""))
	if match == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
