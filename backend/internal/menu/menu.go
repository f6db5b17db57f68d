package menu

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Categories used when rendering the menu for the model.
const (
	CategoryPizza   = "pizza"
	CategoryCalzone = "calzone"
	CategoryWings   = "wings"
	CategorySides   = "sides"
	CategoryDrinks  = "drinks"
)

// MenuItem is one orderable entry.
type MenuItem struct {
	Name              string             `json:"name"`
	Category          string             `json:"category"`
	Sizes             []string           `json:"sizes,omitempty"`
	PriceBySize       map[string]float64 `json:"price_by_size,omitempty"`
	PriceByPieceCount map[int]float64    `json:"price_by_piece_count,omitempty"`
	Description       string             `json:"description,omitempty"`
}

// IsWings reports whether the item is priced per piece count.
func (i MenuItem) IsWings() bool {
	return len(i.PriceByPieceCount) > 0
}

// NeedsSize reports whether the caller has to pick a size.
func (i MenuItem) NeedsSize() bool {
	return len(i.Sizes) > 1
}

// DefaultSize returns the only size of a single-size item, or "".
func (i MenuItem) DefaultSize() string {
	if len(i.Sizes) == 1 {
		return i.Sizes[0]
	}
	return ""
}

// NormalizeSize maps a spoken size onto one of the item's sizes.
func (i MenuItem) NormalizeSize(size string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(size))
	switch s {
	case "sm", "personal":
		s = "small"
	case "med", "regular size":
		s = "medium"
	case "lg", "extra large", "family":
		s = "large"
	}
	for _, candidate := range i.Sizes {
		if candidate == s {
			return candidate, true
		}
	}
	return "", false
}

// Price returns the price of the given size. An empty size falls back
// to the default size for single-size items.
func (i MenuItem) Price(size string) (float64, bool) {
	if size == "" {
		size = i.DefaultSize()
	}
	p, ok := i.PriceBySize[size]
	return p, ok
}

// PriceForPieces returns the price of one order of n pieces.
func (i MenuItem) PriceForPieces(n int) (float64, bool) {
	p, ok := i.PriceByPieceCount[n]
	return p, ok
}

// WingOptions enumerates the valid wing configurations.
type WingOptions struct {
	Flavors     []string `json:"flavors"`
	PieceCounts []int    `json:"piece_counts"`
	Dressings   []string `json:"dressings"`
}

// ValidPieceCount reports whether n is one of the enumerated counts.
func (w WingOptions) ValidPieceCount(n int) bool {
	for _, c := range w.PieceCounts {
		if c == n {
			return true
		}
	}
	return false
}

// PieceCountList renders the valid counts for a spoken prompt, e.g. "6, 10, 20, 30, or 50".
func (w WingOptions) PieceCountList() string {
	counts := append([]int(nil), w.PieceCounts...)
	sort.Ints(counts)
	parts := make([]string, len(counts))
	for i, c := range counts {
		parts[i] = fmt.Sprintf("%d", c)
	}
	return joinOr(parts)
}

// MatchFlavor resolves a spoken flavor against the enumerated flavors.
func (w WingOptions) MatchFlavor(s string) (string, bool) {
	return matchOption(w.Flavors, s)
}

// MatchDressing resolves a spoken dressing against the enumerated dressings.
func (w WingOptions) MatchDressing(s string) (string, bool) {
	return matchOption(w.Dressings, s)
}

func matchOption(options []string, s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}
	for _, o := range options {
		if strings.ToLower(o) == s {
			return o, true
		}
	}
	// "honey barbecue" style variants
	s = strings.ReplaceAll(s, "barbecue", "bbq")
	s = strings.ReplaceAll(s, "parm", "parmesan")
	s = strings.ReplaceAll(s, "parmesanesan", "parmesan")
	for _, o := range options {
		if strings.ToLower(o) == s {
			return o, true
		}
	}
	return "", false
}

// Menu is an immutable snapshot of the orderable items.
type Menu struct {
	Items     map[string]MenuItem `json:"items"`
	Wings     WingOptions         `json:"wing_options"`
	Source    string              `json:"source"`
	FetchedAt time.Time           `json:"fetched_at"`

	order []string
}

// New builds a menu, keeping the given item order for lookup and rendering.
func New(items []MenuItem, wings WingOptions, source string) *Menu {
	m := &Menu{
		Items:     make(map[string]MenuItem, len(items)),
		Wings:     wings,
		Source:    source,
		FetchedAt: time.Now(),
	}
	for _, it := range items {
		key := strings.ToLower(strings.TrimSpace(it.Name))
		if key == "" {
			continue
		}
		it.Name = key
		if _, exists := m.Items[key]; !exists {
			m.order = append(m.order, key)
		}
		m.Items[key] = it
	}
	return m
}

// Names returns item names in menu order.
func (m *Menu) Names() []string {
	return append([]string(nil), m.order...)
}

// Lookup resolves a spoken item name: exact, then case-insensitive, then
// every spoken word contained in (or containing) a word of the menu name.
func (m *Menu) Lookup(name string) (MenuItem, bool) {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return MenuItem{}, false
	}
	if it, ok := m.Items[lower]; ok {
		return it, true
	}
	for _, n := range m.order {
		if strings.EqualFold(n, lower) {
			return m.Items[n], true
		}
	}

	words := strings.Fields(lower)
	for _, n := range m.order {
		menuWords := strings.Fields(n)
		if allWordsMatch(words, menuWords) {
			return m.Items[n], true
		}
	}
	return MenuItem{}, false
}

func allWordsMatch(words, menuWords []string) bool {
	for _, w := range words {
		found := false
		for _, mw := range menuWords {
			if strings.Contains(mw, w) || strings.Contains(w, mw) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Suggest returns up to n menu names that look like the given name.
func (m *Menu) Suggest(name string, n int) []string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" || n <= 0 {
		return nil
	}

	type scored struct {
		name  string
		score float64
	}
	var candidates []scored
	words := strings.Fields(lower)
	for idx, menuName := range m.order {
		overlap := 0
		for _, w := range words {
			if len(w) < 3 {
				continue
			}
			for _, mw := range strings.Fields(menuName) {
				if strings.HasPrefix(mw, w[:3]) || strings.Contains(mw, w) {
					overlap++
					break
				}
			}
		}
		dist := levenshtein(lower, menuName)
		longest := len(lower)
		if len(menuName) > longest {
			longest = len(menuName)
		}
		similarity := 1 - float64(dist)/float64(longest)
		if overlap == 0 && similarity < 0.5 {
			continue
		}
		// Menu position breaks ties so results are stable.
		candidates = append(candidates, scored{
			name:  menuName,
			score: float64(overlap) + similarity - float64(idx)*1e-6,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	out := make([]string, 0, n)
	for _, c := range candidates {
		if len(out) == n {
			break
		}
		out = append(out, c.name)
	}
	return out
}

// Text renders the menu grouped by category, one line per item with prices.
func (m *Menu) Text() string {
	categories := []string{CategoryPizza, CategoryCalzone, CategoryWings, CategorySides, CategoryDrinks}
	grouped := make(map[string][]MenuItem)
	var extra []string
	for _, n := range m.order {
		it := m.Items[n]
		cat := it.Category
		if cat == "" {
			cat = "other"
		}
		if _, known := grouped[cat]; !known && !contains(categories, cat) && !contains(extra, cat) {
			extra = append(extra, cat)
		}
		grouped[cat] = append(grouped[cat], it)
	}

	var b strings.Builder
	for _, cat := range append(categories, extra...) {
		items := grouped[cat]
		if len(items) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strings.ToUpper(cat))
		b.WriteString(":\n")
		for _, it := range items {
			b.WriteString("- ")
			b.WriteString(itemLine(it))
			b.WriteString("\n")
		}
		if cat == CategoryWings && len(m.Wings.Flavors) > 0 {
			fmt.Fprintf(&b, "  flavors: %s\n", strings.Join(m.Wings.Flavors, ", "))
			if len(m.Wings.Dressings) > 0 {
				fmt.Fprintf(&b, "  dressings: %s\n", strings.Join(m.Wings.Dressings, ", "))
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func itemLine(it MenuItem) string {
	if it.IsWings() {
		counts := make([]int, 0, len(it.PriceByPieceCount))
		for c := range it.PriceByPieceCount {
			counts = append(counts, c)
		}
		sort.Ints(counts)
		prices := make([]string, len(counts))
		for i, c := range counts {
			prices[i] = fmt.Sprintf("%d pieces $%.2f", c, it.PriceByPieceCount[c])
		}
		return fmt.Sprintf("%s - %s", it.Name, strings.Join(prices, ", "))
	}
	if len(it.Sizes) <= 1 {
		size := it.DefaultSize()
		if size == "" {
			size = "regular"
		}
		return fmt.Sprintf("%s (%s) - $%.2f", it.Name, size, it.PriceBySize[it.DefaultSize()])
	}
	prices := make([]string, len(it.Sizes))
	for i, s := range it.Sizes {
		prices[i] = fmt.Sprintf("%s $%.2f", s, it.PriceBySize[s])
	}
	return fmt.Sprintf("%s (sizes: %s) - %s", it.Name, strings.Join(it.Sizes, ", "), strings.Join(prices, ", "))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func joinOr(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " or " + parts[1]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + ", or " + parts[len(parts)-1]
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
