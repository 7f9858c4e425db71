package product

import "strings"

// AllCategories selects every category in a Filter.
const AllCategories = "all"

// Filter narrows a product list by category and a free-text name query.
type Filter struct {
	Category string
	Query    string
}

// Apply returns the products matching f, preserving input order.
func (f Filter) Apply(products []Product) []Product {
	category := strings.TrimSpace(f.Category)
	query := strings.ToLower(strings.TrimSpace(f.Query))

	out := make([]Product, 0, len(products))
	for _, p := range products {
		if category != "" && !strings.EqualFold(category, AllCategories) &&
			!strings.EqualFold(p.Category, category) {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(p.Name), query) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Categories returns the distinct categories in first-seen order.
func Categories(products []Product) []string {
	seen := make(map[string]struct{}, len(products))
	var out []string
	for _, p := range products {
		key := strings.ToLower(p.Category)
		if _, ok := seen[key]; ok || p.Category == "" {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p.Category)
	}
	return out
}
