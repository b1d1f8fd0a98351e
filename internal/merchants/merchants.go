// Package merchants is the read-only directory of local businesses that
// accept bitcoin.
package merchants

import (
	"sort"
	"strings"
)

// Merchant is one directory entry.
type Merchant struct {
	Slug      string   `json:"slug"`
	Name      string   `json:"name"`
	Category  string   `json:"category"`
	Address   string   `json:"address"`
	City      string   `json:"city"`
	Website   string   `json:"website,omitempty"`
	Lightning bool     `json:"lightning"`
	OnChain   bool     `json:"onChain"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Tags      []string `json:"tags,omitempty"`
}

// Directory answers lookups over a fixed merchant list.
type Directory struct {
	bySlug map[string]Merchant
	sorted []Merchant
}

// NewDirectory indexes merchants by slug. Later duplicates replace earlier
// ones.
func NewDirectory(list []Merchant) *Directory {
	d := &Directory{bySlug: make(map[string]Merchant, len(list))}
	for _, m := range list {
		d.bySlug[strings.ToLower(m.Slug)] = m
	}
	for _, m := range d.bySlug {
		d.sorted = append(d.sorted, m)
	}
	sort.Slice(d.sorted, func(i, j int) bool {
		return d.sorted[i].Name < d.sorted[j].Name
	})
	return d
}

// Default is the built-in directory.
func Default() *Directory {
	return NewDirectory(catalog)
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Category      string
	LightningOnly bool
}

// List returns merchants ordered by name.
func (d *Directory) List(f Filter) []Merchant {
	res := make([]Merchant, 0, len(d.sorted))
	for _, m := range d.sorted {
		if f.Category != "" && !strings.EqualFold(m.Category, f.Category) {
			continue
		}
		if f.LightningOnly && !m.Lightning {
			continue
		}
		res = append(res, m)
	}
	return res
}

// Find looks up a merchant by slug, case-insensitively.
func (d *Directory) Find(slug string) (Merchant, bool) {
	m, ok := d.bySlug[strings.ToLower(strings.TrimSpace(slug))]
	return m, ok
}

// Categories returns the distinct categories in the directory, sorted.
func (d *Directory) Categories() []string {
	seen := make(map[string]struct{})
	var res []string
	for _, m := range d.sorted {
		if _, ok := seen[m.Category]; ok {
			continue
		}
		seen[m.Category] = struct{}{}
		res = append(res, m.Category)
	}
	sort.Strings(res)
	return res
}

var catalog = []Merchant{
	{
		Slug: "harbor-coffee", Name: "Harbor Coffee Roasters", Category: "cafe",
		Address: "12 Wharf Street", City: "Port Haven", Website: "https://harborcoffee.example",
		Lightning: true, OnChain: false, Latitude: 41.3851, Longitude: -72.9012,
		Tags: []string{"coffee", "breakfast"},
	},
	{
		Slug: "satoshi-cycles", Name: "Satoshi Cycles", Category: "retail",
		Address: "88 Mill Road", City: "Port Haven",
		Lightning: true, OnChain: true, Latitude: 41.3899, Longitude: -72.8954,
		Tags: []string{"bikes", "repairs"},
	},
	{
		Slug: "greenleaf-market", Name: "Greenleaf Market", Category: "grocery",
		Address: "401 Orchard Avenue", City: "Brookfield", Website: "https://greenleaf.example",
		Lightning: false, OnChain: true, Latitude: 41.4012, Longitude: -72.9301,
	},
	{
		Slug: "lantern-books", Name: "Lantern Books", Category: "retail",
		Address: "5 Library Lane", City: "Brookfield",
		Lightning: true, OnChain: true, Latitude: 41.3987, Longitude: -72.9265,
		Tags: []string{"books", "events"},
	},
	{
		Slug: "north-end-tacos", Name: "North End Tacos", Category: "restaurant",
		Address: "230 Beacon Street", City: "Port Haven",
		Lightning: true, OnChain: false, Latitude: 41.3922, Longitude: -72.9088,
	},
	{
		Slug: "blockhouse-cowork", Name: "Blockhouse Coworking", Category: "services",
		Address: "17 Foundry Square", City: "Port Haven", Website: "https://blockhouse.example",
		Lightning: true, OnChain: true, Latitude: 41.3870, Longitude: -72.9120,
		Tags: []string{"meetups", "workspace"},
	},
}
