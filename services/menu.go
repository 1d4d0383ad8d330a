package services

import (
	"sort"
	"strings"

	"domiflash/models"
)

// MenuCatalog is the immutable per-process menu. A lowercase item index per
// restaurant is built once at load so pricing never does ad hoc case
// munging on the hot path.
type MenuCatalog struct {
	entries map[string]models.MenuEntry
	// restaurant -> lowercased item name -> canonical item key
	index map[string]map[string]string
}

func NewMenuCatalog(entries map[string]models.MenuEntry) *MenuCatalog {
	c := &MenuCatalog{
		entries: entries,
		index:   make(map[string]map[string]string, len(entries)),
	}
	for restaurant, entry := range entries {
		idx := make(map[string]string, len(entry.Items))
		for item := range entry.Items {
			idx[strings.ToLower(item)] = item
		}
		c.index[restaurant] = idx
	}
	return c
}

// Get returns the menu for a restaurant by exact (trimmed) name.
func (c *MenuCatalog) Get(restaurant string) (models.MenuEntry, bool) {
	entry, ok := c.entries[strings.TrimSpace(restaurant)]
	return entry, ok
}

// ResolveItem maps a customer-typed item name to the menu's canonical key.
func (c *MenuCatalog) ResolveItem(restaurant, name string) (string, bool) {
	idx, ok := c.index[strings.TrimSpace(restaurant)]
	if !ok {
		return "", false
	}
	key, ok := idx[strings.ToLower(strings.TrimSpace(name))]
	return key, ok
}

// Restaurants lists the known restaurant names, sorted for stable output.
func (c *MenuCatalog) Restaurants() []string {
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
