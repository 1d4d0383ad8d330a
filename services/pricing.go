package services

import (
	"fmt"
	"strings"

	"domiflash/models"
)

// RestaurantNotFoundError is the only full failure the pricing engine
// produces; everything else degrades into warnings on the priced order.
type RestaurantNotFoundError struct {
	Restaurant string
	Available  []string
}

func (e *RestaurantNotFoundError) Error() string {
	return fmt.Sprintf("Restaurante no encontrado: %s", e.Restaurant)
}

// Pricer computes order totals against the menu catalog.
type Pricer struct {
	catalog *MenuCatalog
}

func NewPricer(catalog *MenuCatalog) *Pricer {
	return &Pricer{catalog: catalog}
}

// Price resolves every order line against the menu and returns the
// breakdown. Unknown items, invalid bordes and invalid adiciones each add a
// warning and never fail the order; quantity is clamped up to 1.
func (p *Pricer) Price(order *models.Order) (*models.PricedOrder, error) {
	restaurant := strings.TrimSpace(order.Restaurant)
	entry, ok := p.catalog.Get(restaurant)
	if !ok {
		return nil, &RestaurantNotFoundError{
			Restaurant: restaurant,
			Available:  p.catalog.Restaurants(),
		}
	}

	priced := &models.PricedOrder{
		Restaurant:  restaurant,
		Currency:    entry.Currency,
		DeliveryFee: entry.DeliveryFee,
	}

	for _, it := range order.Items {
		qty := it.Quantity
		if qty < 1 {
			qty = 1
		}

		key, ok := p.catalog.ResolveItem(restaurant, it.Name)
		if !ok {
			priced.Warnings = append(priced.Warnings, fmt.Sprintf("Item no encontrado: %s", it.Name))
			continue
		}

		base := entry.Items[key]
		opts := entry.Options[key]
		extras := 0
		chosen := models.ChosenOptions{}

		if b := it.Options.Bordes; b != "" {
			// Lowercased first, then verbatim, matching the menu's keys.
			extra, found := opts.Bordes[strings.ToLower(b)]
			if !found {
				extra, found = opts.Bordes[b]
			}
			if found {
				extras += extra
			} else {
				priced.Warnings = append(priced.Warnings, fmt.Sprintf("Opción bordes inválida en %s: %s", key, b))
			}
			chosen.Bordes = b
		}

		for _, a := range it.Options.Adiciones {
			want := strings.ToLower(strings.TrimSpace(a))
			matched := false
			for name, extra := range opts.Adiciones {
				if strings.ToLower(name) == want {
					extras += extra
					// Record the menu's canonical casing, not the input's.
					chosen.Adiciones = append(chosen.Adiciones, name)
					matched = true
					break
				}
			}
			if !matched {
				priced.Warnings = append(priced.Warnings, fmt.Sprintf("Adición inválida en %s: %s", key, a))
			}
		}

		unit := base + extras
		lineTotal := unit * qty
		priced.Subtotal += lineTotal
		priced.LineItems = append(priced.LineItems, models.PricedLine{
			Item:          key,
			Quantity:      qty,
			BasePrice:     base,
			Extras:        extras,
			UnitPrice:     unit,
			LineTotal:     lineTotal,
			ChosenOptions: chosen,
		})
	}

	priced.Total = priced.Subtotal + priced.DeliveryFee
	return priced, nil
}
