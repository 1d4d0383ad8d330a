package models

// ItemOptions are the priced add-ons a menu item offers: "bordes" is a
// single-choice extra, "adiciones" is multi-choice. Keys keep their menu
// casing for display; lookups are case-insensitive (see services.MenuCatalog).
type ItemOptions struct {
	Bordes    map[string]int `json:"bordes,omitempty"`
	Adiciones map[string]int `json:"adiciones,omitempty"`
}

// MenuEntry is one restaurant's menu. Read-only after load.
type MenuEntry struct {
	Currency    string                 `json:"currency"`
	DeliveryFee int                    `json:"delivery_fee"`
	Items       map[string]int         `json:"items"`
	Options     map[string]ItemOptions `json:"options,omitempty"`
}

// DefaultMenu returns the built-in restaurant catalog.
func DefaultMenu() map[string]MenuEntry {
	return map[string]MenuEntry{
		"Pizzeria Orientini - Marinilla": {
			Currency:    "COP",
			DeliveryFee: 6000,
			Items: map[string]int{
				"pizza personal": 18000,
				"pizza mediana":  35000,
				"pizza familiar": 52000,
				"gaseosa 1.5l":   8000,
			},
			Options: map[string]ItemOptions{
				"pizza personal": {
					Bordes:    map[string]int{"normal": 0, "queso": 4000},
					Adiciones: map[string]int{"extra queso": 3000, "pepperoni": 4000},
				},
				"pizza mediana": {
					Bordes:    map[string]int{"normal": 0, "queso": 6000},
					Adiciones: map[string]int{"extra queso": 4000, "pepperoni": 6000},
				},
			},
		},
		"Hamburguesas El Parque": {
			Currency:    "COP",
			DeliveryFee: 5000,
			Items: map[string]int{
				"hamburguesa sencilla": 16000,
				"hamburguesa doble":    24000,
				"papas":                7000,
				"gaseosa lata":         4500,
			},
			Options: map[string]ItemOptions{
				"hamburguesa sencilla": {
					Adiciones: map[string]int{"queso": 2000, "tocineta": 3000},
				},
				"hamburguesa doble": {
					Adiciones: map[string]int{"queso": 2000, "tocineta": 3000},
				},
			},
		},
	}
}
