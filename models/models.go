package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Driver is one courier in the fixed roster. ChatID doubles as identity and
// contact address; availability is owned by services.DriverRegistry.
type Driver struct {
	DriverID    string `json:"driver_id"`
	Name        string `json:"name"`
	ChatID      int64  `json:"chat_id"`
	IsAvailable bool   `json:"is_available"`
}

// ChosenOptions are the add-ons requested for one order line.
type ChosenOptions struct {
	Bordes    string   `json:"bordes,omitempty"`
	Adiciones []string `json:"adiciones,omitempty"`
}

// UnmarshalJSON accepts "adiciones" as either a list or a bare string.
// Order producers send both shapes; a bare string becomes a one-element list.
func (o *ChosenOptions) UnmarshalJSON(data []byte) error {
	var raw struct {
		Bordes    string          `json:"bordes"`
		Adiciones json.RawMessage `json:"adiciones"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	o.Bordes = raw.Bordes
	o.Adiciones = nil
	if len(raw.Adiciones) == 0 || string(raw.Adiciones) == "null" {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw.Adiciones, &list); err == nil {
		o.Adiciones = list
		return nil
	}
	var single string
	if err := json.Unmarshal(raw.Adiciones, &single); err != nil {
		return fmt.Errorf("adiciones: %w", err)
	}
	if single != "" {
		o.Adiciones = []string{single}
	}
	return nil
}

// OrderItem is one line of a customer order before pricing.
type OrderItem struct {
	Name     string        `json:"name"`
	Quantity int           `json:"quantity"`
	Options  ChosenOptions `json:"options"`
}

// Order is the canonical structured order handed to the engine by the
// conversational agent. The engine never parses free text itself.
type Order struct {
	Restaurant    string       `json:"restaurant"`
	Customer      string       `json:"customer"`
	Address       string       `json:"address"`
	Phone         string       `json:"phone"`
	PaymentMethod string       `json:"payment_method"`
	Observations  string       `json:"observations,omitempty"`
	Items         []OrderItem  `json:"items"`
	Pricing       *PricedOrder `json:"pricing,omitempty"`
}

// PricedLine is one order line after menu matching, with resolved add-ons.
type PricedLine struct {
	Item          string        `json:"item"`
	Quantity      int           `json:"quantity"`
	BasePrice     int           `json:"base_price"`
	Extras        int           `json:"extras"`
	UnitPrice     int           `json:"unit_price"`
	LineTotal     int           `json:"line_total"`
	ChosenOptions ChosenOptions `json:"chosen_options"`
}

// PricedOrder is the breakdown produced by the pricing engine. All monetary
// fields are flat currency units (no decimals).
type PricedOrder struct {
	Restaurant  string       `json:"restaurant"`
	Currency    string       `json:"currency"`
	Subtotal    int          `json:"subtotal"`
	DeliveryFee int          `json:"delivery_fee"`
	Total       int          `json:"total"`
	LineItems   []PricedLine `json:"line_items"`
	Warnings    []string     `json:"warnings"`
}

// Dispatch is one assignment of an order to one driver. Records are retained
// after terminal states for audit; only services.DispatchLedger mutates them.
type Dispatch struct {
	DispatchID     string     `json:"dispatch_id"`
	DriverChatID   int64      `json:"driver_chat_id"`
	CustomerChatID int64      `json:"customer_chat_id"`
	Order          Order      `json:"order"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	AcceptedAt     *time.Time `json:"accepted_at,omitempty"`
	RejectedAt     *time.Time `json:"rejected_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ReassignedFrom string     `json:"reassigned_from,omitempty"`
}
