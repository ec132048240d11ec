package stripe

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Customer is a subset of the Stripe customer object.
// https://docs.stripe.com/api/customers/object
type Customer struct {
	ID            string            `json:"id"`
	Email         string            `json:"email"`
	Name          string            `json:"name"`
	Currency      string            `json:"currency"`
	Created       int64             `json:"created"`
	Metadata      map[string]string `json:"metadata"`
	Subscriptions *SubscriptionList `json:"subscriptions"`
}

// Subscription is a subset of the Stripe subscription object. Customer is
// the owning customer ID (not expanded in the shapes this client requests).
type Subscription struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Status   string `json:"status"`
	Created  int64  `json:"created"`
	Plan     *Plan  `json:"plan"`
}

// SubscriptionList is the embedded subscriptions list on a customer.
type SubscriptionList struct {
	Data    []*Subscription `json:"data"`
	HasMore bool            `json:"has_more"`
}

// Plan is a subset of the Stripe plan object.
type Plan struct {
	ID      string      `json:"id"`
	Product *ProductRef `json:"product"`
}

// Product is a subset of the Stripe product object.
type Product struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProductRef is a plan's product, which arrives either as a bare ID string
// or as the expanded product object depending on the expand parameters.
type ProductRef struct {
	Product
	// Expanded reports whether the full object was present.
	Expanded bool `json:"-"`
}

func (p *ProductRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		p.Expanded = false
		return json.Unmarshal(data, &p.ID)
	}
	p.Expanded = true
	return json.Unmarshal(data, &p.Product)
}

// StatusTransitions is a subset of the invoice's status transition data.
type StatusTransitions struct {
	PaidAt int64 `json:"paid_at"`
}

// Invoice is a subset of the Stripe invoice object with the customer and
// subscription expanded.
// https://docs.stripe.com/api/invoices/object
type Invoice struct {
	ID                string             `json:"id"`
	Status            string             `json:"status"`
	Customer          *Customer          `json:"customer"`
	Subscription      *Subscription      `json:"subscription"`
	AmountPaid        int64              `json:"amount_paid"`
	AmountDue         int64              `json:"amount_due"`
	PeriodEnd         int64              `json:"period_end"`
	StatusTransitions *StatusTransitions `json:"status_transitions"`
}

// InvoicePage is one page of a paginated invoices listing.
type InvoicePage struct {
	Data    []*Invoice `json:"data"`
	HasMore bool       `json:"has_more"`
}

// CustomerPage is one page of a paginated customers listing.
type CustomerPage struct {
	Data    []*Customer `json:"data"`
	HasMore bool        `json:"has_more"`
}

func decodeInvoicePage(body []byte) (*InvoicePage, error) {
	var page InvoicePage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decoding invoice page: %w", err)
	}
	return &page, nil
}

func decodeCustomerPage(body []byte) (*CustomerPage, error) {
	var page CustomerPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decoding customer page: %w", err)
	}
	return &page, nil
}

func decodeProduct(body []byte) (*Product, error) {
	var product Product
	if err := json.Unmarshal(body, &product); err != nil {
		return nil, fmt.Errorf("decoding product: %w", err)
	}
	return &product, nil
}
