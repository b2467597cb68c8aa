package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidCustomer = errors.New("invalid customer")

type OrderType string

const (
	OrderTypeDineIn   OrderType = "dine-in"
	OrderTypeTakeaway OrderType = "takeaway"
	OrderTypeDelivery OrderType = "delivery"
)

// Code is the suffix used in order numbers. Unknown types count as dine-in.
func (t OrderType) Code() string {
	switch t {
	case OrderTypeTakeaway:
		return "TK"
	case OrderTypeDelivery:
		return "DL"
	default:
		return "DI"
	}
}

// CounterField is the per-type field of the daily counter document.
func (t OrderType) CounterField() string {
	switch t {
	case OrderTypeTakeaway:
		return "takeaway"
	case OrderTypeDelivery:
		return "delivery"
	default:
		return "dineIn"
	}
}

type Source string

const (
	SourceWeb Source = "web"
	SourcePOS Source = "pos"
	SourceApp Source = "app"
)

type PaymentMethod string

const (
	PaymentCOD  PaymentMethod = "cod"
	PaymentUPI  PaymentMethod = "upi"
	PaymentCard PaymentMethod = "card"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentInitiated PaymentStatus = "initiated"
)

type Item struct {
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
}

type Payment struct {
	Method PaymentMethod `json:"method"`
	Status PaymentStatus `json:"status"`
}

type Address struct {
	Street string   `json:"street,omitempty"`
	City   string   `json:"city,omitempty"`
	Zip    string   `json:"zip,omitempty"`
	Lat    *float64 `json:"lat,omitempty"`
	Lng    *float64 `json:"lng,omitempty"`
}

// ValidateUID rejects customer ids that cannot be a single document path
// segment. An empty uid means an anonymous customer.
func ValidateUID(uid string) error {
	if strings.Contains(uid, "/") || strings.TrimSpace(uid) != uid {
		return fmt.Errorf("%w: uid %q must be a single path segment", ErrInvalidCustomer, uid)
	}
	return nil
}

// Complete reports whether street, city and zip are all present.
func (a *Address) Complete() bool {
	return a != nil && a.Street != "" && a.City != "" && a.Zip != ""
}

type Customer struct {
	UID     string   `json:"uid,omitempty"`
	Name    string   `json:"name"`
	Phone   string   `json:"phone,omitempty"`
	Email   string   `json:"email,omitempty"`
	Address *Address `json:"address,omitempty"`
}

// Order is stored identically at orders/{id} and users/{uid}/orders/{id}.
type Order struct {
	ID          string    `json:"id"`
	OrderNo     string    `json:"orderNo"`
	Items       []Item    `json:"items"`
	Subtotal    float64   `json:"subtotal"`
	TaxRate     float64   `json:"taxRate"`
	TaxAmount   float64   `json:"taxAmount"`
	TotalAmount float64   `json:"totalAmount"`
	OrderType   OrderType `json:"orderType"`
	Source      Source    `json:"source"`
	Status      Status    `json:"status"`
	Payment     Payment   `json:"payment"`
	Customer    Customer  `json:"customer"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ApplyBill copies a computed bill onto the order.
func (o *Order) ApplyBill(b Bill) {
	o.Subtotal = b.Subtotal
	o.TaxRate = b.TaxRate
	o.TaxAmount = b.TaxAmount
	o.TotalAmount = b.TotalAmount
}

// DailyCounter lives at orderCounters/{YYYYMMDD}.
type DailyCounter struct {
	Date      string    `json:"date"`
	Total     int       `json:"total"`
	DineIn    int       `json:"dineIn"`
	Takeaway  int       `json:"takeaway"`
	Delivery  int       `json:"delivery"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ForType returns the per-type sub-count.
func (c DailyCounter) ForType(t OrderType) int {
	switch t {
	case OrderTypeTakeaway:
		return c.Takeaway
	case OrderTypeDelivery:
		return c.Delivery
	default:
		return c.DineIn
	}
}
