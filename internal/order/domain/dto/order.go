package dto

import (
	"restaurant-pos/internal/order/domain/models"
)

type Item struct {
	Name      string  `json:"name" validate:"required,max=100"`
	UnitPrice float64 `json:"unitPrice" validate:"gte=0"`
	Quantity  int     `json:"quantity" validate:"required,min=1,max=100"`
}

type Address struct {
	Street string   `json:"street" validate:"max=200"`
	City   string   `json:"city" validate:"max=100"`
	Zip    string   `json:"zip" validate:"max=20"`
	Lat    *float64 `json:"lat,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Lng    *float64 `json:"lng,omitempty" validate:"omitempty,gte=-180,lte=180"`
}

type Customer struct {
	UID     string   `json:"uid,omitempty" validate:"omitempty,max=128,excludesall=/"`
	Name    string   `json:"name" validate:"required,max=100"`
	Phone   string   `json:"phone,omitempty" validate:"omitempty,max=20"`
	Email   string   `json:"email,omitempty" validate:"omitempty,email"`
	Address *Address `json:"address,omitempty"`
}

// CheckoutRequest is placed by the storefront. Totals sent by the client are
// accepted for display parity but never trusted.
type CheckoutRequest struct {
	Items         []Item   `json:"items" validate:"required,min=1,max=50,dive"`
	OrderType     string   `json:"orderType" validate:"required,oneof=dine-in takeaway delivery"`
	Source        string   `json:"source,omitempty" validate:"omitempty,oneof=web app"`
	PaymentMethod string   `json:"paymentMethod" validate:"required,oneof=cod upi card"`
	Customer      Customer `json:"customer"`
	TotalAmount   *float64 `json:"totalAmount,omitempty"`
}

// POSOrderRequest is placed from the billing terminal. Walk-in customers may
// stay anonymous.
type POSOrderRequest struct {
	Items         []Item    `json:"items" validate:"required,min=1,max=50,dive"`
	OrderType     string    `json:"orderType" validate:"required,oneof=dine-in takeaway delivery"`
	PaymentMethod string    `json:"paymentMethod" validate:"required,oneof=cod upi card"`
	PaymentStatus string    `json:"paymentStatus,omitempty" validate:"omitempty,oneof=pending paid"`
	Customer      *Customer `json:"customer,omitempty"`
}

type ReplaceItemsRequest struct {
	Items []Item `json:"items" validate:"required,min=1,max=50,dive"`
}

type CheckAddressRequest struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
}

type RegionRequest struct {
	CenterLat *float64 `json:"centerLat" validate:"required,gte=-90,lte=90"`
	CenterLng *float64 `json:"centerLng" validate:"required,gte=-180,lte=180"`
	RadiusKm  float64  `json:"radiusKm" validate:"gt=0,lte=1000"`
}

// OrderResponse is returned by both order-creation endpoints.
type OrderResponse struct {
	ID          string        `json:"id"`
	OrderNo     string        `json:"orderNo"`
	Status      models.Status `json:"status"`
	Source      models.Source `json:"source"`
	Subtotal    float64       `json:"subtotal"`
	TaxAmount   float64       `json:"taxAmount"`
	TotalAmount float64       `json:"totalAmount"`
}

// CheckAddressResponse carries a nil distance when it could not be measured.
type CheckAddressResponse struct {
	OK         bool     `json:"ok"`
	DistanceKm *float64 `json:"distanceKm"`
	RadiusKm   float64  `json:"radiusKm"`
	Warning    string   `json:"warning,omitempty"`
}

func ToItems(items []Item) []models.Item {
	out := make([]models.Item, 0, len(items))
	for _, it := range items {
		out = append(out, models.Item{Name: it.Name, UnitPrice: it.UnitPrice, Quantity: it.Quantity})
	}
	return out
}

func (c Customer) ToModel() models.Customer {
	m := models.Customer{UID: c.UID, Name: c.Name, Phone: c.Phone, Email: c.Email}
	if c.Address != nil {
		m.Address = &models.Address{
			Street: c.Address.Street,
			City:   c.Address.City,
			Zip:    c.Address.Zip,
			Lat:    c.Address.Lat,
			Lng:    c.Address.Lng,
		}
	}
	return m
}

func NewOrderResponse(o models.Order) OrderResponse {
	return OrderResponse{
		ID:          o.ID,
		OrderNo:     o.OrderNo,
		Status:      o.Status,
		Source:      o.Source,
		Subtotal:    o.Subtotal,
		TaxAmount:   o.TaxAmount,
		TotalAmount: o.TotalAmount,
	}
}
