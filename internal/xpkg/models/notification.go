package models

import "time"

// Kinds of notification requests published by the order service.
const (
	KindOrderCreated  = "order_created"
	KindStatusChanged = "status_changed"
)

const (
	NotificationExchange = "notifications"
	NotificationQueue    = "order_notifications"
	RoutingKeyCreated    = "order.created"
	RoutingKeyStatus     = "order.status"
	RoutingKeyPattern    = "order.*"
)

type NotificationItem struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// NotificationMessage is the broker payload between order-service and
// notification-subscriber.
type NotificationMessage struct {
	Kind         string             `json:"kind"`
	OrderID      string             `json:"order_id"`
	OrderNo      string             `json:"order_no"`
	OrderType    string             `json:"order_type"`
	CustomerName string             `json:"customer_name"`
	Phone        string             `json:"phone,omitempty"`
	Items        []NotificationItem `json:"items,omitempty"`
	Subtotal     float64            `json:"subtotal"`
	TaxAmount    float64            `json:"tax_amount"`
	TotalAmount  float64            `json:"total_amount"`
	OldStatus    string             `json:"old_status,omitempty"`
	NewStatus    string             `json:"new_status"`
	Timestamp    time.Time          `json:"timestamp"`
}

// RoutingKey selects the topic routing key for the message kind.
func (m NotificationMessage) RoutingKey() string {
	if m.Kind == KindStatusChanged {
		return RoutingKeyStatus
	}
	return RoutingKeyCreated
}
