package core

type OrderParams struct {
	Port          int
	MaxConcurrent int
}

const (
	// Constraints for customer name
	MinCustomerNameLen = 1
	MaxCustomerNameLen = 100

	// Constraints for items
	MinItems = 1
	MaxItems = 50

	MaxItemNameLen  = 100
	MaxItemQuantity = 100

	// in seconds for db response
	WaitTime = 20

	// in seconds for a broker publish, never on the order's critical path
	PublishTimeout = 5

	MBReconnInterval = 5

	DateKeyLayout = "20060102"

	CounterCollection  = "orderCounters"
	OrderCollection    = "orders"
	UserCollection     = "users"
	RegionDocumentPath = "miscellaneous/delivery"
)
