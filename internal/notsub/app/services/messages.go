package services

import (
	"fmt"
	"strings"

	"restaurant-pos/internal/notsub/app/core"
	"restaurant-pos/internal/xpkg/models"

	"github.com/shopspring/decimal"
)

var statusPhrases = map[string]string{
	"placed":    "has been received",
	"preparing": "is being prepared",
	"ready":     "is ready",
	"delivered": "has been delivered. Enjoy your meal!",
	"rejected":  "could not be accepted. We are sorry for the inconvenience",
}

// BuildMessage renders the customer text for a broker notification.
func BuildMessage(n models.NotificationMessage) core.Message {
	name := n.CustomerName
	if name == "" {
		name = "there"
	}
	params := []string{name, n.OrderNo}

	if n.Kind == models.KindStatusChanged {
		phrase, ok := statusPhrases[n.NewStatus]
		if !ok {
			phrase = "is now " + n.NewStatus
		}
		return core.Message{
			Text:           fmt.Sprintf("Hi %s, your order %s %s.", name, n.OrderNo, phrase),
			TemplateParams: params,
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s, your order %s is confirmed.\n", name, n.OrderNo)
	for _, it := range n.Items {
		line := decimal.NewFromFloat(it.UnitPrice).Mul(decimal.NewFromInt(int64(it.Quantity)))
		fmt.Fprintf(&b, "%d x %s @ %s = %s\n", it.Quantity, it.Name, money(it.UnitPrice), line.StringFixed(2))
	}
	fmt.Fprintf(&b, "Subtotal: %s\nTax: %s\nTotal: %s", money(n.Subtotal), money(n.TaxAmount), money(n.TotalAmount))

	return core.Message{Text: b.String(), TemplateParams: params}
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
