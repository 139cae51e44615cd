package notification

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/orbisretail/fulfillment/internal/domain/order"
)

// BuildInvoice renders a plain-text invoice document for an order. The
// result is attached to the confirmation email; rendering never touches the
// catalog, only the frozen snapshot inside the order.
func BuildInvoice(o *order.Order) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "INVOICE %s\n", o.OrderNumber)
	fmt.Fprintf(&b, "Date: %s\n\n", o.CreatedAt.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "Bill to: %s <%s>\n", o.CustomerDetails.Name, o.CustomerDetails.Email)
	if o.CustomerDetails.Address != "" {
		fmt.Fprintf(&b, "Ship to: %s, %s, %s\n", o.CustomerDetails.Address, o.CustomerDetails.City, o.CustomerDetails.Province)
	}
	b.WriteString("\n")

	for _, item := range o.Items {
		lineTotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		fmt.Fprintf(&b, "%-40s %3d x %10s = %10s\n",
			item.Title, item.Quantity, item.UnitPrice.StringFixed(2), lineTotal.StringFixed(2))
	}

	b.WriteString(strings.Repeat("-", 70) + "\n")
	fmt.Fprintf(&b, "%-58s %10s\n", "Subtotal", o.Subtotal.StringFixed(2))
	fmt.Fprintf(&b, "%-58s %10s\n", "Shipping", o.ShippingCost.StringFixed(2))
	fmt.Fprintf(&b, "%-58s %10s\n", "Total", o.Total.StringFixed(2))
	fmt.Fprintf(&b, "\nPayment method: %s (status: %s)\n", o.PaymentMethod, o.PaymentStatus)

	return []byte(b.String())
}
