//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"testing"
)

const adminAPIKey = "integration-test-key"

var orderNumberPattern = regexp.MustCompile(`^ORD-\d{12}$`)

func checkout(email string) checkoutRequest {
	return checkoutRequest{
		Items: []checkoutItem{{ProductID: "sku-paring-knife", Quantity: 1}},
		Email: email,
		Customer: customerDetails{
			Name:     "Dana Reyes",
			Phone:    "+1-555-0100",
			Address:  "12 Harbor Lane",
			City:     "Portside",
			Province: "West",
		},
		PaymentMethod: "bank-transfer",
	}
}

func placeOrder(t *testing.T, req checkoutRequest) orderResponse {
	t.Helper()

	resp := doPost(t, "/api/orders", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	return decodeJSON[orderResponse](t, resp)
}

func TestPlaceOrder(t *testing.T) {
	order := placeOrder(t, checkout("dana@example.com"))

	if !orderNumberPattern.MatchString(order.OrderNumber) {
		t.Errorf("order number %q does not match expected format", order.OrderNumber)
	}
	if order.OrderStatus != "placed" {
		t.Errorf("order status: got %q, want %q", order.OrderStatus, "placed")
	}
	if order.PaymentStatus != "pending" {
		t.Errorf("payment status: got %q, want %q", order.PaymentStatus, "pending")
	}
	// 15.25 + 5.00 shipping
	if order.Subtotal != 15.25 {
		t.Errorf("subtotal: got %v, want 15.25", order.Subtotal)
	}
	if order.Total != 20.25 {
		t.Errorf("total: got %v, want 20.25", order.Total)
	}
	if len(order.StatusHistory) != 1 || order.StatusHistory[0].Status != "placed" {
		t.Errorf("status history: got %+v, want single placed entry", order.StatusHistory)
	}
}

func TestPlaceOrder_SalePriceFrozen(t *testing.T) {
	req := checkout("sale@example.com")
	req.Items = []checkoutItem{{ProductID: "sku-chef-knife", Quantity: 2}}

	order := placeOrder(t, req)

	if len(order.Items) != 1 {
		t.Fatalf("items: got %d, want 1", len(order.Items))
	}
	if order.Items[0].UnitPrice != 74.99 {
		t.Errorf("unit price: got %v, want sale price 74.99", order.Items[0].UnitPrice)
	}
	if order.Subtotal != 149.98 {
		t.Errorf("subtotal: got %v, want 149.98", order.Subtotal)
	}
}

func TestPlaceOrder_EmptyItems(t *testing.T) {
	req := checkout("empty@example.com")
	req.Items = nil

	resp := doPost(t, "/api/orders", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_UnknownProduct(t *testing.T) {
	req := checkout("ghost@example.com")
	req.Items = []checkoutItem{{ProductID: "sku-does-not-exist", Quantity: 1}}

	resp := doPost(t, "/api/orders", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	req := checkout("bulk@example.com")
	req.Items = []checkoutItem{{ProductID: "sku-last-unit", Quantity: 2}}

	resp := doPost(t, "/api/orders", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	// The failed attempt must not have consumed the single remaining unit.
	req.Items = []checkoutItem{{ProductID: "sku-last-unit", Quantity: 1}}
	order := placeOrder(t, req)
	if order.Items[0].Quantity != 1 {
		t.Errorf("quantity: got %d, want 1", order.Items[0].Quantity)
	}
}

func TestTrackOrder(t *testing.T) {
	order := placeOrder(t, checkout("tracker@example.com"))

	path := fmt.Sprintf("/api/orders/track?orderNumber=%s&email=%s",
		url.QueryEscape(order.OrderNumber), url.QueryEscape("tracker@example.com"))
	resp := doGet(t, path)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	got := decodeJSON[orderResponse](t, resp)
	if got.OrderNumber != order.OrderNumber {
		t.Errorf("order number: got %q, want %q", got.OrderNumber, order.OrderNumber)
	}
}

func TestTrackOrder_WrongEmail(t *testing.T) {
	order := placeOrder(t, checkout("owner@example.com"))

	path := fmt.Sprintf("/api/orders/track?orderNumber=%s&email=%s",
		url.QueryEscape(order.OrderNumber), url.QueryEscape("intruder@example.com"))
	resp := doGet(t, path)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestGetOrder_NoAuth(t *testing.T) {
	order := placeOrder(t, checkout("noauth@example.com"))

	resp := doGet(t, "/api/orders/"+order.ID)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestGetOrder_InvalidKey(t *testing.T) {
	order := placeOrder(t, checkout("badkey@example.com"))

	resp := do(t, http.MethodGet, "/api/orders/"+order.ID, nil, "wrong-key")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestOrderLifecycle(t *testing.T) {
	order := placeOrder(t, checkout("lifecycle@example.com"))

	// Confirming payment advances the order from placed automatically.
	resp := do(t, http.MethodPatch, "/api/orders/"+order.ID+"/payment",
		map[string]string{"status": "confirmed", "verifier": "ops"}, adminAPIKey)
	got := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()
	if got.PaymentStatus != "confirmed" {
		t.Fatalf("payment status: got %q, want confirmed", got.PaymentStatus)
	}
	if got.OrderStatus != "payment-confirmed" {
		t.Fatalf("order status: got %q, want payment-confirmed", got.OrderStatus)
	}

	for _, next := range []string{"assembling", "ready", "on-the-way", "delivered"} {
		resp := do(t, http.MethodPatch, "/api/orders/"+order.ID+"/status",
			map[string]string{"status": next, "actor": "ops"}, adminAPIKey)
		got = decodeJSON[orderResponse](t, resp)
		resp.Body.Close()
		if got.OrderStatus != next {
			t.Fatalf("order status: got %q, want %q", got.OrderStatus, next)
		}
	}

	// placed + payment-confirmed + 4 transitions
	if len(got.StatusHistory) != 6 {
		t.Errorf("status history length: got %d, want 6", len(got.StatusHistory))
	}
}

func TestOrderStatus_InvalidTransition(t *testing.T) {
	order := placeOrder(t, checkout("skipper@example.com"))

	// placed -> ready skips payment confirmation and assembly.
	resp := do(t, http.MethodPatch, "/api/orders/"+order.ID+"/status",
		map[string]string{"status": "ready", "actor": "ops"}, adminAPIKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestCancelOrder_RestoresStock(t *testing.T) {
	stockBefore := productStock(t, "sku-cast-iron-skillet")

	req := checkout("cancel@example.com")
	req.Items = []checkoutItem{{ProductID: "sku-cast-iron-skillet", Quantity: 3}}
	order := placeOrder(t, req)

	if got := productStock(t, "sku-cast-iron-skillet"); got != stockBefore-3 {
		t.Fatalf("stock after order: got %d, want %d", got, stockBefore-3)
	}

	resp := do(t, http.MethodPatch, "/api/orders/"+order.ID+"/status",
		map[string]string{"status": "cancelled", "actor": "ops"}, adminAPIKey)
	got := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()
	if got.OrderStatus != "cancelled" {
		t.Fatalf("order status: got %q, want cancelled", got.OrderStatus)
	}

	if got := productStock(t, "sku-cast-iron-skillet"); got != stockBefore {
		t.Errorf("stock after cancel: got %d, want %d", got, stockBefore)
	}
}

func TestPaymentFailed_CancelsAndRestores(t *testing.T) {
	stockBefore := productStock(t, "sku-stand-mixer")

	req := checkout("failed@example.com")
	req.Items = []checkoutItem{{ProductID: "sku-stand-mixer", Quantity: 2}}
	order := placeOrder(t, req)

	resp := do(t, http.MethodPatch, "/api/orders/"+order.ID+"/payment",
		map[string]string{"status": "failed", "verifier": "ops"}, adminAPIKey)
	got := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()

	if got.PaymentStatus != "failed" {
		t.Errorf("payment status: got %q, want failed", got.PaymentStatus)
	}
	if got.OrderStatus != "cancelled" {
		t.Errorf("order status: got %q, want cancelled", got.OrderStatus)
	}
	if stock := productStock(t, "sku-stand-mixer"); stock != stockBefore {
		t.Errorf("stock after failed payment: got %d, want %d", stock, stockBefore)
	}
}

func TestConfirmPayment_OnCancelled(t *testing.T) {
	order := placeOrder(t, checkout("late@example.com"))

	resp := do(t, http.MethodPatch, "/api/orders/"+order.ID+"/status",
		map[string]string{"status": "cancelled", "actor": "ops"}, adminAPIKey)
	resp.Body.Close()

	resp = do(t, http.MethodPatch, "/api/orders/"+order.ID+"/payment",
		map[string]string{"status": "confirmed", "verifier": "ops"}, adminAPIKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestOrderNotes(t *testing.T) {
	order := placeOrder(t, checkout("notes@example.com"))

	resp := do(t, http.MethodPost, "/api/orders/"+order.ID+"/notes",
		map[string]any{"note": "call before delivery", "author": "ops", "isInternal": true}, adminAPIKey)
	resp.Body.Close()

	// Internal notes must not leak through public tracking.
	path := fmt.Sprintf("/api/orders/track?orderNumber=%s&email=%s",
		url.QueryEscape(order.OrderNumber), url.QueryEscape("notes@example.com"))
	resp = doGet(t, path)
	tracked := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()

	if len(tracked.OrderNotes) != 0 {
		t.Errorf("public view notes: got %d, want 0", len(tracked.OrderNotes))
	}

	// The admin view includes them.
	resp = do(t, http.MethodGet, "/api/orders/"+order.ID, nil, adminAPIKey)
	admin := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()

	if len(admin.OrderNotes) != 1 || admin.OrderNotes[0].Note != "call before delivery" {
		t.Errorf("admin view notes: got %+v", admin.OrderNotes)
	}
}

func TestSetTracking(t *testing.T) {
	order := placeOrder(t, checkout("shipping@example.com"))

	resp := do(t, http.MethodPut, "/api/orders/"+order.ID+"/tracking", map[string]string{
		"trackingNumber":    "TRK-555-001",
		"carrier":           "PostNord",
		"estimatedDelivery": "2026-09-05T00:00:00Z",
	}, adminAPIKey)
	got := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()

	if got.TrackingInfo == nil {
		t.Fatal("tracking info missing")
	}
	if got.TrackingInfo.TrackingNumber != "TRK-555-001" {
		t.Errorf("tracking number: got %q", got.TrackingInfo.TrackingNumber)
	}
	if got.TrackingInfo.Carrier != "PostNord" {
		t.Errorf("carrier: got %q", got.TrackingInfo.Carrier)
	}
}

// productStock reads current stock for a product via the public listing.
func productStock(t *testing.T, id string) int {
	t.Helper()

	resp := doGet(t, "/api/products")
	defer resp.Body.Close()

	products := decodeJSON[[]productResponse](t, resp)
	for _, p := range products {
		if p.ID == id {
			return p.Stock
		}
	}
	t.Fatalf("product %s not found", id)
	return 0
}
