package order

import "time"

// orderEdges enumerates the allowed fulfillment transitions. Cancelled is
// reachable from every non-terminal state; delivered and cancelled are
// terminal.
var orderEdges = map[Status][]Status{
	StatusPlaced:           {StatusPaymentConfirmed, StatusCancelled},
	StatusPaymentConfirmed: {StatusAssembling, StatusCancelled},
	StatusAssembling:       {StatusReady, StatusCancelled},
	StatusReady:            {StatusOnTheWay, StatusCancelled},
	StatusOnTheWay:         {StatusDelivered, StatusCancelled},
	StatusDelivered:        nil,
	StatusCancelled:        nil,
}

// CanTransition reports whether from -> to is an allowed fulfillment edge.
func CanTransition(from, to Status) bool {
	for _, next := range orderEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func IsTerminal(s Status) bool {
	return len(orderEdges[s]) == 0
}

// ApplyStatus advances the fulfillment status along an allowed edge,
// appending a status-history entry. Advancing to payment-confirmed also
// confirms a still-pending payment, but never overwrites a terminal payment
// status. A disallowed edge returns *InvalidTransitionError and leaves the
// order untouched.
func (o *Order) ApplyStatus(newStatus Status, actor, note string) error {
	if !CanTransition(o.OrderStatus, newStatus) {
		return &InvalidTransitionError{
			Field: "order status",
			From:  string(o.OrderStatus),
			To:    string(newStatus),
		}
	}

	now := time.Now().UTC()
	o.OrderStatus = newStatus
	o.appendHistory(string(newStatus), actor, note, now)

	if newStatus == StatusPaymentConfirmed && o.PaymentStatus == PaymentPending {
		o.PaymentStatus = PaymentConfirmed
		o.VerifiedAt = &now
		o.VerifiedBy = actor
	}

	return nil
}

// ApplyPaymentStatus resolves a pending payment. Confirming while the order
// is still placed auto-advances the fulfillment status to payment-confirmed.
// A failed payment forces the order to cancelled; the caller is responsible
// for releasing reserved stock afterwards (the release itself is idempotent
// per order). Both payment outcomes are terminal, so any transition off a
// non-pending payment returns *InvalidTransitionError without mutation.
func (o *Order) ApplyPaymentStatus(newStatus PaymentStatus, verifier, note string) error {
	if o.PaymentStatus != PaymentPending ||
		o.OrderStatus == StatusCancelled ||
		(newStatus != PaymentConfirmed && newStatus != PaymentFailed) {
		return &InvalidTransitionError{
			Field: "payment status",
			From:  string(o.PaymentStatus),
			To:    string(newStatus),
		}
	}

	now := time.Now().UTC()
	o.PaymentStatus = newStatus
	o.VerifiedAt = &now
	o.VerifiedBy = verifier

	switch newStatus {
	case PaymentConfirmed:
		if o.OrderStatus == StatusPlaced {
			o.OrderStatus = StatusPaymentConfirmed
			o.appendHistory(string(StatusPaymentConfirmed), verifier, note, now)
		}
	case PaymentFailed:
		if !IsTerminal(o.OrderStatus) {
			o.OrderStatus = StatusCancelled
		}
		o.appendHistory("payment-failed", verifier, note, now)
	}

	return nil
}

// AddNote appends a free-form note to the order.
func (o *Order) AddNote(text, author string, internal bool) {
	o.OrderNotes = append(o.OrderNotes, Note{
		Note:      text,
		Author:    author,
		Internal:  internal,
		CreatedAt: time.Now().UTC(),
	})
}

func (o *Order) appendHistory(status, actor, note string, at time.Time) {
	o.StatusHistory = append(o.StatusHistory, StatusEntry{
		Status:    status,
		Actor:     actor,
		Timestamp: at,
		Note:      note,
	})
}
