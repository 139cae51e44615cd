package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/orbisretail/fulfillment/internal/domain/order"
)

// CreateOrder handles the public checkout endpoint.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCheckoutRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	o, err := h.orders.Checkout(r.Context(), req)
	if err != nil {
		mapOrderError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeOrder(e, o, false)
	})
}

// TrackOrder returns an order by its public tracking key (order number +
// email). Internal notes are never included here.
func (h *Handler) TrackOrder(w http.ResponseWriter, r *http.Request) {
	orderNumber := r.URL.Query().Get("orderNumber")
	email := r.URL.Query().Get("email")
	if orderNumber == "" || email == "" {
		writeError(w, http.StatusBadRequest, "orderNumber and email are required")
		return
	}

	o, err := h.orders.Track(r.Context(), orderNumber, email)
	if err != nil {
		mapOrderError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o, false)
	})
}

// GetOrder returns a single order by ID for administrators.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapOrderError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o, true)
	})
}

// UpdateOrderStatus applies a fulfillment status transition.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	req, err := decodeStatusUpdate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"),
		order.Status(req.Status), actorOr(r, req.Actor), req.Note)
	if err != nil {
		mapOrderError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o, true)
	})
}

// UpdatePaymentStatus resolves a pending payment.
func (h *Handler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	req, err := decodeStatusUpdate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	o, err := h.orders.UpdatePaymentStatus(r.Context(), chi.URLParam(r, "id"),
		order.PaymentStatus(req.Status), actorOr(r, req.Actor), req.Note)
	if err != nil {
		mapOrderError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o, true)
	})
}

// AddOrderNote appends a note to an order.
func (h *Handler) AddOrderNote(w http.ResponseWriter, r *http.Request) {
	req, err := decodeNote(r)
	if err != nil || req.Note == "" {
		writeError(w, http.StatusBadRequest, "note is required")
		return
	}

	o, err := h.orders.AddNote(r.Context(), chi.URLParam(r, "id"),
		req.Note, actorOr(r, req.Author), req.Internal)
	if err != nil {
		mapOrderError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o, true)
	})
}

// SetTracking attaches shipment tracking details to an order.
func (h *Handler) SetTracking(w http.ResponseWriter, r *http.Request) {
	info, err := decodeTracking(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if info.TrackingNumber == "" {
		writeError(w, http.StatusBadRequest, "trackingNumber is required")
		return
	}

	o, err := h.orders.SetTracking(r.Context(), chi.URLParam(r, "id"), info)
	if err != nil {
		mapOrderError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o, true)
	})
}

// actorOr resolves the acting identity: the explicit request field when
// set, otherwise the authenticated API key's name.
func actorOr(r *http.Request, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if name := APIKeyNameFromContext(r.Context()); name != "" {
		return name
	}
	return "admin"
}
