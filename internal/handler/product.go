package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// ListProducts returns every active product in the catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, p := range products {
			encodeProduct(e, p, h.imageBaseURL)
		}
		e.ArrEnd()
	})
}
