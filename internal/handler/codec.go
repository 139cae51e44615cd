package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/orbisretail/fulfillment/internal/domain/customer"
	"github.com/orbisretail/fulfillment/internal/domain/inventory"
	"github.com/orbisretail/fulfillment/internal/domain/order"
	"github.com/orbisretail/fulfillment/internal/domain/product"
)

// maxBodyBytes caps request bodies; checkout payloads are small.
const maxBodyBytes = 1 << 20

// --- Decoding ---

func decodeBody(r *http.Request) (*jx.Decoder, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return jx.DecodeBytes(data), nil
}

func decodeCheckoutRequest(r *http.Request) (order.CheckoutRequest, error) {
	var req order.CheckoutRequest

	d, err := decodeBody(r)
	if err != nil {
		return req, err
	}

	err = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				var line inventory.Line
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "productId":
						line.ProductID, err = d.Str()
					case "quantity":
						line.Quantity, err = d.Int()
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				req.Items = append(req.Items, line)
				return nil
			})
		case "email":
			var err error
			req.Email, err = d.Str()
			return err
		case "customer":
			return d.Obj(func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "name":
					req.Customer.Name, err = d.Str()
				case "phone":
					req.Customer.Phone, err = d.Str()
				case "address":
					req.Customer.Address, err = d.Str()
				case "city":
					req.Customer.City, err = d.Str()
				case "province":
					req.Customer.Province, err = d.Str()
				default:
					err = d.Skip()
				}
				return err
			})
		case "paymentMethod":
			var err error
			req.PaymentMethod, err = d.Str()
			return err
		case "paymentReceipt":
			var err error
			req.PaymentReceipt, err = d.Str()
			return err
		case "notes":
			var err error
			req.Notes, err = d.Str()
			return err
		default:
			return d.Skip()
		}
	})
	return req, err
}

type statusUpdateRequest struct {
	Status string
	Actor  string
	Note   string
}

func decodeStatusUpdate(r *http.Request) (statusUpdateRequest, error) {
	var req statusUpdateRequest

	d, err := decodeBody(r)
	if err != nil {
		return req, err
	}

	err = d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "status":
			req.Status, err = d.Str()
		case "actor", "verifier":
			req.Actor, err = d.Str()
		case "note", "notes":
			req.Note, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

type noteRequest struct {
	Note     string
	Author   string
	Internal bool
}

func decodeNote(r *http.Request) (noteRequest, error) {
	var req noteRequest

	d, err := decodeBody(r)
	if err != nil {
		return req, err
	}

	err = d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "note":
			req.Note, err = d.Str()
		case "author":
			req.Author, err = d.Str()
		case "isInternal":
			req.Internal, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

func decodeTracking(r *http.Request) (order.TrackingInfo, error) {
	var info order.TrackingInfo

	d, err := decodeBody(r)
	if err != nil {
		return info, err
	}

	err = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "trackingNumber":
			var err error
			info.TrackingNumber, err = d.Str()
			return err
		case "carrier":
			var err error
			info.Carrier, err = d.Str()
			return err
		case "estimatedDelivery":
			s, err := d.Str()
			if err != nil {
				return err
			}
			info.EstimatedDelivery, err = time.Parse(time.RFC3339, s)
			if err != nil {
				return errors.Wrap(err, "estimatedDelivery")
			}
			return nil
		default:
			return d.Skip()
		}
	})
	return info, err
}

// --- Encoding ---

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.StrEscape(message)
		e.ObjEnd()
	})
}

func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// encodeOrder writes the full order representation. Internal notes are
// filtered out unless the caller is an authenticated admin.
func encodeOrder(e *jx.Encoder, o *order.Order, includeInternal bool) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("orderNumber")
	e.Str(o.OrderNumber)
	e.FieldStart("customerId")
	e.Str(o.CustomerID)

	e.FieldStart("customerDetails")
	e.ObjStart()
	e.FieldStart("name")
	e.StrEscape(o.CustomerDetails.Name)
	e.FieldStart("email")
	e.StrEscape(o.CustomerDetails.Email)
	e.FieldStart("phone")
	e.StrEscape(o.CustomerDetails.Phone)
	e.FieldStart("address")
	e.StrEscape(o.CustomerDetails.Address)
	e.FieldStart("city")
	e.StrEscape(o.CustomerDetails.City)
	e.FieldStart("province")
	e.StrEscape(o.CustomerDetails.Province)
	e.ObjEnd()

	e.FieldStart("items")
	e.ArrStart()
	for _, item := range o.Items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(item.ProductID)
		e.FieldStart("title")
		e.StrEscape(item.Title)
		e.FieldStart("unitPrice")
		e.Float64(item.UnitPrice.InexactFloat64())
		e.FieldStart("quantity")
		e.Int(item.Quantity)
		e.FieldStart("image")
		e.Str(item.Image)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("subtotal")
	e.Float64(o.Subtotal.InexactFloat64())
	e.FieldStart("shippingCost")
	e.Float64(o.ShippingCost.InexactFloat64())
	e.FieldStart("total")
	e.Float64(o.Total.InexactFloat64())
	e.FieldStart("paymentMethod")
	e.Str(o.PaymentMethod)
	e.FieldStart("paymentStatus")
	e.Str(string(o.PaymentStatus))
	e.FieldStart("orderStatus")
	e.Str(string(o.OrderStatus))

	e.FieldStart("statusHistory")
	e.ArrStart()
	for _, entry := range o.StatusHistory {
		e.ObjStart()
		e.FieldStart("status")
		e.Str(entry.Status)
		e.FieldStart("actor")
		e.StrEscape(entry.Actor)
		e.FieldStart("timestamp")
		e.Str(entry.Timestamp.Format(time.RFC3339Nano))
		if entry.Note != "" {
			e.FieldStart("note")
			e.StrEscape(entry.Note)
		}
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("orderNotes")
	e.ArrStart()
	for _, note := range o.OrderNotes {
		if note.Internal && !includeInternal {
			continue
		}
		e.ObjStart()
		e.FieldStart("note")
		e.StrEscape(note.Note)
		e.FieldStart("author")
		e.StrEscape(note.Author)
		e.FieldStart("isInternal")
		e.Bool(note.Internal)
		e.FieldStart("createdAt")
		e.Str(note.CreatedAt.Format(time.RFC3339Nano))
		e.ObjEnd()
	}
	e.ArrEnd()

	if o.Tracking != nil {
		e.FieldStart("trackingInfo")
		e.ObjStart()
		e.FieldStart("trackingNumber")
		e.Str(o.Tracking.TrackingNumber)
		e.FieldStart("carrier")
		e.StrEscape(o.Tracking.Carrier)
		e.FieldStart("estimatedDelivery")
		e.Str(o.Tracking.EstimatedDelivery.Format(time.RFC3339))
		e.ObjEnd()
	}

	e.FieldStart("createdAt")
	e.Str(o.CreatedAt.Format(time.RFC3339Nano))
	e.FieldStart("updatedAt")
	e.Str(o.UpdatedAt.Format(time.RFC3339Nano))
	e.ObjEnd()
}

func encodeProduct(e *jx.Encoder, p product.Product, imageBaseURL string) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("title")
	e.StrEscape(p.Title)
	e.FieldStart("price")
	e.Float64(p.Price.InexactFloat64())
	if p.SalePrice != nil {
		e.FieldStart("salePrice")
		e.Float64(p.SalePrice.InexactFloat64())
	}
	e.FieldStart("stock")
	e.Int(p.Stock)
	e.FieldStart("image")
	e.Str(imageURL(imageBaseURL, p.Image))
	e.ObjEnd()
}

// mapOrderError translates domain errors into the HTTP contract. Unmapped
// errors become 500s with the cause logged server-side only.
func mapOrderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr   *order.ValidationError
		notFoundErr     *inventory.ProductNotFoundError
		insufficientErr *inventory.InsufficientStockError
		transitionErr   *order.InvalidTransitionError
	)

	switch {
	case errors.As(err, &validationErr),
		errors.Is(err, inventory.ErrEmptyLines),
		errors.Is(err, inventory.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &notFoundErr):
		writeError(w, http.StatusNotFound, notFoundErr.Error())
	case errors.As(err, &insufficientErr):
		writeError(w, http.StatusConflict, insufficientErr.Error())
	case errors.As(err, &transitionErr):
		writeError(w, http.StatusConflict, transitionErr.Error())
	case errors.Is(err, order.ErrVersionConflict):
		writeError(w, http.StatusConflict, "order was modified concurrently, retry")
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, order.ErrEmailMismatch):
		writeError(w, http.StatusForbidden, "email does not match order")
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, customer.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeInternalError(w, r, err)
	}
}

func imageURL(base, path string) string {
	if base == "" || path == "" {
		return path
	}
	return base + "/" + path
}
