package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/ticket-admin/internal/domain/ticket"
)

func (h *Handler) createTicket(w http.ResponseWriter, r *http.Request) {
	t, err := h.tickets.Create(r.Context())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusCreated, func(e *jx.Encoder) { encodeTicket(e, t) })
}

func (h *Handler) getTicket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := ticket.ParseID(r.PathValue("id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	t, err := h.tickets.Get(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { encodeTicket(e, t) })
}

// addProductToTicket validates the path and body before any data access.
func (h *Handler) addProductToTicket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := ticket.ParseID(r.PathValue("id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	body, err := decodeAddProduct(w, r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	item, err := h.tickets.AddProduct(ctx, ticket.AddProductRequest{
		TicketID:    id,
		ProductCode: body.ProductCode,
		Quantity:    body.Quantity,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { encodeLineItem(e, *item) })
}

func encodeTicket(e *jx.Encoder, t *ticket.Ticket) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(t.ID) })
		e.Field("total", func(e *jx.Encoder) { encodeDecimal(e, t.Total) })
		if !t.CreatedAt.IsZero() {
			e.Field("createdAt", func(e *jx.Encoder) { encodeValue(e, t.CreatedAt) })
		}
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range t.Items {
					encodeLineItem(e, it)
				}
			})
		})
	})
}

func encodeLineItem(e *jx.Encoder, it ticket.LineItem) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("ticketId", func(e *jx.Encoder) { e.Int64(it.TicketID) })
		e.Field("productCode", func(e *jx.Encoder) { e.Str(it.ProductCode) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
		e.Field("unitPrice", func(e *jx.Encoder) { encodeDecimal(e, it.UnitPrice) })
		e.Field("subtotal", func(e *jx.Encoder) { encodeDecimal(e, it.Subtotal) })
	})
}
