package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/ticket-admin/internal/domain/product"
)

// listProducts returns the catalog as a bare JSON array.
func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeRaw(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, p := range products {
				encodeProduct(e, p)
			}
		})
	})
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := decodeProduct(w, r)
	if err == nil {
		err = p.Validate()
	}
	if err == nil {
		err = h.products.Create(ctx, p)
	}
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	zctx.From(ctx).Info("Product created", zap.String("product_code", p.Code))
	writeData(w, http.StatusCreated, func(e *jx.Encoder) { encodeProduct(e, p) })
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Str(p.Code) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("unitPrice", func(e *jx.Encoder) { encodeDecimal(e, p.UnitPrice) })
		e.Field("stockQuantity", func(e *jx.Encoder) { e.Int(p.Stock) })
		e.Field("kind", func(e *jx.Encoder) { e.Str(p.Kind) })
	})
}
