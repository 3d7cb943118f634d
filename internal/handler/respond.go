package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/ticket-admin/internal/domain/apperr"
)

// statusOf maps an error kind onto the HTTP status of its response.
func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidInput, apperr.KindInsufficientStock:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeData writes {"success":true,"data":...}.
func writeData(w http.ResponseWriter, status int, data func(e *jx.Encoder)) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("success", func(e *jx.Encoder) { e.Bool(true) })
		e.Field("data", data)
	})
	writeJSON(w, status, &e)
}

// writeRaw writes a bare JSON document without the envelope.
func writeRaw(w http.ResponseWriter, status int, body func(e *jx.Encoder)) {
	var e jx.Encoder
	body(&e)
	writeJSON(w, status, &e)
}

// writeError classifies err and writes the failure envelope. Causes of
// unexpected and data integrity errors are logged, never sent.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	lg := zctx.From(ctx)

	message := err.Error()
	switch kind {
	case apperr.KindUnexpected:
		lg.Error("Request failed", zap.Error(err))
		message = "internal server error"
	case apperr.KindDataIntegrity:
		lg.Error("Data integrity violation", zap.Error(err))
		message = "catalog data is inconsistent"
	case apperr.KindTimeout:
		lg.Warn("Request timed out", zap.Error(err))
		message = "operation timed out"
	case apperr.KindUnauthorized:
		message = "unauthorized"
	}

	var stockErr *apperr.InsufficientStockError
	hasStock := errors.As(err, &stockErr)

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("success", func(e *jx.Encoder) { e.Bool(false) })
		e.Field("kind", func(e *jx.Encoder) { e.Str(string(kind)) })
		e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		if hasStock {
			e.Field("available", func(e *jx.Encoder) { e.Int(stockErr.Available) })
			e.Field("requested", func(e *jx.Encoder) { e.Int(stockErr.Requested) })
		}
	})
	writeJSON(w, statusOf(kind), &e)
}

func encodeDecimal(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.String()))
}

// encodeValue writes a raw database value. Types without a natural JSON form
// are written as strings.
func encodeValue(e *jx.Encoder, v any) {
	switch v := v.(type) {
	case nil:
		e.Null()
	case string:
		e.Str(v)
	case []byte:
		e.Str(string(v))
	case bool:
		e.Bool(v)
	case int:
		e.Int(v)
	case int16:
		e.Int16(v)
	case int32:
		e.Int32(v)
	case int64:
		e.Int64(v)
	case float32:
		e.Float32(v)
	case float64:
		e.Float64(v)
	case decimal.Decimal:
		encodeDecimal(e, v)
	case pgtype.Numeric:
		if !v.Valid || v.NaN || v.InfinityModifier != pgtype.Finite {
			e.Null()
			return
		}
		encodeDecimal(e, decimal.NewFromBigInt(v.Int, v.Exp))
	case time.Time:
		e.Str(v.UTC().Format(time.RFC3339Nano))
	case []string:
		e.Arr(func(e *jx.Encoder) {
			for _, s := range v {
				e.Str(s)
			}
		})
	case fmt.Stringer:
		e.Str(v.String())
	default:
		e.Str(fmt.Sprint(v))
	}
}
