package product

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Record is a raw catalog row keyed by column name.
type Record map[string]any

// Columns maps logical product fields onto the physical catalog table.
//
// Code and Stock name fixed columns because statements write to them. Name,
// Price and Kind are ordered alias lists: the first alias present in a row
// wins. The first alias of each list is the column used for inserts.
type Columns struct {
	Table string
	Code  string
	Stock string
	Name  []string
	Price []string
	Kind  []string
}

// DefaultColumns matches the bundled schema and the legacy spellings seen in
// older catalog tables.
func DefaultColumns() Columns {
	return Columns{
		Table: "producto",
		Code:  "codigo",
		Stock: "cantidad",
		Name:  []string{"nombre", "nombre_del_producto", "name"},
		Price: []string{"precio_unitario", "precio", "price"},
		Kind:  []string{"tipo", "kind"},
	}
}

// Decode resolves a raw row into a Product. priceOK reports whether any price
// alias was present; when it is false UnitPrice is zero. A missing name falls
// back to "Product <code>".
func (c Columns) Decode(rec Record) (p Product, priceOK bool) {
	row := normalize(rec)

	p.Code = toString(row[normalizeName(c.Code)])
	if v, ok := lookup(row, c.Name); ok {
		p.Name = toString(v)
	}
	if p.Name == "" {
		p.Name = "Product " + p.Code
	}
	if v, ok := lookup(row, c.Price); ok {
		p.UnitPrice, priceOK = toDecimal(v)
	}
	if v, ok := lookup(row, c.Kind); ok {
		p.Kind = toString(v)
	}
	p.Stock, _ = toInt(row[normalizeName(c.Stock)])
	return p, priceOK
}

// StockOf returns the stock column of rec. ok is false when the column is
// missing or not an integer.
func (c Columns) StockOf(rec Record) (int, bool) {
	return toInt(normalize(rec)[normalizeName(c.Stock)])
}

// NameColumn is the column written by inserts for the product name.
func (c Columns) NameColumn() string { return first(c.Name) }

// PriceColumn is the column written by inserts for the unit price.
func (c Columns) PriceColumn() string { return first(c.Price) }

// KindColumn is the column written by inserts for the product kind.
func (c Columns) KindColumn() string { return first(c.Kind) }

func first(aliases []string) string {
	if len(aliases) == 0 {
		return ""
	}
	return aliases[0]
}

func lookup(row map[string]any, aliases []string) (any, bool) {
	for _, alias := range aliases {
		if v, ok := row[normalizeName(alias)]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func normalize(rec Record) map[string]any {
	row := make(map[string]any, len(rec))
	for k, v := range rec {
		row[normalizeName(k)] = v
	}
	return row
}

// normalizeName folds "Precio unitario" and "precio_unitario" to one key.
func normalizeName(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}

func toString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch v := v.(type) {
	case decimal.Decimal:
		return v, true
	case pgtype.Numeric:
		if !v.Valid || v.NaN || v.InfinityModifier != pgtype.Finite {
			return decimal.Zero, false
		}
		return decimal.NewFromBigInt(v.Int, v.Exp), true
	case float64:
		return decimal.NewFromFloat(v), true
	case float32:
		return decimal.NewFromFloat32(v), true
	case int64:
		return decimal.NewFromInt(v), true
	case int32:
		return decimal.NewFromInt32(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		return d, err == nil
	case []byte:
		d, err := decimal.NewFromString(strings.TrimSpace(string(v)))
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

func toInt(v any) (int, bool) {
	switch v := v.(type) {
	case int:
		return v, true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case decimal.Decimal:
		if !v.IsInteger() {
			return 0, false
		}
		return int(v.IntPart()), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	default:
		return 0, false
	}
}
