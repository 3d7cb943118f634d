package product

import (
	"context"

	"github.com/go-faster/errors"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/shopspring/decimal"

	"github.com/xenking/ticket-admin/internal/domain/apperr"
)

// Product is the fixed internal shape of a catalog row, regardless of how the
// underlying table names its columns.
type Product struct {
	Code      string
	Name      string
	UnitPrice decimal.Decimal
	Stock     int
	Kind      string
}

// Validate checks the fields required to create a product.
func (p Product) Validate() error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.Code, validation.Required, validation.Length(1, 64)),
		validation.Field(&p.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&p.Kind, validation.Required, validation.Length(1, 64)),
		validation.Field(&p.Stock, validation.Min(0)),
		validation.Field(&p.UnitPrice, validation.By(nonNegative)),
	)
	return apperr.Invalid(err)
}

func nonNegative(v any) error {
	d, ok := v.(decimal.Decimal)
	if ok && d.IsNegative() {
		return errors.New("must be no less than 0")
	}
	return nil
}

// Repository defines catalog persistence.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	Create(ctx context.Context, p Product) error
	Upsert(ctx context.Context, p Product) error
}
