package handler

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/ticket-admin/internal/domain/apperr"
	"github.com/xenking/ticket-admin/internal/domain/product"
)

const maxBodyBytes = 1 << 20

type addProductBody struct {
	ProductCode string
	Quantity    int
}

type loginBody struct {
	Username string
	Password string
}

// decodeObject reads a JSON object from the request body, handing every key
// to field. Malformed bodies classify as invalid input.
func decodeObject(w http.ResponseWriter, r *http.Request, field func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return apperr.Invalidf("read body: %v", err)
	}
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return apperr.Invalidf("request body must be a JSON object")
	}
	if err := d.Obj(field); err != nil {
		if apperr.KindOf(err) == apperr.KindInvalidInput {
			return err
		}
		return apperr.Invalidf("malformed JSON body: %v", err)
	}
	return nil
}

// Field names accept the legacy Spanish spelling next to the English one.
func decodeAddProduct(w http.ResponseWriter, r *http.Request) (addProductBody, error) {
	var b addProductBody
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productCode", "codigoProducto":
			b.ProductCode, err = decodeString(d, key)
		case "quantity", "cantidad":
			b.Quantity, err = decodeInt(d, key)
		default:
			err = d.Skip()
		}
		return err
	})
	return b, err
}

func decodeProduct(w http.ResponseWriter, r *http.Request) (product.Product, error) {
	var p product.Product
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code", "codigo":
			p.Code, err = decodeString(d, key)
		case "name", "nombre":
			p.Name, err = decodeString(d, key)
		case "unitPrice", "precio":
			p.UnitPrice, err = decodeDecimal(d, key)
		case "stockQuantity", "stock":
			p.Stock, err = decodeInt(d, key)
		case "kind", "tipo":
			p.Kind, err = decodeString(d, key)
		default:
			err = d.Skip()
		}
		return err
	})
	p.Code = strings.TrimSpace(p.Code)
	p.Name = strings.TrimSpace(p.Name)
	p.Kind = strings.TrimSpace(p.Kind)
	return p, err
}

func decodeLogin(w http.ResponseWriter, r *http.Request) (loginBody, error) {
	var b loginBody
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "username":
			b.Username, err = decodeString(d, key)
		case "password":
			b.Password, err = decodeString(d, key)
		default:
			err = d.Skip()
		}
		return err
	})
	return b, err
}

// decodeString accepts a string or a number; null is empty.
func decodeString(d *jx.Decoder, key string) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	case jx.Null:
		return "", d.Null()
	default:
		return "", apperr.Invalidf("%s must be a string", key)
	}
}

// decodeInt accepts an integer number or a numeric string; null is zero.
func decodeInt(d *jx.Decoder, key string) (int, error) {
	var raw string
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return 0, err
		}
		raw = n.String()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return 0, err
		}
		raw = strings.TrimSpace(s)
	case jx.Null:
		return 0, d.Null()
	default:
		return 0, apperr.Invalidf("%s must be an integer", key)
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Invalid(errors.Wrapf(err, "%s must be an integer", key))
	}
	return v, nil
}

func decodeDecimal(d *jx.Decoder, key string) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = n.String()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = strings.TrimSpace(s)
	default:
		return decimal.Zero, apperr.Invalidf("%s must be a number", key)
	}

	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperr.Invalidf("%s must be a number", key)
	}
	return v, nil
}
