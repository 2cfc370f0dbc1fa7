// Package wire holds the JSON shapes exchanged between the catalog API and
// its clients, encoded with jx.
package wire

import (
	"io"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/ogen-go/ogen/validate"
	"github.com/shopspring/decimal"

	"github.com/xenking/scan-and-go/internal/domain/product"
)

var (
	errNotString = errors.New("must be a string")
	errNotNumber = errors.New("must be a number")
)

// Error is the body of every non-2xx catalog response.
type Error struct {
	Code    int
	Message string
	Reason  string
	// Fields lists the rejected fields of a validation failure.
	Fields []FieldError
}

// FieldError names one rejected field.
type FieldError struct {
	Name    string
	Message string
}

// FieldErrors flattens a validation error for the wire.
func FieldErrors(v *product.ValidationError) []FieldError {
	out := make([]FieldError, len(v.Fields))
	for i, f := range v.Fields {
		out[i] = FieldError{Name: f.Name, Message: f.Error.Error()}
	}
	return out
}

// ValidationError rebuilds the validation error a response describes.
func (e Error) ValidationError() *product.ValidationError {
	v := &product.ValidationError{Fields: make([]validate.FieldError, len(e.Fields))}
	for i, f := range e.Fields {
		v.Fields[i] = validate.FieldError{Name: f.Name, Error: errors.New(f.Message)}
	}
	return v
}

// EncodeProduct writes p as {code, name, unitPrice}.
func EncodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("code")
	e.Str(p.Code)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("unitPrice")
	e.Raw([]byte(p.UnitPrice.String()))
	e.ObjEnd()
}

// DecodeProduct reads a product object. Absent or null fields are left at
// their zero value for product.Validate to report. Fields of the wrong JSON
// type are returned as a *product.ValidationError that also lists every other
// field product.Validate rejects.
func DecodeProduct(data []byte) (product.Product, error) {
	var (
		p        product.Product
		failures []validate.FieldError
	)

	d := jx.DecodeBytes(data)
	if err := d.ObjBytes(func(d *jx.Decoder, k []byte) error {
		switch string(k) {
		case "code":
			v, ok, err := decodeStr(d)
			if err != nil {
				return errors.Wrap(err, "decode field \"code\"")
			}
			if !ok {
				failures = append(failures, validate.FieldError{Name: "code", Error: errNotString})
			}
			p.Code = v
		case "name":
			v, ok, err := decodeStr(d)
			if err != nil {
				return errors.Wrap(err, "decode field \"name\"")
			}
			if !ok {
				failures = append(failures, validate.FieldError{Name: "name", Error: errNotString})
			}
			p.Name = v
		case "unitPrice":
			v, ok, err := decodeDecimal(d)
			if err != nil {
				return errors.Wrap(err, "decode field \"unitPrice\"")
			}
			if !ok {
				failures = append(failures, validate.FieldError{Name: "unitPrice", Error: errNotNumber})
			}
			p.UnitPrice = v
		default:
			return d.Skip()
		}
		return nil
	}); err != nil {
		return product.Product{}, errors.Wrap(err, "decode product")
	}

	if len(failures) > 0 {
		return p, &product.ValidationError{Fields: mergeFieldErrors(failures, p.Validate())}
	}
	return p, nil
}

// mergeFieldErrors appends the field failures of err not already present in
// failures, so a wrong-typed field is reported once.
func mergeFieldErrors(failures []validate.FieldError, err error) []validate.FieldError {
	var vErr *product.ValidationError
	if !errors.As(err, &vErr) {
		return failures
	}
	for _, f := range vErr.Fields {
		if !slices.ContainsFunc(failures, func(got validate.FieldError) bool { return got.Name == f.Name }) {
			failures = append(failures, f)
		}
	}
	return failures
}

// DecodeCatalog reads a JSON array of products and validates each one.
func DecodeCatalog(r io.Reader) ([]product.Product, error) {
	var (
		products []product.Product
		idx      int
	)
	d := jx.Decode(r, 4096)
	if err := d.Arr(func(d *jx.Decoder) error {
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		p, err := DecodeProduct(raw)
		if err == nil {
			err = p.Validate()
		}
		if err != nil {
			return errors.Wrapf(err, "product #%d", idx)
		}
		products = append(products, p)
		idx++
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "parse catalog")
	}
	return products, nil
}

// EncodeError writes an error body.
func EncodeError(e *jx.Encoder, v Error) {
	e.ObjStart()
	e.FieldStart("code")
	e.Int(v.Code)
	e.FieldStart("message")
	e.Str(v.Message)
	if v.Reason != "" {
		e.FieldStart("reason")
		e.Str(v.Reason)
	}
	if len(v.Fields) > 0 {
		e.FieldStart("fields")
		e.ArrStart()
		for _, f := range v.Fields {
			e.ObjStart()
			e.FieldStart("name")
			e.Str(f.Name)
			e.FieldStart("message")
			e.Str(f.Message)
			e.ObjEnd()
		}
		e.ArrEnd()
	}
	e.ObjEnd()
}

// DecodeError reads an error body. Unknown fields are ignored.
func DecodeError(data []byte) (Error, error) {
	var v Error
	d := jx.DecodeBytes(data)
	if err := d.ObjBytes(func(d *jx.Decoder, k []byte) error {
		var err error
		switch string(k) {
		case "code":
			v.Code, err = d.Int()
		case "message":
			v.Message, err = d.Str()
		case "reason":
			v.Reason, err = d.Str()
		case "fields":
			err = d.Arr(func(d *jx.Decoder) error {
				var f FieldError
				if err := d.ObjBytes(func(d *jx.Decoder, k []byte) error {
					var err error
					switch string(k) {
					case "name":
						f.Name, err = d.Str()
					case "message":
						f.Message, err = d.Str()
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				v.Fields = append(v.Fields, f)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return Error{}, errors.Wrap(err, "decode error")
	}
	return v, nil
}

// decodeStr reads a string value. ok is false when the value is present but
// not a string; null decodes as an empty string.
func decodeStr(d *jx.Decoder) (v string, ok bool, err error) {
	switch d.Next() {
	case jx.String:
		v, err = d.Str()
		return v, true, err
	case jx.Null:
		return "", true, d.Null()
	default:
		return "", false, d.Skip()
	}
}

// decodeDecimal reads a JSON number exactly. Quoted numbers are rejected.
func decodeDecimal(d *jx.Decoder) (v decimal.Decimal, ok bool, err error) {
	switch d.Next() {
	case jx.Number:
		num, numErr := d.Num()
		if numErr != nil {
			return decimal.Zero, false, numErr
		}
		parsed, parseErr := decimal.NewFromString(num.String())
		if parseErr != nil {
			return decimal.Zero, false, nil
		}
		return parsed, true, nil
	case jx.Null:
		return decimal.Zero, true, d.Null()
	default:
		return decimal.Zero, false, d.Skip()
	}
}
