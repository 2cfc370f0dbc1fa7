package product

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/ogen-go/ogen/validate"
	"github.com/shopspring/decimal"
)

const (
	// MaxNameLength is the maximum product name length in characters.
	MaxNameLength = 60
	// MaxPriceDecimals bounds the fractional digits of a unit price.
	MaxPriceDecimals = 4
)

// MaxUnitPrice is the exclusive upper bound of a unit price.
var MaxUnitPrice = decimal.New(1, 9)

var (
	// ErrNotFound is returned when no product matches the requested scan code.
	ErrNotFound = errors.New("product not found")
	// ErrAlreadyExists is returned when a product with the same scan code is
	// already registered.
	ErrAlreadyExists = errors.New("product with this scan code already exists")
	// ErrNonPositivePrice reports a zero or negative unit price.
	ErrNonPositivePrice = errors.New("must be greater than 0")
	// ErrPriceTooPrecise reports a price with more than MaxPriceDecimals
	// fractional digits.
	ErrPriceTooPrecise = errors.New("must have at most 4 decimal places")
	// ErrPriceTooLarge reports a price at or above MaxUnitPrice.
	ErrPriceTooLarge = errors.New("must be less than 1000000000")
)

// Product is a catalog entry keyed by its scan code.
type Product struct {
	Code      string
	Name      string
	UnitPrice decimal.Decimal
}

// Repository stores catalog records. Create must fail atomically with
// ErrAlreadyExists when the code is taken.
type Repository interface {
	GetByCode(ctx context.Context, code string) (*Product, error)
	Create(ctx context.Context, p Product) (*Product, error)
}

// ValidationError lists the fields of a product that failed validation.
type ValidationError struct {
	Fields []validate.FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Name + ": " + f.Error.Error()
	}
	return "invalid product: " + strings.Join(parts, "; ")
}

// Has reports whether the named field failed validation.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Name == field {
			return true
		}
	}
	return false
}

// Validate checks that every field is present and within bounds. A zero
// price counts as missing.
func (p Product) Validate() error {
	var failures []validate.FieldError

	if strings.TrimSpace(p.Code) == "" {
		failures = append(failures, validate.FieldError{Name: "code", Error: validate.ErrFieldRequired})
	}

	if p.Name == "" {
		failures = append(failures, validate.FieldError{Name: "name", Error: validate.ErrFieldRequired})
	} else if err := (validate.String{
		MinLength:    1,
		MinLengthSet: true,
		MaxLength:    MaxNameLength,
		MaxLengthSet: true,
	}).Validate(p.Name); err != nil {
		failures = append(failures, validate.FieldError{Name: "name", Error: err})
	}

	switch {
	case p.UnitPrice.IsZero():
		failures = append(failures, validate.FieldError{Name: "unitPrice", Error: validate.ErrFieldRequired})
	case p.UnitPrice.IsNegative():
		failures = append(failures, validate.FieldError{Name: "unitPrice", Error: ErrNonPositivePrice})
	default:
		if err := checkPriceBounds(p.UnitPrice); err != nil {
			failures = append(failures, validate.FieldError{Name: "unitPrice", Error: err})
		}
	}

	if len(failures) > 0 {
		return &ValidationError{Fields: failures}
	}
	return nil
}

// checkPriceBounds rejects prices outside money range. The exponent is checked
// before any comparison, since comparing rescales both operands.
func checkPriceBounds(v decimal.Decimal) error {
	exp := v.Exponent()
	switch {
	case exp > 9:
		return ErrPriceTooLarge
	case exp < -8*MaxPriceDecimals:
		return ErrPriceTooPrecise
	case exp < -MaxPriceDecimals && !v.Truncate(MaxPriceDecimals).Equal(v):
		return ErrPriceTooPrecise
	case !v.LessThan(MaxUnitPrice):
		return ErrPriceTooLarge
	}
	return nil
}
