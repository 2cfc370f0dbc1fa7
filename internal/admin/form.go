// Package admin implements the product registration form of the kiosk.
package admin

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/ogen-go/ogen/validate"
	"github.com/shopspring/decimal"

	"github.com/xenking/scan-and-go/internal/domain/product"
)

// Status is the form state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSaving  Status = "saving"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// DefaultSuccessDelay is how long a successful save is shown before the form
// returns to idle.
const DefaultSuccessDelay = 2 * time.Second

var (
	// ErrBusy is returned when the form is edited or submitted while saving.
	ErrBusy = errors.New("save in progress")
	// ErrIncomplete is returned by Submit when a field is missing.
	ErrIncomplete = errors.New("code, name and price are required")

	errPriceNotNumber = errors.New("must be a number")
)

// Catalog registers products.
type Catalog interface {
	Create(ctx context.Context, p product.Product) (*product.Product, error)
}

// State is a serializable snapshot of the form.
type State struct {
	Status Status `json:"status"`
	Code   string `json:"code"`
	Name   string `json:"name"`
	Price  string `json:"price"`
	Error  string `json:"error,omitempty"`
	// Saved is the last registered product while in success.
	Saved *product.Product `json:"-"`
}

// AfterFunc schedules f after d and returns a function that cancels it.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

// Option configures a Form.
type Option func(*Form)

// WithSuccessDelay overrides DefaultSuccessDelay.
func WithSuccessDelay(d time.Duration) Option {
	return func(f *Form) { f.delay = d }
}

// WithAfterFunc replaces the timer that ends the success display.
func WithAfterFunc(fn AfterFunc) Option {
	return func(f *Form) { f.after = fn }
}

// Form holds the fields of a product being registered.
type Form struct {
	catalog Catalog
	delay   time.Duration
	after   AfterFunc

	mu          sync.Mutex
	status      Status
	code        string
	name        string
	price       string
	err         error
	saved       *product.Product
	cancelIdle  func() bool
	successRuns uint64
}

// NewForm returns an idle, empty form.
func NewForm(catalog Catalog, opts ...Option) *Form {
	f := &Form{
		catalog: catalog,
		delay:   DefaultSuccessDelay,
		after: func(d time.Duration, fn func()) func() bool {
			return time.AfterFunc(d, fn).Stop
		},
		status: StatusIdle,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SetCode sets the scan code, typed or scanned.
func (f *Form) SetCode(v string) error { return f.edit(func() { f.code = v }) }

// SetName sets the product name.
func (f *Form) SetName(v string) error { return f.edit(func() { f.name = v }) }

// SetPrice sets the price text as typed.
func (f *Form) SetPrice(v string) error { return f.edit(func() { f.price = v }) }

// edit applies fn. Editing clears a shown error or success and returns the
// form to idle.
func (f *Form) edit(fn func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.status == StatusSaving {
		return ErrBusy
	}
	fn()
	f.toIdle()
	return nil
}

func (f *Form) toIdle() {
	if f.cancelIdle != nil {
		f.cancelIdle()
		f.cancelIdle = nil
	}
	f.successRuns++
	f.status = StatusIdle
	f.err = nil
	f.saved = nil
}

// CanSubmit reports whether every field is filled, the price is a non-zero
// number, and no save is running.
func (f *Form) CanSubmit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.status == StatusSaving || strings.TrimSpace(f.code) == "" || strings.TrimSpace(f.name) == "" {
		return false
	}
	price, err := parsePrice(f.price)
	return err == nil && !price.IsZero()
}

// Submit registers the product described by the form. On success the fields
// are cleared and the form returns to idle after the success delay. On
// failure the form moves to error and keeps its fields.
func (f *Form) Submit(ctx context.Context) (*product.Product, error) {
	f.mu.Lock()
	if f.status == StatusSaving {
		f.mu.Unlock()
		return nil, ErrBusy
	}
	p, err := f.product()
	if err != nil {
		f.fail(err)
		f.mu.Unlock()
		return nil, err
	}
	f.status = StatusSaving
	f.err = nil
	f.mu.Unlock()

	created, err := f.catalog.Create(ctx, p)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.fail(err)
		return nil, err
	}

	f.code, f.name, f.price = "", "", ""
	f.status = StatusSuccess
	f.saved = created
	f.successRuns++
	run := f.successRuns
	f.cancelIdle = f.after(f.delay, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.status == StatusSuccess && f.successRuns == run {
			f.cancelIdle = nil
			f.toIdle()
		}
	})
	return created, nil
}

func (f *Form) fail(err error) {
	f.status = StatusError
	f.err = err
}

// product checks the fields client side. The catalog repeats every check.
func (f *Form) product() (product.Product, error) {
	if strings.TrimSpace(f.code) == "" || strings.TrimSpace(f.name) == "" || strings.TrimSpace(f.price) == "" {
		return product.Product{}, ErrIncomplete
	}
	price, err := parsePrice(f.price)
	if err != nil {
		return product.Product{}, &product.ValidationError{Fields: []validate.FieldError{
			{Name: "unitPrice", Error: errPriceNotNumber},
		}}
	}
	p := product.Product{
		Code:      strings.TrimSpace(f.code),
		Name:      strings.TrimSpace(f.name),
		UnitPrice: price,
	}
	if err := p.Validate(); err != nil {
		return product.Product{}, err
	}
	return p, nil
}

func parsePrice(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(s))
}

// State returns a snapshot of the form.
func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := State{
		Status: f.status,
		Code:   f.code,
		Name:   f.name,
		Price:  f.price,
		Saved:  f.saved,
	}
	if f.err != nil {
		s.Error = Describe(f.err)
	}
	return s
}

// Reset clears the form, e.g. on mode switch. A running save is not
// interrupted.
func (f *Form) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.status == StatusSaving {
		return
	}
	f.code, f.name, f.price = "", "", ""
	f.toIdle()
}

// Describe turns a submission error into an operator-facing message.
func Describe(err error) string {
	var vErr *product.ValidationError
	switch {
	case errors.Is(err, product.ErrAlreadyExists):
		return "A product with this code already exists."
	case errors.Is(err, ErrIncomplete):
		return "Code, name and price are required."
	case errors.As(err, &vErr):
		return "Check the form: " + vErr.Error()
	default:
		return "Could not save the product. Try again."
	}
}
