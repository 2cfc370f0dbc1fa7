package product

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/ogen-go/ogen/validate"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/xenking/scan-and-go/internal/domain/product"

// Outcome labels recorded on the catalog counters.
const (
	OutcomeHit      = "hit"
	OutcomeMiss     = "miss"
	OutcomeCreated  = "created"
	OutcomeConflict = "conflict"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

// Service implements the two catalog verbs: fetch by code and create if
// absent.
type Service struct {
	repo    Repository
	tracer  trace.Tracer
	lookups metric.Int64Counter
	creates metric.Int64Counter
}

// NewService creates a catalog Service over the given repository.
func NewService(repo Repository, tp trace.TracerProvider, mp metric.MeterProvider) (*Service, error) {
	meter := mp.Meter(instrumentationName)

	lookups, err := meter.Int64Counter("catalog.lookups",
		metric.WithDescription("Catalog lookups by scan code, labelled by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "lookups counter")
	}
	creates, err := meter.Int64Counter("catalog.creates",
		metric.WithDescription("Catalog creation attempts, labelled by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "creates counter")
	}

	return &Service{
		repo:    repo,
		tracer:  tp.Tracer(instrumentationName),
		lookups: lookups,
		creates: creates,
	}, nil
}

// Fetch returns the product registered under code. A miss is reported as
// ErrNotFound.
func (s *Service) Fetch(ctx context.Context, code string) (*Product, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.Fetch",
		trace.WithAttributes(attribute.String("product.code", code)),
	)
	defer span.End()

	if strings.TrimSpace(code) == "" {
		s.count(ctx, s.lookups, OutcomeInvalid)
		return nil, &ValidationError{Fields: []validate.FieldError{
			{Name: "code", Error: validate.ErrFieldRequired},
		}}
	}

	p, err := s.repo.GetByCode(ctx, code)
	switch {
	case err == nil:
		s.count(ctx, s.lookups, OutcomeHit)
		return p, nil
	case errors.Is(err, ErrNotFound):
		s.count(ctx, s.lookups, OutcomeMiss)
		return nil, ErrNotFound
	default:
		s.count(ctx, s.lookups, OutcomeError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "get product")
		return nil, errors.Wrap(err, "get product")
	}
}

// Create validates p and stores it. Uniqueness of the code is enforced by the
// repository write, so two concurrent creations of the same code cannot both
// succeed.
func (s *Service) Create(ctx context.Context, p Product) (*Product, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.Create",
		trace.WithAttributes(attribute.String("product.code", p.Code)),
	)
	defer span.End()

	if err := p.Validate(); err != nil {
		s.count(ctx, s.creates, OutcomeInvalid)
		return nil, err
	}

	created, err := s.repo.Create(ctx, p)
	switch {
	case err == nil:
		s.count(ctx, s.creates, OutcomeCreated)
		return created, nil
	case errors.Is(err, ErrAlreadyExists):
		s.count(ctx, s.creates, OutcomeConflict)
		return nil, ErrAlreadyExists
	default:
		s.count(ctx, s.creates, OutcomeError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "create product")
		return nil, errors.Wrap(err, "create product")
	}
}

func (s *Service) count(ctx context.Context, c metric.Int64Counter, outcome string) {
	c.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
