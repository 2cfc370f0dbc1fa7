// Package client is the kiosk's HTTP client for the catalog API.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/xenking/scan-and-go/internal/domain/product"
	"github.com/xenking/scan-and-go/internal/wire"
)

const (
	apiKeyHeader = "api_key"
	maxBodyBytes = 1 << 20
)

// TransportError reports a catalog call that failed for reasons other than
// the product itself: the network, the server, or an unexpected response.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default instrumented client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithAPIKey sends key in the api_key header on product creation.
func WithAPIKey(key string) Option {
	return func(cl *Client) { cl.apiKey = key }
}

// Client calls GET and POST /products.
type Client struct {
	base   *url.URL
	http   *http.Client
	apiKey string
}

// New returns a client for the API at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("unsupported base url scheme %q", u.Scheme)
	}

	c := &Client{
		base: u,
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Fetch looks up a product by scan code. A miss is product.ErrNotFound.
func (c *Client) Fetch(ctx context.Context, code string) (*product.Product, error) {
	u := c.base.JoinPath("products")
	u.RawQuery = url.Values{"code": {code}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &TransportError{Op: "fetch product", Err: err}
	}
	return c.do(req, "fetch product", http.StatusOK)
}

// Create registers p. A taken code is product.ErrAlreadyExists and rejected
// fields are a *product.ValidationError.
func (c *Client) Create(ctx context.Context, p product.Product) (*product.Product, error) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	wire.EncodeProduct(e, p)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.JoinPath("products").String(), strings.NewReader(string(e.Bytes())))
	if err != nil {
		return nil, &TransportError{Op: "create product", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
	return c.do(req, "create product", http.StatusCreated)
}

func (c *Client) do(req *http.Request, op string, want int) (*product.Product, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Op: op, Status: resp.StatusCode, Err: errors.Wrap(err, "read body")}
	}

	if resp.StatusCode == want {
		p, err := wire.DecodeProduct(body)
		if err != nil {
			return nil, &TransportError{Op: op, Status: resp.StatusCode, Err: err}
		}
		return &p, nil
	}
	return nil, decodeFailure(op, resp.StatusCode, body)
}

func decodeFailure(op string, status int, body []byte) error {
	apiErr, err := wire.DecodeError(body)
	if err != nil {
		return &TransportError{Op: op, Status: status, Err: errors.Wrap(err, "unexpected response")}
	}

	switch {
	case status == http.StatusNotFound:
		return product.ErrNotFound
	case status == http.StatusBadRequest && apiErr.Reason == "conflict":
		return product.ErrAlreadyExists
	case status == http.StatusBadRequest && len(apiErr.Fields) > 0:
		return apiErr.ValidationError()
	default:
		return &TransportError{Op: op, Status: status, Err: errors.New(apiErr.Message)}
	}
}
