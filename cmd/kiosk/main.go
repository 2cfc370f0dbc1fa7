// Command kiosk runs a self-checkout session in the terminal. Codes are typed
// with the scan command or read from a keyboard-wedge scanner device.
package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/scan-and-go/db"
	appkg "github.com/xenking/scan-and-go/internal/app"
	"github.com/xenking/scan-and-go/internal/client"
	"github.com/xenking/scan-and-go/internal/domain/product"
	"github.com/xenking/scan-and-go/internal/kiosk"
	"github.com/xenking/scan-and-go/internal/scan"
	"github.com/xenking/scan-and-go/internal/storage/memory"
	"github.com/xenking/scan-and-go/internal/wire"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		if err := appkg.LoadDotenv(".env"); err != nil {
			return err
		}
		cfg, err := loadConfig(os.Args[1:], "kiosk.yaml", "/etc/scango/kiosk.yaml")
		if err != nil {
			return err
		}
		return run(ctx, lg, m, cfg)
	})
}

func run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *config) error {
	catalog, err := newCatalog(cfg, m)
	if err != nil {
		return err
	}

	src, feed, err := openScanner(cfg.Scanner)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	r := &repl{feed: feed, out: os.Stdout}
	r.kiosk = kiosk.New(catalog, scan.NewLineDecoder(src), lg.Named("kiosk"),
		kiosk.WithConfig(kiosk.Config{
			Scan:         scan.Config{FPS: cfg.FPS},
			MissCooldown: cfg.MissCooldown,
			PaymentDelay: cfg.PaymentDelay,
			SuccessDelay: cfg.SuccessDelay,
		}),
		kiosk.WithNotify(r.notify),
	)

	lg.Info("Kiosk ready", zap.Bool("memory", cfg.Memory), zap.String("api_url", cfg.APIURL))
	return r.run(ctx, os.Stdin)
}

// newCatalog returns the HTTP client, or an in-process catalog holding the
// demo products when cfg.Memory is set.
func newCatalog(cfg *config, m *app.Telemetry) (kiosk.Catalog, error) {
	if cfg.Memory {
		products, err := wire.DecodeCatalog(bytes.NewReader(db.DemoCatalog))
		if err != nil {
			return nil, errors.Wrap(err, "demo catalog")
		}
		svc, err := product.NewService(memory.NewProductRepository(products...), m.TracerProvider(), m.MeterProvider())
		if err != nil {
			return nil, err
		}
		return svc, nil
	}

	opts := []client.Option{
		client.WithHTTPClient(&http.Client{
			Timeout: 10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithTracerProvider(m.TracerProvider()),
				otelhttp.WithMeterProvider(m.MeterProvider()),
			),
		}),
	}
	if cfg.APIKey != "" {
		opts = append(opts, client.WithAPIKey(cfg.APIKey))
	}
	c, err := client.New(cfg.APIURL, opts...)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// openScanner opens the scanner device. Without one, codes are fed through a
// pipe by the scan command and feed is its write end.
func openScanner(path string) (src io.ReadCloser, feed io.Writer, err error) {
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open scanner")
		}
		return f, nil, nil
	}
	pr, pw := io.Pipe()
	return pr, pw, nil
}
