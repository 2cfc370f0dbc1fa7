package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/scan-and-go/db"
	"github.com/xenking/scan-and-go/internal/domain/product"
	"github.com/xenking/scan-and-go/internal/wire"
)

// loadCatalogs reads every file concurrently and merges them in argument
// order. With no files the embedded demo catalog is used. A code seen twice
// keeps its first record.
func loadCatalogs(ctx context.Context, paths []string) ([]product.Product, error) {
	if len(paths) == 0 {
		slog.Info("using embedded demo catalog")
		return wire.DecodeCatalog(bytes.NewReader(db.DemoCatalog))
	}

	results := make([][]product.Product, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			products, err := readCatalogFile(path)
			if err != nil {
				return errors.Wrapf(err, "read %s", path)
			}
			slog.Info("read catalog file", slog.String("path", path), slog.Int("products", len(products)))
			results[i] = products
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var (
		merged []product.Product
		seen   = make(map[string]struct{})
	)
	for _, products := range results {
		for _, p := range products {
			if _, dup := seen[p.Code]; dup {
				slog.Warn("duplicate code in catalog files, keeping first", slog.String("code", p.Code))
				continue
			}
			seen[p.Code] = struct{}{}
			merged = append(merged, p)
		}
	}
	return merged, nil
}

func readCatalogFile(path string) ([]product.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip")
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}
	return wire.DecodeCatalog(r)
}
