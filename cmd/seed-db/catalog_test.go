package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	if strings.HasSuffix(name, ".gz") {
		zw := pgzip.NewWriter(f)
		_, err = zw.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		return path
	}
	_, err = f.WriteString(content)
	require.NoError(t, err)
	return path
}

func TestLoadCatalogs_EmbeddedDemo(t *testing.T) {
	products, err := loadCatalogs(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, products, 8)

	assert.Equal(t, "123", products[0].Code)
	assert.Equal(t, "Organic Bananas", products[0].Name)
	assert.True(t, decimal.RequireFromString("1.99").Equal(products[0].UnitPrice))
}

func TestLoadCatalogs_MergesFilesInOrder(t *testing.T) {
	plain := writeFile(t, "a.json", `[
		{"code":"1","name":"Apple","unitPrice":0.5},
		{"code":"2","name":"Pear","unitPrice":0.6}
	]`)
	gz := writeFile(t, "b.json.gz", `[
		{"code":"2","name":"Other pear","unitPrice":9},
		{"code":"3","name":"Plum","unitPrice":0.7}
	]`)

	products, err := loadCatalogs(context.Background(), []string{plain, gz})
	require.NoError(t, err)

	codes := make([]string, len(products))
	for i, p := range products {
		codes[i] = p.Code
	}
	assert.Equal(t, []string{"1", "2", "3"}, codes)
	assert.Equal(t, "Pear", products[1].Name)
}

func TestLoadCatalogs_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{name: "invalid product", file: "bad.json", content: `[{"code":"1","name":"","unitPrice":1}]`, wantErr: "product #0"},
		{name: "quoted price", file: "quoted.json", content: `[{"code":"1","name":"A","unitPrice":"1"}]`, wantErr: "unitPrice"},
		{name: "not an array", file: "obj.json", content: `{"code":"1"}`, wantErr: "parse catalog"},
		{name: "broken gzip", file: "broken.gz", wantErr: "gzip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var path string
			if tt.content == "" {
				path = filepath.Join(t.TempDir(), tt.file)
				require.NoError(t, os.WriteFile(path, []byte("not gzip"), 0o600))
			} else {
				path = writeFile(t, tt.file, tt.content)
			}

			_, err := loadCatalogs(context.Background(), []string{path})
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadCatalogs_MissingFile(t *testing.T) {
	_, err := loadCatalogs(context.Background(), []string{filepath.Join(t.TempDir(), "nope.json")})

	require.ErrorIs(t, err, os.ErrNotExist)
}
