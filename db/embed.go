// Package db provides the embedded catalog schema and demo seed data.
package db

import _ "embed"

// Schema contains the DDL statements for all application tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// DemoCatalog is the JSON catalog loaded by seed-db when no file is given.
//
//go:embed seed/products.json
var DemoCatalog []byte
