package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
source:
  type: oracle
  schema: SRC
  table: ORDERS
  columns:
    id: ORDER_ID
    AMOUNT: ORDER_AMOUNT
  env:
    dsn: SRC_DSN
destination:
  type: sqlserver
  schema: dbo
  table: orders
  columns: [id, amount]
  env:
    dsn: DEST_DSN
primary_key: ID
partitioning:
  year_column: yr
  month_column: mo
  scope:
    - year: "2021"
      month: 1
      weeks: ["1", "2"]
output:
  schema: dbo
  table: reconcile_discrepancies
comparison:
  use_row_hash: true
updates:
  dry_run: true
`

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadResolvesColumnsAndEnv(t *testing.T) {
	t.Setenv("SRC_DSN", "oracle://src")
	t.Setenv("DEST_DSN", "sqlserver://dest")

	path := writeTempConfig(t, sampleYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Source.Columns["amount"] != "ORDER_AMOUNT" {
		t.Fatalf("expected lowercased logical key, got %+v", cfg.Source.Columns)
	}
	if cfg.Destination.Columns["amount"] != "amount" {
		t.Fatalf("expected list-sugar identity mapping, got %+v", cfg.Destination.Columns)
	}
	if cfg.Source.Connection["dsn"] != "oracle://src" {
		t.Fatalf("expected resolved env var, got %+v", cfg.Source.Connection)
	}
	if cfg.PrimaryKey != "id" {
		t.Fatalf("expected lowercased primary key, got %q", cfg.PrimaryKey)
	}
	if len(cfg.Partitioning.Scope) != 1 || len(cfg.Partitioning.Scope[0].Weeks) != 2 {
		t.Fatalf("unexpected partitioning scope: %+v", cfg.Partitioning.Scope)
	}
}

func TestLoadFailsOnMissingEnvVar(t *testing.T) {
	os.Unsetenv("SRC_DSN")
	os.Unsetenv("DEST_DSN")

	path := writeTempConfig(t, sampleYAML)
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected a ConfigError for the unset env var")
	}
}

func TestLoadFailsOnMissingDialect(t *testing.T) {
	path := writeTempConfig(t, `
source:
  schema: SRC
  table: ORDERS
destination:
  type: sqlserver
  schema: dbo
  table: orders
primary_key: id
`)
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected a ConfigError for the missing dialect type")
	}
}
