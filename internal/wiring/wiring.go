// Package wiring turns a loaded config.Config into open connections:
// resolving a side's dialect and connection options, opening it, prompting
// for a password, and resolving the comparison worker count. The two CLI
// binaries (cmd/reconcile, cmd/fix-mismatches) share it and build readers,
// sinks and repair executors themselves. It is kept out of internal/config
// and internal/dialect so neither has to know about the other.
package wiring

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/dbreconciler/tablesync/internal/config"
	"github.com/dbreconciler/tablesync/internal/dialect"
	"github.com/dbreconciler/tablesync/internal/errs"
)

// ConnOptionsFor resolves t's declared environment variables into a
// dialect.ConnOptions, defaulting port to defaultPort when unset or
// unparsable.
func ConnOptionsFor(t config.TableConfig, defaultPort int) dialect.ConnOptions {
	port := defaultPort
	if p, ok := t.Connection["port"]; ok {
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}
	return dialect.ConnOptions{
		Host:     t.Connection["host"],
		Port:     port,
		Database: t.Connection["database"],
		Schema:   t.Schema,
		User:     t.Connection["user"],
		Password: t.Connection["password"],
	}
}

// DefaultPort returns the conventional port for a dialect name, used when a
// config omits an explicit "port" entry under env.
func DefaultPort(dialectName string) int {
	switch dialectName {
	case "oracle":
		return 1521
	case "sqlserver":
		return 1433
	default:
		return 0
	}
}

// OpenSide resolves t's dialect and opens a connection for it, using the
// password resolved from its configured env var.
func OpenSide(t config.TableConfig) (*sql.DB, dialect.Dialect, error) {
	return OpenSideWithPassword(t, "")
}

// OpenSideWithPassword is OpenSide, but overrides the resolved connection's
// password when passwordOverride is non-empty — used by --*-password-prompt
// flags, which must win over whatever the configured env var resolved to.
func OpenSideWithPassword(t config.TableConfig, passwordOverride string) (*sql.DB, dialect.Dialect, error) {
	dial, ok := dialect.ForName(strings.ToLower(t.Type))
	if !ok {
		return nil, nil, errs.New(errs.KindConfig, fmt.Sprintf("unknown dialect type %q", t.Type))
	}
	opts := ConnOptionsFor(t, DefaultPort(dial.Name()))
	if passwordOverride != "" {
		opts.Password = passwordOverride
	}
	db, err := dial.Open(opts)
	if err != nil {
		return nil, nil, errs.Wrap(errs.KindConnect, fmt.Errorf("opening %s connection: %w", dial.Name(), err))
	}
	return db, dial, nil
}

// PromptPassword prompts label on stdout and reads a password from the
// terminal without echoing it, for --*-password-prompt flags.
func PromptPassword(label string) (string, error) {
	fmt.Printf("%s: ", label)
	pass, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", errs.Wrap(errs.KindConfig, fmt.Errorf("reading password: %w", err))
	}
	return string(pass), nil
}

// ResolveWorkers turns the comparison.workers config value ("auto", an
// integer, or empty) into a concrete worker count.
func ResolveWorkers(workers string, numCPU int) int {
	w := strings.ToLower(strings.TrimSpace(workers))
	if w == "" || w == "auto" {
		if numCPU < 1 {
			return 1
		}
		return numCPU
	}
	n, err := strconv.Atoi(w)
	if err != nil || n < 1 {
		return 1
	}
	return n
}
