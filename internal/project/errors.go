package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// Domain errors for the project sync engine.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, project.ErrNotFound) {
//	    // project missing or not owned by the caller
//	}
var (
	// ErrNotFound is returned when a project does not exist or belongs to a
	// different user. The two cases are deliberately indistinguishable so
	// ownership probing leaks nothing.
	ErrNotFound = errors.New("project: not found")

	// ErrValidation is returned when a batch carries malformed ids or fields.
	// Raised before any row is written.
	ErrValidation = errors.New("project: validation failed")

	// ErrReferential is returned when an operation references a room or group
	// outside the target project. Raised before any row is written.
	ErrReferential = errors.New("project: cross-project reference")

	// ErrGroupUnresolved is returned when a device carries neither a group id
	// nor a resolvable room hint.
	ErrGroupUnresolved = errors.New("project: device group unresolved")

	// ErrTransientStore is returned for timeouts and connection failures.
	// The whole batch is safe to retry unchanged.
	ErrTransientStore = errors.New("project: transient store failure")

	// ErrConstraint is returned when the store raises a uniqueness or
	// foreign-key violation that the engine did not anticipate.
	ErrConstraint = errors.New("project: constraint violation")
)

// classifyStoreError maps low-level database failures onto the domain
// taxonomy so callers can distinguish retryable from permanent errors.
func classifyStoreError(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s: %w", ErrTransientStore, op, err)
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr:
			return fmt.Errorf("%w: %s: %w", ErrTransientStore, op, err)
		case sqlite3.ErrConstraint:
			return fmt.Errorf("%w: %s: %w", ErrConstraint, op, err)
		}
	}

	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("%w: %s: %w", ErrTransientStore, op, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
