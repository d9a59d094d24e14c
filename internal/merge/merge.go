// Package merge implements the two-cursor co-walk that classifies rows
// between a source and destination stream as matched, missing, or extra.
package merge

import (
	"context"
	"fmt"

	"github.com/dbreconciler/tablesync/internal/value"
)

// EventKind classifies one merge-walker event.
type EventKind int

const (
	Match EventKind = iota
	MissingInDest
	ExtraInDest
)

// Event is one classification emitted by Walk.
type Event struct {
	Kind   EventKind
	Source value.Row // set for Match and MissingInDest
	Dest   value.Row // set for Match and ExtraInDest
}

// RowSource is a pull-based, already primary-key-ordered stream of rows.
// Next returns ok=false once exhausted. A reader.Reader is adapted to this
// interface by buffering its emitted rows behind a channel.
type RowSource interface {
	Next() (row value.Row, ok bool, err error)
}

// KeyFunc extracts the comparable primary-key value.Value from a row for a
// given logical primary-key column.
func KeyFunc(pk string) func(value.Row) value.Value {
	return func(r value.Row) value.Value { return r.Get(pk) }
}

// OrderingError is returned when a reader yields rows that are not
// non-decreasing by primary key.
type OrderingError struct {
	Prev, Curr value.Value
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("merge-walker: non-monotonic primary key: %s then %s", e.Prev, e.Curr)
}

// TypeMismatchError is returned when source and destination keys at the
// same co-walk position have incompatible underlying types.
type TypeMismatchError struct {
	Source, Dest value.Value
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("merge-walker: incompatible key types at same position: source=%s dest=%s", e.Source, e.Dest)
}

// Walk co-iterates src and dest, ordered by key(row), and invokes emit once
// per classified event in ascending key order. It returns on the first
// error from src, dest, emit, or ctx, or once both streams are exhausted.
func Walk(ctx context.Context, src, dest RowSource, key func(value.Row) value.Value, emit func(Event) error) error {
	sRow, sOK, err := src.Next()
	if err != nil {
		return err
	}
	dRow, dOK, err := dest.Next()
	if err != nil {
		return err
	}

	var lastSrcKey, lastDestKey *value.Value
	haveLastSrc, haveLastDest := false, false

	for sOK || dOK {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch {
		case sOK && dOK:
			sk, dk := key(sRow), key(dRow)
			cmp, err := compareKeys(sk, dk)
			if err != nil {
				return err
			}
			switch {
			case cmp == 0:
				if err := emit(Event{Kind: Match, Source: sRow, Dest: dRow}); err != nil {
					return err
				}
				if err := checkOrder(&lastSrcKey, &haveLastSrc, sk); err != nil {
					return err
				}
				if err := checkOrder(&lastDestKey, &haveLastDest, dk); err != nil {
					return err
				}
				sRow, sOK, err = src.Next()
				if err != nil {
					return err
				}
				dRow, dOK, err = dest.Next()
				if err != nil {
					return err
				}
			case cmp < 0:
				if err := emit(Event{Kind: MissingInDest, Source: sRow}); err != nil {
					return err
				}
				if err := checkOrder(&lastSrcKey, &haveLastSrc, sk); err != nil {
					return err
				}
				sRow, sOK, err = src.Next()
				if err != nil {
					return err
				}
			default:
				if err := emit(Event{Kind: ExtraInDest, Dest: dRow}); err != nil {
					return err
				}
				if err := checkOrder(&lastDestKey, &haveLastDest, dk); err != nil {
					return err
				}
				dRow, dOK, err = dest.Next()
				if err != nil {
					return err
				}
			}
		case sOK:
			sk := key(sRow)
			if err := emit(Event{Kind: MissingInDest, Source: sRow}); err != nil {
				return err
			}
			if err := checkOrder(&lastSrcKey, &haveLastSrc, sk); err != nil {
				return err
			}
			sRow, sOK, err = src.Next()
			if err != nil {
				return err
			}
		default: // dOK only
			dk := key(dRow)
			if err := emit(Event{Kind: ExtraInDest, Dest: dRow}); err != nil {
				return err
			}
			if err := checkOrder(&lastDestKey, &haveLastDest, dk); err != nil {
				return err
			}
			dRow, dOK, err = dest.Next()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func checkOrder(last **value.Value, have *bool, curr value.Value) error {
	if *have {
		cmp, err := compareKeys(**last, curr)
		if err != nil {
			return err
		}
		if cmp > 0 {
			return &OrderingError{Prev: **last, Curr: curr}
		}
	}
	v := curr
	*last = &v
	*have = true
	return nil
}

// compareKeys orders two primary-key values. Two Int keys compare
// numerically; an Int against any other kind is a TypeMismatchError; every
// other pair of kinds compares by its String rendering.
func compareKeys(a, b value.Value) (int, error) {
	if ai, aok := a.AsInt(); aok {
		if bi, bok := b.AsInt(); bok {
			switch {
			case ai < bi:
				return -1, nil
			case ai > bi:
				return 1, nil
			default:
				return 0, nil
			}
		}
		return 0, &TypeMismatchError{Source: a, Dest: b}
	}
	if _, bok := b.AsInt(); bok {
		return 0, &TypeMismatchError{Source: a, Dest: b}
	}

	as, bs := a.String(), b.String()
	switch {
	case as < bs:
		return -1, nil
	case as > bs:
		return 1, nil
	default:
		return 0, nil
	}
}
