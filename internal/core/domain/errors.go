package domain

import (
	"errors"
	"fmt"
)

var (
	ErrArgumentType        = errors.New("argument type error")
	ErrUnsupportedGeometry = errors.New("unsupported geometry")
	ErrGeometryEngine      = errors.New("geometry engine error")
	ErrEmptyResult         = errors.New("empty result")
	ErrSourceData          = errors.New("source data error")
	ErrBoundaryNotFound    = errors.New("boundary not found")
	ErrSchemaMismatch      = errors.New("schema mismatch")
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrTemporary           = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
