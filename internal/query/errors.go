package query

import (
	"errors"
	"fmt"
	"strings"
)

// UnknownRegionError is returned when no region has exactly the requested
// name. Suggestions holds case-insensitive near matches.
type UnknownRegionError struct {
	Name        string
	Suggestions []string
}

func (e *UnknownRegionError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("query: unknown region %q", e.Name)
	}
	return fmt.Sprintf("query: unknown region %q (did you mean %s?)", e.Name, strings.Join(quoteAll(e.Suggestions), ", "))
}

// IsUnknownRegion reports whether err is an UnknownRegionError.
func IsUnknownRegion(err error) bool {
	var e *UnknownRegionError
	return errors.As(err, &e)
}

// InvalidGeometryInputError is returned for query points that cannot be used:
// unparsable GeoJSON, non-point features, or out-of-range coordinates.
type InvalidGeometryInputError struct {
	Err error
}

func (e *InvalidGeometryInputError) Error() string {
	return "query: invalid geometry input: " + e.Err.Error()
}

func (e *InvalidGeometryInputError) Unwrap() error { return e.Err }

// IsInvalidGeometryInput reports whether err is an InvalidGeometryInputError.
func IsInvalidGeometryInput(err error) bool {
	var e *InvalidGeometryInputError
	return errors.As(err, &e)
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}
