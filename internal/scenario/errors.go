package scenario

import (
	"errors"
	"fmt"
)

// GeometryJoinError is returned when a unit in the scenario values does not
// match exactly one geography feature.
type GeometryJoinError struct {
	Unit    string
	Matches int
}

func (e *GeometryJoinError) Error() string {
	if e.Matches == 0 {
		return fmt.Sprintf("scenario: unit %s has no geometry", e.Unit)
	}
	return fmt.Sprintf("scenario: unit %s matches %d geometries, expected one", e.Unit, e.Matches)
}

// IsGeometryJoinError reports whether err (or any error in its chain) is a
// GeometryJoinError.
func IsGeometryJoinError(err error) bool {
	var e *GeometryJoinError
	return errors.As(err, &e)
}
