package layers

import (
	"errors"
	"fmt"
)

// LayerLoadError is returned when a reference layer's backing file is
// missing, unreadable, or malformed. It is not retried by the cache.
type LayerLoadError struct {
	Layer string
	Path  string
	Err   error
}

func (e *LayerLoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("layers: load %s: %v", e.Layer, e.Err)
	}
	return fmt.Sprintf("layers: load %s from %s: %v", e.Layer, e.Path, e.Err)
}

func (e *LayerLoadError) Unwrap() error {
	return e.Err
}

// IsLayerLoadError reports whether err (or any error in its chain) is a
// LayerLoadError.
func IsLayerLoadError(err error) bool {
	var e *LayerLoadError
	return errors.As(err, &e)
}
