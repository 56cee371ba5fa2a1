// Package signature holds the fixed spatial signature classification: sixteen
// urban morphology classes with stable integer codes.
package signature

import (
	"errors"
	"fmt"
	"math"
)

// Count is the number of spatial signature classes.
const Count = 16

// names is indexed by signature code.
var names = [Count]string{
	"Wild countryside",
	"Countryside agriculture",
	"Urban buffer",
	"Warehouse/Park land",
	"Open sprawl",
	"Disconnected suburbia",
	"Accessible suburbia",
	"Connected residential neighbourhoods",
	"Dense residential neighbourhoods",
	"Gridded residential quarters",
	"Dense urban neighbourhoods",
	"Local urbanity",
	"Regional urbanity",
	"Metropolitan urbanity",
	"Concentrated urbanity",
	"Hyper concentrated urbanity",
}

var codes = func() map[string]int {
	m := make(map[string]int, Count)
	for i, n := range names {
		m[n] = i
	}
	return m
}()

// UnknownSignatureCodeError is returned when a signature code falls outside 0..15.
type UnknownSignatureCodeError struct {
	Unit string
	Code float64
}

func (e *UnknownSignatureCodeError) Error() string {
	if e.Unit == "" {
		return fmt.Sprintf("signature: unknown signature code %v", e.Code)
	}
	return fmt.Sprintf("signature: unknown signature code %v for unit %s", e.Code, e.Unit)
}

// IsUnknownCode reports whether err (or any error in its chain) is an
// UnknownSignatureCodeError.
func IsUnknownCode(err error) bool {
	var e *UnknownSignatureCodeError
	return errors.As(err, &e)
}

// Name returns the signature name for an integer code.
func Name(code int) (string, error) {
	if code < 0 || code >= Count {
		return "", &UnknownSignatureCodeError{Code: float64(code)}
	}
	return names[code], nil
}

// FromValue translates a decoded numeric code. JSON numbers arrive as
// float64, so integral floats are accepted and anything else is rejected.
func FromValue(v float64) (string, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return "", &UnknownSignatureCodeError{Code: v}
	}
	return Name(int(v))
}

// Code returns the integer code for a signature name.
func Code(name string) (int, bool) {
	c, ok := codes[name]
	return c, ok
}

// Names returns all signature names in code order.
func Names() []string {
	out := make([]string, Count)
	copy(out, names[:])
	return out
}
