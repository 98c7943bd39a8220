package store

import (
	"errors"
	"fmt"
	"math"
)

// Keys of the persisted calibration factor. The factor is stored as an
// integer scaled by FactorScale, once as the value and once as an echo.
const (
	KeyCalFactor  = "calFactorULong"
	KeyValidity   = "validitycheck"
	FactorScale   = 10000.0
	validityRange = 0.05
)

// inRange reports whether val lies within ±rng of ref, truncating the bounds
// to integers.
func inRange(val, ref int64, rng float64) bool {
	lo := int64(float64(ref) * (1 - rng))
	hi := int64(float64(ref) * (1 + rng))
	return val >= lo && val <= hi
}

// RestoreCalFactor returns the persisted factor if both keys are present,
// positive and within 5% of each other. ok is false otherwise and the caller
// keeps its default.
func RestoreCalFactor(s Store) (factor float64, ok bool, err error) {
	v, err := s.GetInt(KeyCalFactor)
	if errors.Is(err, ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get %s: %w", KeyCalFactor, err)
	}
	check, err := s.GetInt(KeyValidity)
	if errors.Is(err, ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get %s: %w", KeyValidity, err)
	}
	if v <= 0 || !inRange(v, check, validityRange) {
		return 0, false, nil
	}
	return float64(v) / FactorScale, true, nil
}

// PersistCalFactor writes factor to both keys.
func PersistCalFactor(s Store, factor float64) error {
	v := int64(math.Round(factor * FactorScale))
	if err := s.SetInt(KeyCalFactor, v); err != nil {
		return fmt.Errorf("set %s: %w", KeyCalFactor, err)
	}
	if err := s.SetInt(KeyValidity, v); err != nil {
		return fmt.Errorf("set %s: %w", KeyValidity, err)
	}
	return nil
}
