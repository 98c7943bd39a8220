//go:build !linux

package gpio

// RealPins is not available on non-Linux platforms.
type RealPins struct{}

// NewRealPins returns ErrUnsupported on non-Linux platforms.
func NewRealPins(p Pinout) (*RealPins, error) {
	return nil, ErrUnsupported
}

// Set is not implemented on non-Linux platforms.
func (r *RealPins) Set(line Line, high bool) {}

// Get is not implemented on non-Linux platforms.
func (r *RealPins) Get(line Line) bool { return true }

// Close is not implemented on non-Linux platforms.
func (r *RealPins) Close() error {
	return nil
}
