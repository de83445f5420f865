//go:build !linux

package gpio

// ChipBackend is not available on non-Linux platforms.
type ChipBackend struct{}

// NewChipBackend returns an error on non-Linux platforms.
func NewChipBackend(string) (*ChipBackend, error) {
	return nil, ErrUnsupported
}

func probeChip(string) error {
	return ErrUnsupported
}

// ConfigureDiscrete is not implemented on non-Linux platforms.
func (b *ChipBackend) ConfigureDiscrete(int, bool) error { return ErrUnsupported }

// ConfigureContinuous is not implemented on non-Linux platforms.
func (b *ChipBackend) ConfigureContinuous(int, float64, float64) error { return ErrUnsupported }

// WriteDiscrete is not implemented on non-Linux platforms.
func (b *ChipBackend) WriteDiscrete(int, bool) error { return ErrUnsupported }

// WriteContinuous is not implemented on non-Linux platforms.
func (b *ChipBackend) WriteContinuous(int, float64) error { return ErrUnsupported }

// ReadDiscrete is not implemented on non-Linux platforms.
func (b *ChipBackend) ReadDiscrete(int) (bool, error) { return false, ErrUnsupported }

// ReadContinuous is not implemented on non-Linux platforms.
func (b *ChipBackend) ReadContinuous(int) (float64, error) { return 0, ErrUnsupported }

// Release is not implemented on non-Linux platforms.
func (b *ChipBackend) Release(int) error { return ErrUnsupported }

// Mode returns ModeHardware.
func (b *ChipBackend) Mode() string { return ModeHardware }

// Close is a no-op on non-Linux platforms.
func (b *ChipBackend) Close() error { return nil }
