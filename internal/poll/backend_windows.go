package poll

import (
	"errors"
	"fmt"
)

func newBackend() (backend, error) {
	return nil, fmt.Errorf("readiness polling on windows: %w", errors.ErrUnsupported)
}
