package capture

import "fmt"

// RuntimeError is returned when the camera tool cannot be located
type RuntimeError struct {
	Runtime string
	Err     error
}

func (e *RuntimeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("failed to find binary '%s'", e.Runtime)
	}
	return fmt.Sprintf("failed to find binary '%s': %s", e.Runtime, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}
