//go:build !windows

package capture

import "os/exec"

// FindRuntime looks the camera tool up in PATH
func FindRuntime(runtime string) (string, error) {
	binPath, err := exec.LookPath(runtime)
	if err != nil {
		return "", &RuntimeError{Runtime: runtime, Err: err}
	}

	return binPath, nil
}
