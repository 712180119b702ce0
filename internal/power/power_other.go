//go:build !linux

package power

import "errors"

// poweroff вне Linux не поддерживается.
func poweroff() error {
	return errors.New("power off not supported on this platform")
}
