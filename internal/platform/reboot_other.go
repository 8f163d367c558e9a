//go:build !linux

package platform

import "errors"

func reboot() error {
	return errors.New("reboot: not supported on this platform")
}
