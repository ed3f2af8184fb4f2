//go:build linux || darwin

package container

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func lookupSignal(name string) (string, error) {
	if unix.SignalNum(name) == 0 {
		return "", fmt.Errorf("unknown signal %s", name)
	}
	return name, nil
}
