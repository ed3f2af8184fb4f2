package container

import (
	"errors"
	"strconv"
	"strings"
)

// NormalizeSignal validates a stop signal name and returns it in the
// "SIGTERM" form. Numeric signals are passed through.
func NormalizeSignal(name string) (string, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return "", errors.New("empty signal")
	}
	if n, err := strconv.Atoi(name); err == nil {
		if n <= 0 {
			return "", errors.New("signal number must be positive")
		}
		return name, nil
	}
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	return lookupSignal(name)
}
