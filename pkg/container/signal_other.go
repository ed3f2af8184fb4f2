//go:build !(linux || darwin)

package container

import "fmt"

// Signals understood by the Docker daemon on every platform.
var knownSignals = map[string]bool{
	"SIGHUP": true, "SIGINT": true, "SIGQUIT": true, "SIGKILL": true,
	"SIGUSR1": true, "SIGUSR2": true, "SIGTERM": true, "SIGSTOP": true,
	"SIGCONT": true, "SIGWINCH": true, "SIGPWR": true,
}

func lookupSignal(name string) (string, error) {
	if !knownSignals[name] {
		return "", fmt.Errorf("unknown signal %s", name)
	}
	return name, nil
}
