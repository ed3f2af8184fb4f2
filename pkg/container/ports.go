package container

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/docker/go-connections/nat"

	"github.com/jguan/throwaway/pkg/infra/docker"
)

const wildcardHostIP = "0.0.0.0"

// ResolvePorts turns inspection port data into a map of container port spec
// to host port. Only bindings on 0.0.0.0 with a numeric host port are kept;
// when a spec has several of those the last one wins. A nil input yields an
// empty map.
func ResolvePorts(bindings map[string][]docker.PortBinding) map[string]uint16 {
	ports := make(map[string]uint16, len(bindings))
	for spec, list := range bindings {
		for _, b := range list {
			if b.HostIP != wildcardHostIP {
				continue
			}
			port, err := strconv.ParseUint(b.HostPort, 10, 16)
			if err != nil || port == 0 {
				continue
			}
			ports[spec] = uint16(port)
		}
	}
	return ports
}

// NormalizePortSpec canonicalizes a container port spec to "port/proto".
// A bare port defaults to tcp.
func NormalizePortSpec(spec string) (string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", errors.New("empty port spec")
	}
	proto, port := nat.SplitProtoPort(spec)
	proto = strings.ToLower(proto)
	if port == "" {
		return "", errors.New("missing port number")
	}
	switch proto {
	case "tcp", "udp", "sctp":
	default:
		return "", fmt.Errorf("unsupported protocol %q", proto)
	}
	n, err := nat.ParsePort(port)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", errors.New("port must be between 1 and 65535")
	}
	p, err := nat.NewPort(proto, port)
	if err != nil {
		return "", err
	}
	return string(p), nil
}
