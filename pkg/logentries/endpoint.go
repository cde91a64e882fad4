package logentries

import (
	"net"
	"strconv"
	"strings"
)

// Regions accepted by Config.Region.
const (
	RegionEU = "eu"
	RegionUS = "us"
)

// Collector ports.
const (
	SecurePort = 443
	PlainPort  = 80
)

const collectorDomain = "data.logs.insight.rapid7.com"

// Endpoint is the collector address. It does not change after construction.
type Endpoint struct {
	Host   string
	Port   int
	UseTLS bool
}

// NewEndpoint resolves the collector for region. A non-empty override
// replaces the regional host and may carry its own port; otherwise the
// port follows useTLS. The region is checked even when overridden.
func NewEndpoint(region, override string, useTLS bool) (Endpoint, error) {
	if region != RegionEU && region != RegionUS {
		return Endpoint{}, configError("region must be %q or %q, got %q", RegionEU, RegionUS, region)
	}

	ep := Endpoint{
		Host:   region + "." + collectorDomain,
		Port:   PlainPort,
		UseTLS: useTLS,
	}
	if useTLS {
		ep.Port = SecurePort
	}

	override = strings.TrimSpace(override)
	if override == "" {
		return ep, nil
	}
	host, port, err := net.SplitHostPort(override)
	if err != nil {
		// Plain host name, keep the default port.
		ep.Host = strings.Trim(override, "[]")
		return ep, nil
	}
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 || n > 65535 {
		return Endpoint{}, configError("invalid port in url %q", override)
	}
	if host == "" {
		return Endpoint{}, configError("missing host in url %q", override)
	}
	ep.Host = host
	ep.Port = n
	return ep, nil
}

// Address returns host:port.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	return e.Address()
}
