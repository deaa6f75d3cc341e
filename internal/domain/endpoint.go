package domain

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Endpoint is one backend node address.
type Endpoint struct {
	Scheme string `json:"scheme" yaml:"scheme" validate:"omitempty,oneof=http https"`
	Host   string `json:"host" yaml:"host" validate:"required"`
	Port   int    `json:"port" yaml:"port" validate:"min=1,max=65535"`
}

// ParseEndpoint accepts "host:port" or a full "http(s)://host:port" URL.
// A missing port defaults to 9200.
func ParseEndpoint(s string) (Endpoint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Endpoint{}, fmt.Errorf("empty endpoint")
	}

	ep := Endpoint{Scheme: "http", Port: 9200}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return Endpoint{}, fmt.Errorf("parse endpoint %q: %w", s, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return Endpoint{}, fmt.Errorf("endpoint %q: unsupported scheme %q", s, u.Scheme)
		}
		ep.Scheme = u.Scheme
		s = u.Host
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		// No port present.
		host = s
		portStr = ""
	}
	if host == "" {
		return Endpoint{}, fmt.Errorf("endpoint %q: missing host", s)
	}
	ep.Host = host

	if portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			return Endpoint{}, fmt.Errorf("endpoint %q: invalid port %q", s, portStr)
		}
		ep.Port = port
	}
	return ep, nil
}

// URL renders the endpoint as a base URL for the REST client.
func (e Endpoint) URL() string {
	scheme := e.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(e.Host, strconv.Itoa(e.Port)))
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}
