package networking

import (
	"net"
	"net/url"
	"strings"
)

const tokenQueryParam = "token"

// BuildAddress joins the configured base address, an optional namespace path
// and an optional bearer token passed as the "token" query parameter.
// http and https bases are mapped to ws and wss.
func BuildAddress(base string, namespace string, token string) (string, error) {
	if strings.TrimSpace(base) == "" {
		return "", &AddressError{Reason: "base address is empty"}
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", &AddressError{Address: base, Reason: err.Error()}
	}

	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", &AddressError{Address: base, Reason: "unsupported scheme " + quoted(u.Scheme)}
	}

	if !IsHostValid(u.Hostname()) {
		return "", &AddressError{Address: base, Reason: "invalid host " + quoted(u.Hostname())}
	}

	if namespace != "" {
		if !strings.HasPrefix(namespace, "/") || strings.ContainsAny(namespace, "?# \t\r\n") {
			return "", &AddressError{Address: base, Reason: "invalid namespace " + quoted(namespace)}
		}
		u.Path = strings.TrimSuffix(u.Path, "/") + namespace
		u.RawPath = ""
	}

	if token != "" {
		if strings.ContainsAny(token, " \t\r\n") {
			return "", &AddressError{Address: base, Reason: "malformed token"}
		}
		query := u.Query()
		query.Set(tokenQueryParam, token)
		u.RawQuery = query.Encode()
	}

	return u.String(), nil
}

// IsHostValid checks host syntax only, it never resolves names.
func IsHostValid(host string) bool {
	if host == "" {
		return false
	}
	if net.ParseIP(host) != nil {
		return true
	}
	if len(host) > 253 {
		return false
	}

	for _, label := range strings.Split(host, ".") {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, c := range label {
			isAlnum := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
			if !isAlnum && c != '-' && c != '_' {
				return false
			}
		}
	}
	return true
}

func quoted(s string) string {
	return "'" + s + "'"
}
