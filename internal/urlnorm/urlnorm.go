// Package urlnorm normalizes URLs and domains so that ratings, cache entries
// and rules for the same site share one key.
package urlnorm

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

var errEmpty = eris.New("urlnorm: empty input")

// Domain returns the lowercase ASCII host of a URL or bare hostname, without
// port, trailing dot or leading "www.".
func Domain(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errEmpty
	}
	host := raw
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", eris.Wrapf(err, "urlnorm: parse %q", raw)
		}
		host = u.Hostname()
	} else {
		host, _, _ = strings.Cut(host, "/")
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
	}
	return normalizeHost(host)
}

func normalizeHost(host string) (string, error) {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if host == "" {
		return "", errEmpty
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", eris.Wrapf(err, "urlnorm: idna %q", host)
	}
	return strings.TrimPrefix(ascii, "www."), nil
}

// Registrable returns the eTLD+1 of domain ("blog.example.co.uk" becomes
// "example.co.uk"). Domains without a registrable part are returned as is.
func Registrable(domain string) string {
	if net.ParseIP(domain) != nil {
		return domain
	}
	reg, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil {
		return domain
	}
	return reg
}

// URL returns the canonical form of a URL: https is assumed when the scheme
// is missing, scheme and host are lowercased, default ports and fragments
// are dropped and an empty path becomes "/".
func URL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errEmpty
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") && !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", eris.Wrapf(err, "urlnorm: parse %q", raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", eris.Errorf("urlnorm: unsupported scheme %q", u.Scheme)
	}

	host, err := normalizeHost(u.Hostname())
	if err != nil {
		return "", err
	}
	port := u.Port()
	if (u.Scheme == "https" && port == "443") || (u.Scheme == "http" && port == "80") {
		port = ""
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	u.Host = host
	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// Hash returns the hex SHA-256 of the canonical URL.
func Hash(raw string) (string, error) {
	canonical, err := URL(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}
