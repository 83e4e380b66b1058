// Package identity derives stable keys for postings and candidate profiles.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
)

// ProfileKeyWidth is the number of hex characters kept from the profile digest.
const ProfileKeyWidth = 16

// PostingKey is the normalized identity of a job posting.
type PostingKey string

// QueryKey identifies the search that produced a posting. It is supplied by the caller.
type QueryKey string

// ProfileKey is the content-derived identity of a candidate profile document.
type ProfileKey string

func (k PostingKey) String() string { return string(k) }
func (k QueryKey) String() string   { return string(k) }
func (k ProfileKey) String() string { return string(k) }

// trackingParams are dropped from posting URLs. Keys are compared lower-cased.
var trackingParams = map[string]struct{}{
	"gclid":         {},
	"fbclid":        {},
	"yclid":         {},
	"_openstat":     {},
	"ref":           {},
	"from":          {},
	"hhtmfrom":      {},
	"hhtmfromlabel": {},
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// NormalizePosting canonicalizes a raw source identifier. It never fails:
// input that is not an absolute URL is returned without surrounding whitespace.
func NormalizePosting(raw string) PostingKey {
	trimmed := strings.TrimSpace(raw)

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return PostingKey(trimmed)
	}

	scheme := strings.ToLower(u.Scheme)
	port := u.Port()
	// http and https variants point to the same listing.
	canonical := scheme
	if scheme == "http" {
		canonical = "https"
	}
	if isDefaultPort(scheme, port) || isDefaultPort(canonical, port) {
		port = ""
	}
	scheme = canonical

	host := strings.ToLower(u.Hostname())
	for strings.HasPrefix(host, "www.") {
		host = strings.TrimPrefix(host, "www.")
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	b.WriteString(strings.TrimRight(u.EscapedPath(), "/"))

	if query := normalizeQuery(u.RawQuery); query != "" {
		b.WriteString("?")
		b.WriteString(query)
	}

	return PostingKey(b.String())
}

func isDefaultPort(scheme, port string) bool {
	def, ok := defaultPorts[scheme]
	return ok && port == def
}

func normalizeQuery(raw string) string {
	if raw == "" {
		return ""
	}

	values, err := url.ParseQuery(raw)
	if err != nil {
		return raw
	}

	for key := range values {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			delete(values, key)
			continue
		}
		if _, ok := trackingParams[lower]; ok {
			delete(values, key)
		}
	}

	return values.Encode()
}

// DeriveProfileKey hashes the exact profile bytes.
func DeriveProfileKey(b []byte) ProfileKey {
	sum := sha256.Sum256(b)
	return ProfileKey(hex.EncodeToString(sum[:])[:ProfileKeyWidth])
}

// DeriveProfileKeyFile reads the profile document at path and derives its key.
func DeriveProfileKeyFile(path string) (ProfileKey, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("reading profile %q: %w", path, err)
	}

	return DeriveProfileKey(data), data, nil
}
