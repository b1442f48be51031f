package session

import (
	"net/url"
	"strings"
)

// NoBrowserOrigin is the Origin value sent by sandboxed documents and
// non-browser callers.
const NoBrowserOrigin = "null"

// DomainAllowed reports whether origin may embed a widget restricted to
// allowed. An empty allow-list admits everyone. Hosts match exactly or as a
// subdomain of an allowed entry.
func DomainAllowed(allowed []string, origin string) bool {
	if len(allowed) == 0 {
		return true
	}
	origin = strings.TrimSpace(origin)
	if origin == NoBrowserOrigin {
		return true
	}

	host := originHost(origin)
	if host == "" {
		return false
	}

	for _, entry := range allowed {
		domain := normalizeDomain(entry)
		if domain == "" {
			continue
		}
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

func originHost(origin string) string {
	if origin == "" {
		return ""
	}
	if !strings.Contains(origin, "://") {
		origin = "https://" + origin
	}
	u, err := url.Parse(origin)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func normalizeDomain(entry string) string {
	entry = strings.TrimSpace(strings.ToLower(entry))
	entry = strings.TrimPrefix(entry, "*.")
	if strings.Contains(entry, "://") {
		return originHost(entry)
	}
	if i := strings.IndexAny(entry, ":/"); i >= 0 {
		entry = entry[:i]
	}
	return strings.TrimSuffix(entry, ".")
}
