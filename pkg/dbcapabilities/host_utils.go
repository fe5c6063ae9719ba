package dbcapabilities

import (
	"net"
	"path/filepath"
	"strings"
)

// NormalizeHost converts localhost variants to a canonical form.
// It converts "localhost", "127.0.0.1", "::1" and the rest of 127.0.0.0/8 to
// "localhost". All other hosts are lower-cased; no DNS resolution is performed.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))

	if host == "localhost" {
		return "localhost"
	}

	ip := net.ParseIP(host)
	if ip != nil && ip.IsLoopback() {
		return "localhost"
	}

	return host
}

// SameTarget reports whether two connections address the same database.
// In-memory embedded databases are never the same target since each
// connection pool owns its own instance.
func SameTarget(a, b *ConnectionDetails) bool {
	if a == nil || b == nil {
		return false
	}
	if canonicalID(a.DatabaseID) != canonicalID(b.DatabaseID) {
		return false
	}

	capability, ok := Get(a.DatabaseID)
	if ok && capability.Embedded {
		if a.Path == ":memory:" || b.Path == ":memory:" {
			return false
		}
		return filepath.Clean(a.Path) == filepath.Clean(b.Path)
	}

	return NormalizeHost(a.Host) == NormalizeHost(b.Host) &&
		a.Port == b.Port &&
		strings.EqualFold(a.DatabaseName, b.DatabaseName)
}

// canonicalID folds engines that share a wire protocol and server.
func canonicalID(id DatabaseID) DatabaseID {
	if id == MariaDB {
		return MySQL
	}
	return id
}
