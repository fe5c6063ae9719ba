package dbcapabilities

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ConnectionDetails holds parsed connection information
type ConnectionDetails struct {
	DatabaseID   DatabaseID        `json:"database_id"`
	Host         string            `json:"host"`
	Port         int32             `json:"port"`
	Username     string            `json:"username"`
	Password     string            `json:"password"`
	DatabaseName string            `json:"database_name"`
	Path         string            `json:"path,omitempty"`
	SSL          bool              `json:"ssl"`
	SSLMode      string            `json:"ssl_mode"`
	Parameters   map[string]string `json:"parameters"`
	IsSystemDB   bool              `json:"is_system_db"`
}

// Address returns host:port.
func (d *ConnectionDetails) Address() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// ParseConnectionString parses a connection URL and returns connection details.
// Embedded engines take the remainder after the scheme as a file path, so
// sqlite://:memory: and sqlite:///var/lib/app.db are both accepted.
func ParseConnectionString(connectionString string) (*ConnectionDetails, error) {
	if connectionString == "" {
		return nil, fmt.Errorf("connection string cannot be empty")
	}

	scheme, rest, ok := strings.Cut(connectionString, "://")
	if !ok || scheme == "" {
		return nil, fmt.Errorf("connection string must include a scheme (e.g., postgres://)")
	}

	dbID, ok := ParseID(scheme)
	if !ok {
		return nil, fmt.Errorf("unsupported database type: %s", scheme)
	}

	capability, ok := Get(dbID)
	if !ok {
		return nil, fmt.Errorf("database capabilities not found for type: %s", string(dbID))
	}

	if capability.Embedded {
		return parseEmbedded(dbID, rest)
	}

	parsedURL, err := url.Parse(connectionString)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string format: %v", err)
	}

	details := &ConnectionDetails{
		DatabaseID: dbID,
		Parameters: make(map[string]string),
	}

	if parsedURL.Hostname() == "" {
		return nil, fmt.Errorf("host is required in connection string")
	}
	details.Host = parsedURL.Hostname()

	if parsedURL.Port() != "" {
		port, err := strconv.Atoi(parsedURL.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid port number: %s", parsedURL.Port())
		}
		details.Port = int32(port)
	} else {
		details.Port = int32(capability.DefaultPort)
	}

	if parsedURL.User != nil {
		details.Username = parsedURL.User.Username()
		if password, hasPassword := parsedURL.User.Password(); hasPassword {
			details.Password = password
		}
	}

	path := strings.Trim(parsedURL.Path, "/")
	if path != "" {
		details.DatabaseName = path
	}

	if capability.HasSystemDatabase && details.DatabaseName != "" {
		details.IsSystemDB = isSystemDatabase(details.DatabaseName, capability.SystemDatabases)
	}

	queryParams := parsedURL.Query()
	for key, values := range queryParams {
		if len(values) > 0 {
			details.Parameters[key] = values[0]
		}
	}

	parseSSLConfiguration(details, queryParams)

	if details.Username == "" && capability.Relational {
		return nil, fmt.Errorf("username is required in connection string")
	}

	return details, nil
}

func parseEmbedded(dbID DatabaseID, rest string) (*ConnectionDetails, error) {
	path, rawQuery, _ := strings.Cut(rest, "?")
	if path == "" {
		return nil, fmt.Errorf("path is required in connection string")
	}

	details := &ConnectionDetails{
		DatabaseID: dbID,
		Path:       path,
		SSLMode:    "disable",
		Parameters: make(map[string]string),
	}

	if rawQuery != "" {
		values, err := url.ParseQuery(rawQuery)
		if err != nil {
			return nil, fmt.Errorf("invalid connection parameters: %v", err)
		}
		for key, v := range values {
			if len(v) > 0 {
				details.Parameters[key] = v[0]
			}
		}
	}
	return details, nil
}

// isSystemDatabase checks if the given database name is a system database
func isSystemDatabase(dbName string, systemDatabases []string) bool {
	for _, sysDB := range systemDatabases {
		if strings.EqualFold(dbName, sysDB) {
			return true
		}
	}
	return false
}

// parseSSLConfiguration handles SSL-related parameters based on engine
func parseSSLConfiguration(details *ConnectionDetails, queryParams url.Values) {
	switch details.DatabaseID {
	case PostgreSQL, CockroachDB:
		parsePostgreSQLSSL(details, queryParams)
	case MySQL, MariaDB:
		parseMySQLSSL(details, queryParams)
	case SQLServer:
		parseSQLServerSSL(details, queryParams)
	default:
		parseDefaultSSL(details, queryParams)
	}
}

// parsePostgreSQLSSL handles PostgreSQL-specific SSL parameters
func parsePostgreSQLSSL(details *ConnectionDetails, queryParams url.Values) {
	sslMode := queryParams.Get("sslmode")
	if sslMode == "" {
		sslMode = "prefer" // PostgreSQL default
	}

	details.SSLMode = sslMode
	details.SSL = sslMode != "disable"
}

// parseMySQLSSL handles MySQL/MariaDB-specific SSL parameters
func parseMySQLSSL(details *ConnectionDetails, queryParams url.Values) {
	tls := queryParams.Get("tls")

	details.SSL = tls == "true" || tls == "skip-verify"
	switch {
	case tls == "skip-verify":
		details.SSLMode = "prefer"
	case details.SSL:
		details.SSLMode = "require"
	default:
		details.SSLMode = "disable"
	}
}

// parseSQLServerSSL handles SQL Server-specific SSL parameters
func parseSQLServerSSL(details *ConnectionDetails, queryParams url.Values) {
	details.SSL = queryParams.Get("encrypt") == "true"
	if details.SSL {
		details.SSLMode = "require"
		if queryParams.Get("trustservercertificate") == "true" {
			details.SSLMode = "prefer"
		}
	} else {
		details.SSLMode = "disable"
	}
}

// parseDefaultSSL handles SSL parameters for engines not specifically handled
func parseDefaultSSL(details *ConnectionDetails, queryParams url.Values) {
	details.SSL = queryParams.Get("ssl") == "true"
	if details.SSL {
		details.SSLMode = "require"
	} else {
		details.SSLMode = "disable"
	}
}

// ValidateConnectionString validates a connection string without keeping the result
func ValidateConnectionString(connectionString string) error {
	_, err := ParseConnectionString(connectionString)
	return err
}
