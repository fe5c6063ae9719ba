package dbcapabilities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"localhost", "localhost"},
		{" LocalHost ", "localhost"},
		{"127.0.0.1", "localhost"},
		{"127.1.2.3", "localhost"},
		{"::1", "localhost"},
		{"DB.Example.com", "db.example.com"},
		{"10.0.0.5", "10.0.0.5"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeHost(tt.input))
		})
	}
}

func TestSameTarget(t *testing.T) {
	parse := func(s string) *ConnectionDetails {
		d, err := ParseConnectionString(s)
		require.NoError(t, err)
		return d
	}

	tests := []struct {
		name     string
		a, b     string
		expected bool
	}{
		{"loopback variants", "postgres://u@localhost/app", "postgres://v@127.0.0.1:5432/app", true},
		{"different database", "postgres://u@localhost/app", "postgres://u@localhost/copy", false},
		{"different port", "postgres://u@localhost/app", "postgres://u@localhost:5433/app", false},
		{"mariadb shares mysql server", "mysql://u@db/app", "mariadb://u@db/app", true},
		{"different engines", "mysql://u@db/app", "postgres://u@db/app", false},
		{"same sqlite file", "sqlite:///tmp/a.db", "sqlite:///tmp/../tmp/a.db", true},
		{"memory databases are distinct", "sqlite://:memory:", "sqlite://:memory:", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SameTarget(parse(tt.a), parse(tt.b)))
		})
	}

	assert.False(t, SameTarget(nil, parse("sqlite:///tmp/a.db")))
}
