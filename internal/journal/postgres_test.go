package journal

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	u "savecsv/internal/utils"
)

func TestPostgresDSN_BuildsURL(t *testing.T) {
	dsn, err := postgresDSN(u.PostgresConfig{
		Host:     "localhost",
		Port:     5433,
		Database: "exports",
		User:     "user",
		Password: "p@ss word",
		SSLMode:  "disable",
	})
	assert.NoError(t, err)

	parsed, err := url.Parse(dsn)
	assert.NoError(t, err)
	assert.Equal(t, "postgres", parsed.Scheme)
	assert.Equal(t, "localhost:5433", parsed.Host)
	assert.Equal(t, "/exports", parsed.Path)
	assert.Equal(t, "user", parsed.User.Username())
	pw, ok := parsed.User.Password()
	assert.True(t, ok)
	assert.Equal(t, "p@ss word", pw)
	assert.Equal(t, "disable", parsed.Query().Get("sslmode"))
}

func TestPostgresDSN_Passthrough(t *testing.T) {
	raw := "postgres://u:p@localhost:5432/db?sslmode=disable"
	dsn, err := postgresDSN(u.PostgresConfig{Host: raw})
	assert.NoError(t, err)
	assert.Equal(t, raw, dsn)
}

func TestPostgresDSN_HostForms(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"db", "db:5432"},
		{"db:6000", "db:6000"},
		{"::1", "[::1]:5432"},
		{"[::1]", "[::1]:5432"},
		{"[::1]:7000", "[::1]:7000"},
	}
	for _, tt := range tests {
		dsn, err := postgresDSN(u.PostgresConfig{Host: tt.host, Database: "d", User: "u"})
		assert.NoError(t, err, tt.host)
		parsed, err := url.Parse(dsn)
		assert.NoError(t, err, tt.host)
		assert.Equal(t, tt.want, parsed.Host, tt.host)
	}
}

func TestPostgresDSN_MissingFields(t *testing.T) {
	for _, cfg := range []u.PostgresConfig{
		{},
		{Host: "db"},
		{Host: "db", Database: "d"},
	} {
		_, err := postgresDSN(cfg)
		assert.Error(t, err)
	}
}

func TestNewPostgres_UnreachableFails(t *testing.T) {
	_, err := NewPostgres(u.PostgresConfig{Host: "postgres://u:p@127.0.0.1:1/db?sslmode=disable&connect_timeout=1"})
	assert.Error(t, err)
}
