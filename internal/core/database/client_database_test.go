package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	_, err := buildDSN("", "")
	assert.Error(t, err)

	dsn, err := buildDSN("postgres://u:p@localhost:5432/db", "")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost:5432/db", dsn)

	_, err = buildDSN("postgres://u:p@localhost:5432/db", filepath.Join(t.TempDir(), "missing.crt"))
	assert.Error(t, err)

	cert := filepath.Join(t.TempDir(), "root.crt")
	require.NoError(t, os.WriteFile(cert, []byte("cert"), 0o600))
	dsn, err = buildDSN("postgres://u:p@localhost:5432/db?application_name=crawlvec", cert)
	require.NoError(t, err)
	assert.Contains(t, dsn, "sslmode=verify-ca")
	assert.Contains(t, dsn, "application_name=crawlvec")
	assert.Contains(t, dsn, "sslrootcert=")
}

func TestNonNil(t *testing.T) {
	assert.NotNil(t, nonNil(nil))
	assert.Equal(t, []string{"a"}, nonNil([]string{"a"}))
}

func TestBootstrapScriptTemplated(t *testing.T) {
	data, err := bootstrapFS.ReadFile("scripts/initdb.sql")
	require.NoError(t, err)
	assert.Contains(t, string(data), "vector({{EMBED_DIM}})")
	assert.Contains(t, string(data), "crawlvec_meta")
}
