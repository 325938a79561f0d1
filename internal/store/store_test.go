package store

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRejectsEmptyURL(t *testing.T) {
	db, err := Open("   ")
	require.Error(t, err)
	assert.Nil(t, db)
}

func TestOpenConnects(t *testing.T) {
	connStr := os.Getenv(testDBURLKey)
	if connStr == "" {
		t.Skipf("set %s to a dedicated test database", testDBURLKey)
	}

	db, err := Open(connStr)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Ping())
}
