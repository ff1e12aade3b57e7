package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetEnvValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, setEnvValue(path, "LUNARTASKS_API_TOKEN", "first"))
	require.NoError(t, os.WriteFile(path, []byte("LUNARTASKS_AUTH_SECRET=s\nLUNARTASKS_API_TOKEN=first"), 0o600))
	require.NoError(t, setEnvValue(path, "LUNARTASKS_API_TOKEN", "second"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "LUNARTASKS_AUTH_SECRET=s\nLUNARTASKS_API_TOKEN=second\n", string(data))
}

func TestOptionalString(t *testing.T) {
	assert.Nil(t, optionalString(""))
	require.NotNil(t, optionalString("x"))
	assert.Equal(t, "x", *optionalString("x"))
}
