package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewHostSnapshotsEnvironment(t *testing.T) {
	require := assert.New(t)
	os.Setenv("WASMGATE_CONFIG_TEST_VAR", "present")
	defer os.Unsetenv("WASMGATE_CONFIG_TEST_VAR")

	h := NewHost()
	v, ok := h.vars["WASMGATE_CONFIG_TEST_VAR"]
	require.True(ok)
	require.Equal("present", v)

	os.Setenv("WASMGATE_CONFIG_TEST_VAR", "changed-after-snapshot")
	v, ok = h.vars["WASMGATE_CONFIG_TEST_VAR"]
	require.True(ok)
	require.Equal("present", v, "snapshot must not observe later env changes")
}

func TestHostName(t *testing.T) {
	h := NewHost()
	assert.Equal(t, "wasi:config/store", h.Name())
}
