package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bentobox/bentobox/internal/instance"
)

func TestParseMountArgSplitsOnLastColon(t *testing.T) {
	opt, err := parseMountArg("/Users/nickvd:rw")
	require.NoError(t, err)
	require.Equal(t, "/Users/nickvd", opt.Location)
	require.True(t, opt.Writable)

	opt, err = parseMountArg("/tmp/lima:ro")
	require.NoError(t, err)
	require.False(t, opt.Writable)

	opt, err = parseMountArg("/tmp/a:b:ro")
	require.NoError(t, err)
	require.Equal(t, "/tmp/a:b", opt.Location)
	require.False(t, opt.Writable)
}

func TestParseMountArgRejectsMissingMode(t *testing.T) {
	_, err := parseMountArg("/tmp/lima")
	require.Error(t, err)
}

func TestParseMountArgRejectsUnknownMode(t *testing.T) {
	_, err := parseMountArg("/tmp/lima:rwx")
	require.Error(t, err)
}

func TestParseMountArgRejectsEmptyPath(t *testing.T) {
	_, err := parseMountArg(":rw")
	require.Error(t, err)
}

func TestParseNetworkModeAcceptsKnownModes(t *testing.T) {
	for raw, want := range map[string]instance.NetworkMode{
		"vznat":   instance.NetworkModeVZNat,
		"none":    instance.NetworkModeNone,
		"bridged": instance.NetworkModeBridged,
		"cni":     instance.NetworkModeCNI,
	} {
		got, err := parseNetworkMode(raw)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestParseNetworkModeRejectsUnknown(t *testing.T) {
	_, err := parseNetworkMode("wifi")
	require.Error(t, err)
}
