package tls

import (
	"crypto/tls"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClientAuthType(t *testing.T) {
	cases := map[string]tls.ClientAuthType{
		"":        tls.NoClientCert,
		"none":    tls.NoClientCert,
		"request": tls.RequestClientCert,
		"require": tls.RequireAndVerifyClientCert,
	}
	for in, want := range cases {
		got, err := ParseClientAuthType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseClientAuthType("sometimes")
	assert.Error(t, err)
}

func TestServerOptionsDisabled(t *testing.T) {
	opts, err := ServerOptions(Config{Enabled: false, CertFile: "/does/not/exist"})
	require.NoError(t, err)
	assert.Empty(t, opts)
}

func TestServerOptionsMissingCertificate(t *testing.T) {
	dir := t.TempDir()
	_, err := ServerOptions(Config{
		Enabled:  true,
		CertFile: filepath.Join(dir, "server.crt"),
		KeyFile:  filepath.Join(dir, "server.key"),
	})
	assert.ErrorContains(t, err, "failed to load server certificate")
}

func TestDialCredentials(t *testing.T) {
	creds, err := DialCredentials("", "", "")
	require.NoError(t, err)
	assert.Equal(t, "insecure", creds.Info().SecurityProtocol)

	_, err = DialCredentials(filepath.Join(t.TempDir(), "ca.crt"), "", "")
	assert.ErrorContains(t, err, "failed to read CA certificate")
}
