package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/EternisAI/silo-sidecar/internal/environment"
	grpcserver "github.com/EternisAI/silo-sidecar/internal/grpc/server"
	"github.com/EternisAI/silo-sidecar/internal/jwtproxy"
	"github.com/EternisAI/silo-sidecar/internal/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestParseBackend(t *testing.T) {
	be, err := parseBackend("backend-a:8080")
	require.NoError(t, err)
	assert.Equal(t, backend{name: "backend-a", port: 8080, protocol: "TCP"}, be)

	be, err = parseBackend("dns:53/udp")
	require.NoError(t, err)
	assert.Equal(t, backend{name: "dns", port: 53, protocol: "UDP"}, be)

	for _, bad := range []string{"backend", ":8080", "backend:http"} {
		_, err := parseBackend(bad)
		assert.Error(t, err, bad)
	}
}

func TestKeygenCommand(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "keygen", "--key-dir", dir, "--bits", "1024")
	require.NoError(t, err)
	assert.Contains(t, out, signature.PublicKeyHeader)

	pair, err := signature.LoadKeyPair(dir)
	require.NoError(t, err)
	assert.NotNil(t, pair.Private)

	_, err = execute(t, "keygen", "--key-dir", dir, "--bits", "1024")
	assert.ErrorContains(t, err, "already exists")

	_, err = execute(t, "keygen", "--key-dir", dir, "--bits", "1024", "--force")
	require.NoError(t, err)
}

func TestExposeCommand_AcrossInvocations(t *testing.T) {
	dir := t.TempDir()
	keyDir := filepath.Join(dir, "keys")
	envFile := filepath.Join(dir, "env.yaml")
	_, err := execute(t, "keygen", "--key-dir", keyDir, "--bits", "1024")
	require.NoError(t, err)

	out, err := execute(t, "expose", "--workspace", "ws1", "--env", envFile, "--key-dir", keyDir,
		"--backend", "backend-a:8080")
	require.NoError(t, err)
	assert.Contains(t, out, "backend-a-4400")

	out, err = execute(t, "expose", "--workspace", "ws1", "--env", envFile, "--key-dir", keyDir,
		"--backend", "backend-b:9090")
	require.NoError(t, err)
	assert.Contains(t, out, "backend-b-4401")

	env, err := environment.LoadFile(envFile)
	require.NoError(t, err)
	assert.Len(t, env.Machines, 1)
	assert.Len(t, env.Services, 1)

	cm, ok := env.ConfigMap(jwtproxy.ConfigMapName("ws1"))
	require.True(t, ok)
	mappings, err := jwtproxy.ParseConfig(cm.Data[jwtproxy.ConfigFile])
	require.NoError(t, err)
	assert.Equal(t, []jwtproxy.ExposureMapping{
		{ListenPort: 4400, BackendURL: "http://backend-a:8080"},
		{ListenPort: 4401, BackendURL: "http://backend-b:9090"},
	}, mappings)
}

func TestExposeCommand_SeveralBackendsAtOnce(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "env.yaml")

	out, err := execute(t, "expose", "-w", "ws1", "-e", envFile, "--key-dir", filepath.Join(dir, "keys"),
		"--generate-key", "-b", "web:80", "-b", "dns:53/udp")
	require.NoError(t, err)
	assert.Contains(t, out, "web-4400 port 4400/TCP")
	assert.Contains(t, out, "dns-4401 port 4401/UDP")
}

func TestExposeCommand_MissingKeyPairLeavesFileUntouched(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "env.yaml")

	_, err := execute(t, "expose", "--workspace", "ws1", "--env", envFile,
		"--key-dir", filepath.Join(dir, "keys"), "--backend", "backend-a:8080")
	require.ErrorIs(t, err, jwtproxy.ErrKeyPairMissing)

	_, statErr := os.Stat(envFile)
	assert.True(t, os.IsNotExist(statErr))
}

func TestExposeCommand_RequiredFlags(t *testing.T) {
	_, err := execute(t, "expose", "--backend", "a:1")
	assert.ErrorContains(t, err, "workspace")

	_, err = execute(t, "expose", "--workspace", "ws1")
	assert.ErrorContains(t, err, "backend")

	_, err = execute(t, "expose", "--workspace", "ws1", "--backend", "nope")
	assert.ErrorContains(t, err, "name:port")
}

func TestHealthCommand(t *testing.T) {
	pair, err := signature.GenerateKeyPair(1024)
	require.NoError(t, err)

	srv := grpcserver.NewServer(0, signature.NewStaticKeyManager(pair))
	require.NoError(t, srv.Listen())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	t.Cleanup(func() {
		_ = srv.StopWithTimeout(time.Second)
		<-errCh
	})

	var out string
	require.Eventually(t, func() bool {
		out, err = execute(t, "health", "--addr", srv.Addr().String(), "--timeout", "500ms")
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)
	assert.Contains(t, out, grpcserver.ProvisionerService+": SERVING")
}

func TestUnknownCommand(t *testing.T) {
	_, err := execute(t, "frobnicate")
	assert.Error(t, err)
}
