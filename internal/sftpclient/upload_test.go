package sftpclient

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"madgrades-sync/internal/config"
)

func TestFromConfig(t *testing.T) {
	c := FromConfig(config.Config{
		SFTPHost:                  "sftp.example.edu",
		SFTPPort:                  2222,
		SFTPUser:                  "reports",
		SFTPPass:                  "pw",
		SFTPDir:                   "/inbox",
		SFTPKnownHosts:            "/etc/ssh/known_hosts",
		SFTPInsecureIgnoreHostKey: true,
	})
	assert.Equal(t, Config{
		Host:                  "sftp.example.edu",
		Port:                  2222,
		User:                  "reports",
		Pass:                  "pw",
		RemoteDir:             "/inbox",
		KnownHosts:            "/etc/ssh/known_hosts",
		InsecureIgnoreHostKey: true,
	}, c)
}

func TestWithDefaults(t *testing.T) {
	_, err := Config{}.withDefaults()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sftp: missing env SFTP_HOST / SFTP_USER / SFTP_PASS")

	c, err := Config{Host: "h", User: "u", Pass: "p"}.withDefaults()
	require.NoError(t, err)
	assert.Equal(t, 22, c.Port)
	assert.Equal(t, "/", c.RemoteDir)
}

func TestHostKeyCallback(t *testing.T) {
	cb, err := Config{InsecureIgnoreHostKey: true}.hostKeyCallback()
	require.NoError(t, err)
	assert.NotNil(t, cb)

	_, err = Config{KnownHosts: filepath.Join(t.TempDir(), "missing")}.hostKeyCallback()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "known_hosts")

	empty := filepath.Join(t.TempDir(), "known_hosts")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	cb, err = Config{KnownHosts: empty}.hostKeyCallback()
	require.NoError(t, err)
	assert.NotNil(t, cb)
}

func TestUploadFilesValidation(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, UploadFiles(ctx, Config{}), "nothing to upload")

	err := UploadFiles(ctx, Config{}, "report.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing env")

	// port 1 on loopback refuses connections
	err = UploadFiles(ctx, Config{Host: "127.0.0.1", Port: 1, User: "u", Pass: "p", InsecureIgnoreHostKey: true}, "report.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sftp: dial error")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = UploadFiles(cancelled, Config{Host: "10.255.255.1", User: "u", Pass: "p", InsecureIgnoreHostKey: true}, "report.csv")
	require.Error(t, err)
}

func memClient(t *testing.T) *sftp.Client {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	server := sftp.NewRequestServer(serverConn, sftp.InMemHandler())
	go func() { _ = server.Serve() }()
	t.Cleanup(func() { _ = server.Close() })

	cli, err := sftp.NewClientPipe(clientConn, clientConn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })
	return cli
}

func TestUploadWritesEveryFile(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "unresolved-departments.csv")
	b := filepath.Join(dir, "unresolved-canonical.csv")
	require.NoError(t, os.WriteFile(a, []byte("sourceCourseUuid\nu-1\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("sourceCourseUuid\n"), 0o644))

	cli := memClient(t)
	require.NoError(t, upload(cli, "/reports", []string{a, b}))

	f, err := cli.Open("/reports/unresolved-departments.csv")
	require.NoError(t, err)
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, "sourceCourseUuid\nu-1\n", string(got))

	_, err = cli.Stat("/reports/unresolved-canonical.csv")
	assert.NoError(t, err)
}

func TestUploadMissingLocalFile(t *testing.T) {
	cli := memClient(t)
	err := upload(cli, "/", []string{filepath.Join(t.TempDir(), "nope.csv")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open local file")
}
