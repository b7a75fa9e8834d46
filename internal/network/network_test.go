package network

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gossh "golang.org/x/crypto/ssh"

	"github.com/bnema/orbital/internal/config"
)

func echo(ctx context.Context, conn io.ReadWriteCloser, remote string) {
	_, _ = io.Copy(conn, conn)
}

func serve(t *testing.T, l Listener, h Handler) (cancel func(), done <-chan error) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- l.Serve(ctx, h) }()
	t.Cleanup(cancelFn)
	return cancelFn, errc
}

func TestSocketListenerUnix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orbital.sock")
	l, err := Listen("unix", path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	cancel, done := serve(t, l, echo)

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))

	// Cancelling closes open client streams and stops Serve.
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	_, err = conn.Read(buf)
	assert.Error(t, err)

	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist), "socket file removed on close")
}

func TestListenRemovesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stale.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	// Leave the file behind like a crashed server.
	ln.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, ln.Close())

	l, err := Listen("unix", path)
	require.NoError(t, err)
	require.NoError(t, l.Close())
}

func TestListenRefusesLiveSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.sock")
	l, err := Listen("unix", path)
	require.NoError(t, err)
	defer l.Close()

	_, err = Listen("unix", path)
	assert.Error(t, err)
}

func TestListenRefusesRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, nil, 0600))
	_, err := Listen("unix", path)
	assert.Error(t, err)
}

type recordingWriter struct {
	mu      sync.Mutex
	writes  [][]byte
	flushes int
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, bytes.Clone(p))
	return len(p), nil
}

func (w *recordingWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushes++
	return nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.writes)
}

func TestBufferedWriter(t *testing.T) {
	t.Run("batches until flush", func(t *testing.T) {
		rw := &recordingWriter{}
		bw := NewBufferedWriter(rw, time.Hour, 64)
		defer bw.Close()

		_, _ = bw.Write([]byte("ab"))
		_, _ = bw.Write([]byte("cd"))
		assert.Equal(t, 0, rw.count())
		require.NoError(t, bw.Flush())
		require.Equal(t, 1, rw.count())
		assert.Equal(t, "abcd", string(rw.writes[0]))
		assert.Equal(t, 1, rw.flushes)
	})

	t.Run("flushes when full", func(t *testing.T) {
		rw := &recordingWriter{}
		bw := NewBufferedWriter(rw, time.Hour, 4)
		defer bw.Close()

		_, _ = bw.Write([]byte("abc"))
		_, _ = bw.Write([]byte("de"))
		require.Equal(t, 1, rw.count())
		assert.Equal(t, "abc", string(rw.writes[0]))

		n, err := bw.Write([]byte("0123456789"))
		require.NoError(t, err)
		assert.Equal(t, 10, n)
		assert.Equal(t, "0123456789", string(rw.writes[len(rw.writes)-1]), "oversized writes go straight through")
	})

	t.Run("flushes after delay", func(t *testing.T) {
		rw := &recordingWriter{}
		bw := NewBufferedWriter(rw, 5*time.Millisecond, 64)
		defer bw.Close()

		_, _ = bw.Write([]byte("x"))
		assert.Eventually(t, func() bool { return rw.count() == 1 }, time.Second, time.Millisecond)
	})

	t.Run("errors are sticky", func(t *testing.T) {
		a, b := net.Pipe()
		_ = b.Close()
		bw := NewBufferedWriter(a, time.Hour, 64)
		defer bw.Close()

		_, _ = bw.Write([]byte("x"))
		assert.Error(t, bw.Flush())
		_, err := bw.Write([]byte("y"))
		assert.Error(t, err)
	})
}

func testSigner(t *testing.T) gossh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := gossh.NewSignerFromKey(priv)
	require.NoError(t, err)
	return signer
}

func sshConfig(signer gossh.Signer) *gossh.ClientConfig {
	return &gossh.ClientConfig{
		User:            "orbital",
		Auth:            []gossh.AuthMethod{gossh.PublicKeys(signer)},
		HostKeyCallback: gossh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	}
}

func withSSHConfig(t *testing.T, whitelistOnly bool, whitelist ...string) {
	t.Helper()
	cfg := config.DefaultConfig
	cfg.SSH.WhitelistOnly = whitelistOnly
	cfg.SSH.Whitelist = whitelist
	config.Set(&cfg)
	t.Cleanup(func() { config.Set(nil) })
}

func TestSSHListenerEcho(t *testing.T) {
	withSSHConfig(t, false)
	l, err := ListenSSH("127.0.0.1:0", filepath.Join(t.TempDir(), "host_key"))
	require.NoError(t, err)

	remotes := make(chan string, 1)
	serve(t, l, func(ctx context.Context, conn io.ReadWriteCloser, remote string) {
		remotes <- remote
		echo(ctx, conn, remote)
	})

	client, err := gossh.Dial("tcp", l.Addr(), sshConfig(testSigner(t)))
	require.NoError(t, err)
	defer client.Close()

	sess, err := client.NewSession()
	require.NoError(t, err)
	stdin, err := sess.StdinPipe()
	require.NoError(t, err)
	stdout, err := sess.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, sess.Shell())

	_, err = stdin.Write([]byte("hello"))
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = io.ReadFull(stdout, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))

	select {
	case remote := <-remotes:
		assert.Contains(t, remote, "ssh:127.0.0.1")
		assert.Contains(t, remote, "SHA256:")
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}
	assert.Equal(t, 1, l.Sessions())
}

func TestSSHWhitelist(t *testing.T) {
	allowed := testSigner(t)
	denied := testSigner(t)
	withSSHConfig(t, true, gossh.FingerprintSHA256(allowed.PublicKey()))

	l, err := ListenSSH("127.0.0.1:0", filepath.Join(t.TempDir(), "host_key"))
	require.NoError(t, err)
	serve(t, l, echo)

	c, err := gossh.Dial("tcp", l.Addr(), sshConfig(allowed))
	require.NoError(t, err)
	_ = c.Close()

	_, err = gossh.Dial("tcp", l.Addr(), sshConfig(denied))
	assert.Error(t, err, "keys outside the whitelist are refused")
}

func TestSSHAuthRequest(t *testing.T) {
	withSSHConfig(t, true)
	// Approving a key persists it, so point saves at a temp file.
	config.SetConfigPath(filepath.Join(t.TempDir(), "orbital.toml"))
	t.Cleanup(func() { config.SetConfigPath("") })

	signer := testSigner(t)
	fp := gossh.FingerprintSHA256(signer.PublicKey())

	l, err := ListenSSH("127.0.0.1:0", filepath.Join(t.TempDir(), "host_key"))
	require.NoError(t, err)
	asked := make(chan string, 4)
	l.OnAuthRequest = func(addr, publicKey, fingerprint string) bool {
		asked <- fingerprint
		return true
	}
	serve(t, l, echo)

	c, err := gossh.Dial("tcp", l.Addr(), sshConfig(signer))
	require.NoError(t, err)
	_ = c.Close()

	assert.Equal(t, fp, <-asked)
	assert.True(t, config.IsSSHKeyWhitelisted(fp))
}
