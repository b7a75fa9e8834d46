package client

import (
	"crypto/ed25519"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

func hostKey(t *testing.T) ssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	key, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return key
}

func TestHostKeyCallback(t *testing.T) {
	known, other := hostKey(t), hostKey(t)
	path := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{"localhost:2222", "127.0.0.1:2222"}, known)
	require.NoError(t, os.WriteFile(path, []byte(line+"\n"), 0600))

	cb, err := HostKeyCallback(path)
	require.NoError(t, err)
	remote := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 2222}

	assert.NoError(t, cb("localhost:2222", remote, known))

	var keyErr *knownhosts.KeyError
	err = cb("localhost:2222", remote, other)
	require.ErrorAs(t, err, &keyErr)
	assert.NotEmpty(t, keyErr.Want, "a changed key is reported against the known one")

	err = cb("elsewhere:2222", &net.TCPAddr{IP: net.IPv4(10, 0, 0, 9), Port: 2222}, known)
	require.ErrorAs(t, err, &keyErr)
	assert.Empty(t, keyErr.Want, "unknown hosts are refused")
}

func TestHostKeyCallbackMissingFile(t *testing.T) {
	_, err := HostKeyCallback(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
