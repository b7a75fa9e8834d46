package client

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// sshStream is an SSH session's stdin and stdout seen as one stream.
type sshStream struct {
	io.Reader
	io.WriteCloser
	session *ssh.Session
	client  *ssh.Client
}

func (s *sshStream) Close() error {
	return errors.Join(s.WriteCloser.Close(), s.session.Close(), s.client.Close())
}

// DefaultKeyPath returns the first of ~/.ssh/id_ed25519 and ~/.ssh/id_rsa
// that exists, or "".
func DefaultKeyPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	for _, name := range []string{"id_ed25519", "id_rsa"} {
		path := filepath.Join(homeDir, ".ssh", name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// LoadSigner reads a private key file. An empty path uses DefaultKeyPath.
func LoadSigner(privateKeyPath string) (ssh.Signer, error) {
	if privateKeyPath == "" {
		privateKeyPath = DefaultKeyPath()
	}
	if privateKeyPath == "" {
		return nil, fmt.Errorf("no SSH private key found in ~/.ssh")
	}
	key, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return signer, nil
}

// DefaultKnownHostsPath returns ~/.ssh/known_hosts, or "" without a home
// directory.
func DefaultKnownHostsPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".ssh", "known_hosts")
}

// HostKeyCallback verifies server keys against a known_hosts file. An empty
// path uses DefaultKnownHostsPath.
func HostKeyCallback(knownHostsPath string) (ssh.HostKeyCallback, error) {
	if knownHostsPath == "" {
		knownHostsPath = DefaultKnownHostsPath()
	}
	if knownHostsPath == "" {
		return nil, fmt.Errorf("no known_hosts file: home directory unknown")
	}
	cb, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts: %w", err)
	}
	return cb, nil
}

// DialSSH connects to a server's SSH listener. The session's shell is the
// protocol stream. hostKey checks the server key; see HostKeyCallback.
func DialSSH(address string, signer ssh.Signer, hostKey ssh.HostKeyCallback) (*Client, error) {
	config := &ssh.ClientConfig{
		User:            "orbital",
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKey,
		Timeout:         10 * time.Second,
	}

	client, err := ssh.Dial("tcp", address, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SSH server: %w", err)
	}
	session, err := client.NewSession()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create SSH session: %w", err)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()
		_ = client.Close()
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		_ = session.Close()
		_ = client.Close()
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if err := session.Shell(); err != nil {
		_ = session.Close()
		_ = client.Close()
		return nil, fmt.Errorf("failed to start SSH session: %w", err)
	}

	return New(&sshStream{Reader: stdout, WriteCloser: stdin, session: session, client: client}), nil
}
