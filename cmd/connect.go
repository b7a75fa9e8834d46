package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"github.com/bnema/orbital/internal/client"
	"github.com/bnema/orbital/internal/config"
	"github.com/bnema/orbital/internal/logger"
)

// Connection flags shared by the client commands.
var (
	connectSocket string
	connectSSH    string
	connectKey    string
	knownHosts    string
	insecureHost  bool
)

func addConnectFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&connectSocket, "socket", "", "Unix socket of the server (default from config)")
	cmd.Flags().StringVar(&connectSSH, "ssh", "", "Connect over SSH to host:port instead of the socket")
	cmd.Flags().StringVarP(&connectKey, "key", "i", "", "SSH private key (default ~/.ssh/id_ed25519 or id_rsa)")
	cmd.Flags().StringVar(&knownHosts, "known-hosts", "", "known_hosts file checked against the server key (default ~/.ssh/known_hosts)")
	cmd.Flags().BoolVar(&insecureHost, "insecure-host-key", false, "Accept any SSH server key")
}

func hostKeyCallback() (ssh.HostKeyCallback, error) {
	if insecureHost {
		logger.Warn("SSH server key is not verified", "addr", connectSSH)
		return ssh.InsecureIgnoreHostKey(), nil
	}
	return client.HostKeyCallback(knownHosts)
}

// dial connects to the server named by the connection flags.
func dial() (*client.Client, string, error) {
	if connectSSH != "" {
		signer, err := client.LoadSigner(connectKey)
		if err != nil {
			return nil, "", err
		}
		hostKey, err := hostKeyCallback()
		if err != nil {
			return nil, "", err
		}
		c, err := client.DialSSH(connectSSH, signer, hostKey)
		if err != nil {
			return nil, "", err
		}
		return c, "ssh://" + connectSSH, nil
	}

	socket := connectSocket
	if socket == "" {
		socket = config.Get().Server.SocketPath
	}
	c, err := client.Dial("unix", socket)
	if err != nil {
		return nil, "", fmt.Errorf("is the server running? %w", err)
	}
	return c, socket, nil
}
