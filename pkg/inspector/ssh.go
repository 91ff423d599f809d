package inspector

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type SSHOptions struct {
	Host       string
	Port       int
	User       string
	Password   string
	KeyFile    string
	KnownHosts string
	Insecure   bool
	Timeout    time.Duration
}

// SSHRunner runs commands over one ssh connection, a session per command.
type SSHRunner struct {
	client *ssh.Client
}

func DialSSH(ctx context.Context, opts SSHOptions, log logrus.FieldLogger) (*SSHRunner, error) {
	var auth []ssh.AuthMethod

	if opts.KeyFile != "" {
		key, err := os.ReadFile(opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse key file: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if opts.Password != "" {
		auth = append(auth, ssh.Password(opts.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("no ssh credentials for %s", opts.Host)
	}

	hostKey, err := hostKeyCallback(opts, log)
	if err != nil {
		return nil, err
	}

	user := opts.User
	if user == "" {
		user = "root"
	}

	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         opts.Timeout,
	}

	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))

	d := net.Dialer{Timeout: opts.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &SSHRunner{client: ssh.NewClient(c, chans, reqs)}, nil
}

func hostKeyCallback(opts SSHOptions, log logrus.FieldLogger) (ssh.HostKeyCallback, error) {
	if opts.KnownHosts != "" {
		if _, err := os.Stat(opts.KnownHosts); err == nil {
			return knownhosts.New(opts.KnownHosts)
		}
	}

	if opts.Insecure {
		log.WithField("host", opts.Host).Warn("Host key verification disabled")
		return ssh.InsecureIgnoreHostKey(), nil
	}

	return nil, fmt.Errorf("known_hosts file %q not found, set ssh.insecure to skip host key verification", opts.KnownHosts)
}

func (s *SSHRunner) Run(ctx context.Context, cmd string) (string, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return "", err
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		return "", ctx.Err()
	case err := <-done:
		if err != nil {
			return stdout.String(), fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
	}

	return stdout.String(), nil
}

func (s *SSHRunner) Close() error {
	return s.client.Close()
}
