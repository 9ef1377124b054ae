package identity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Command is one program invocation. Args are passed as an argument vector;
// nothing is ever interpolated into a shell-interpreted line.
type Command struct {
	Path  string
	Args  []string
	Stdin []byte
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Cmd    string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: exit status %d: %s", e.Cmd, e.Code, strings.TrimSpace(e.Stderr))
	}
	return fmt.Sprintf("%s: exit status %d", e.Cmd, e.Code)
}

// Runner executes commands on the host that owns the bot accounts.
type Runner interface {
	// Run executes cmd and returns its stdout. A non-zero exit is
	// returned as *ExitError.
	Run(ctx context.Context, cmd Command) (string, error)
}

// LocalRunner executes commands directly on this host.
type LocalRunner struct{}

func (LocalRunner) Run(ctx context.Context, cmd Command) (string, error) {
	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	if len(cmd.Stdin) > 0 {
		c.Stdin = bytes.NewReader(cmd.Stdin)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	if err := c.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), &ExitError{
				Cmd:    cmd.String(),
				Code:   exitErr.ExitCode(),
				Stderr: stderr.String(),
			}
		}
		return "", fmt.Errorf("run %s: %w", cmd.Path, err)
	}
	return stdout.String(), nil
}

// SSHRunner executes commands on a remote host over SSH. Each Run dials a
// fresh connection; account management is far too infrequent to justify
// connection pooling.
type SSHRunner struct {
	Addr   string
	Config *ssh.ClientConfig
}

// NewSSHRunner builds a runner for the given host using private-key auth.
func NewSSHRunner(addr, user string, privateKeyPEM []byte, hostKeyCallback ssh.HostKeyCallback) (*SSHRunner, error) {
	signer, err := ssh.ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse SSH private key: %w", err)
	}
	if hostKeyCallback == nil {
		return nil, errors.New("host key callback is required")
	}
	return &SSHRunner{
		Addr: addr,
		Config: &ssh.ClientConfig{
			User:            user,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: hostKeyCallback,
		},
	}, nil
}

func (r *SSHRunner) Run(ctx context.Context, cmd Command) (string, error) {
	client, err := ssh.Dial("tcp", r.Addr, r.Config)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", r.Addr, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	if len(cmd.Stdin) > 0 {
		session.Stdin = bytes.NewReader(cmd.Stdin)
	}

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	// Honor cancellation: SSH sessions have no context support, so a
	// watcher closes the connection when ctx expires.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			client.Close()
		case <-done:
		}
	}()

	if err := session.Run(quoteCommand(cmd)); err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), &ExitError{
				Cmd:    cmd.String(),
				Code:   exitErr.ExitStatus(),
				Stderr: stderr.String(),
			}
		}
		return "", fmt.Errorf("run %s on %s: %w", cmd.Path, r.Addr, err)
	}
	return stdout.String(), nil
}

// quoteCommand renders the argument vector for the remote shell. Every
// argument is single-quoted with embedded quotes escaped, so untrusted
// values cannot break out into shell syntax.
func quoteCommand(cmd Command) string {
	parts := make([]string, 0, len(cmd.Args)+1)
	parts = append(parts, shellQuote(cmd.Path))
	for _, arg := range cmd.Args {
		parts = append(parts, shellQuote(arg))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
