package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
)

// ErrIdentityExists is returned by Create when the account name is already
// taken. Callers treat it as non-fatal and fall back to AppendAuthorizedKey.
var ErrIdentityExists = errors.New("identity already exists")

// useradd exits 9 when the username is already in use.
const useraddExitExists = 9

// CreateResult describes a provisioned host account.
type CreateResult struct {
	HomeDir string
}

// Client manages host user accounts for bots.
type Client interface {
	Exists(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, name, publicKey string) (*CreateResult, error)
	AppendAuthorizedKey(ctx context.Context, name, publicKey string) error
	Delete(ctx context.Context, name string) error
}

// HostClient manages accounts through a Runner, which may execute locally
// or on a remote host over SSH. All commands are argument vectors.
type HostClient struct {
	runner Runner
}

func NewHostClient(runner Runner) *HostClient {
	return &HostClient{runner: runner}
}

// Exists reports whether the account is present in the user database.
func (c *HostClient) Exists(ctx context.Context, name string) (bool, error) {
	_, err := c.runner.Run(ctx, Command{Path: "id", Args: []string{"-u", name}})
	if err == nil {
		return true, nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, fmt.Errorf("check identity %s: %w", name, err)
}

// Create provisions the account with a home directory and installs the
// public key. A name collision surfaces as ErrIdentityExists.
func (c *HostClient) Create(ctx context.Context, name, publicKey string) (*CreateResult, error) {
	_, err := c.runner.Run(ctx, Command{
		Path: "useradd",
		Args: []string{"--create-home", "--shell", "/bin/bash", name},
	})
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) &&
			(exitErr.Code == useraddExitExists || strings.Contains(exitErr.Stderr, "already exists")) {
			return nil, fmt.Errorf("create identity %s: %w", name, ErrIdentityExists)
		}
		return nil, fmt.Errorf("create identity %s: %w", name, err)
	}

	if err := c.AppendAuthorizedKey(ctx, name, publicKey); err != nil {
		return nil, err
	}

	home, err := c.homeDir(ctx, name)
	if err != nil {
		return nil, err
	}

	slog.Info("Host identity created", "name", name, "home", home)
	return &CreateResult{HomeDir: home}, nil
}

// AppendAuthorizedKey adds publicKey to the account's authorized_keys,
// creating ~/.ssh with the right ownership and modes if needed.
func (c *HostClient) AppendAuthorizedKey(ctx context.Context, name, publicKey string) error {
	home, err := c.homeDir(ctx, name)
	if err != nil {
		return err
	}

	sshDir := path.Join(home, ".ssh")
	authKeys := path.Join(sshDir, "authorized_keys")
	owner := name + ":" + name

	steps := []Command{
		{Path: "install", Args: []string{"-d", "-m", "0700", "-o", name, "-g", name, sshDir}},
		{Path: "tee", Args: []string{"-a", authKeys}, Stdin: []byte(strings.TrimSpace(publicKey) + "\n")},
		{Path: "chown", Args: []string{owner, authKeys}},
		{Path: "chmod", Args: []string{"0600", authKeys}},
	}
	for _, cmd := range steps {
		if _, err := c.runner.Run(ctx, cmd); err != nil {
			return fmt.Errorf("install authorized key for %s: %w", name, err)
		}
	}

	slog.Info("Authorized key installed", "name", name)
	return nil
}

// Delete removes the account and its home directory. Processes still owned
// by the account are killed first; userdel refuses to remove a user with
// running processes.
func (c *HostClient) Delete(ctx context.Context, name string) error {
	_, err := c.runner.Run(ctx, Command{Path: "pkill", Args: []string{"-KILL", "-u", name}})
	if err != nil {
		var exitErr *ExitError
		// pkill exits 1 when no processes matched.
		if !errors.As(err, &exitErr) || exitErr.Code != 1 {
			return fmt.Errorf("kill processes for %s: %w", name, err)
		}
	}

	if _, err := c.runner.Run(ctx, Command{Path: "userdel", Args: []string{"--remove", name}}); err != nil {
		return fmt.Errorf("delete identity %s: %w", name, err)
	}

	slog.Info("Host identity deleted", "name", name)
	return nil
}

// homeDir resolves the account's home directory from the passwd database.
func (c *HostClient) homeDir(ctx context.Context, name string) (string, error) {
	out, err := c.runner.Run(ctx, Command{Path: "getent", Args: []string{"passwd", name}})
	if err != nil {
		return "", fmt.Errorf("resolve home for %s: %w", name, err)
	}

	fields := strings.Split(strings.TrimSpace(out), ":")
	if len(fields) < 6 || fields[5] == "" {
		return "", fmt.Errorf("resolve home for %s: malformed passwd entry %q", name, strings.TrimSpace(out))
	}
	return fields[5], nil
}
