package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner scripts responses per command path and records every call.
type fakeRunner struct {
	calls     []Command
	responses map[string]fakeResponse
}

type fakeResponse struct {
	stdout string
	err    error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{responses: make(map[string]fakeResponse)}
}

func (r *fakeRunner) respond(path, stdout string, err error) {
	r.responses[path] = fakeResponse{stdout: stdout, err: err}
}

func (r *fakeRunner) Run(_ context.Context, cmd Command) (string, error) {
	r.calls = append(r.calls, cmd)
	resp := r.responses[cmd.Path]
	return resp.stdout, resp.err
}

func (r *fakeRunner) paths() []string {
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.Path
	}
	return out
}

const passwdEntry = "paulo-bl:x:1001:1001::/home/paulo-bl:/bin/bash\n"

func TestExists(t *testing.T) {
	runner := newFakeRunner()
	runner.respond("id", "1001\n", nil)

	client := NewHostClient(runner)
	exists, err := client.Exists(context.Background(), "paulo-bl")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestExistsNoSuchUser(t *testing.T) {
	runner := newFakeRunner()
	runner.respond("id", "", &ExitError{Cmd: "id -u ghost", Code: 1, Stderr: "no such user"})

	client := NewHostClient(runner)
	exists, err := client.Exists(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateInstallsKeyAndResolvesHome(t *testing.T) {
	runner := newFakeRunner()
	runner.respond("getent", passwdEntry, nil)

	client := NewHostClient(runner)
	res, err := client.Create(context.Background(), "paulo-bl", "ssh-rsa AAAA key")
	require.NoError(t, err)
	assert.Equal(t, "/home/paulo-bl", res.HomeDir)

	assert.Equal(t,
		[]string{"useradd", "getent", "install", "tee", "chown", "chmod", "getent"},
		runner.paths())

	// useradd must receive an argument vector, never a shell line.
	useradd := runner.calls[0]
	assert.Equal(t, []string{"--create-home", "--shell", "/bin/bash", "paulo-bl"}, useradd.Args)

	// The key is delivered over stdin with a trailing newline.
	var tee Command
	for _, c := range runner.calls {
		if c.Path == "tee" {
			tee = c
		}
	}
	assert.Equal(t, "ssh-rsa AAAA key\n", string(tee.Stdin))
}

func TestCreateConflictSurfacesErrIdentityExists(t *testing.T) {
	runner := newFakeRunner()
	runner.respond("useradd", "", &ExitError{
		Cmd:    "useradd paulo-bl",
		Code:   9,
		Stderr: "useradd: user 'paulo-bl' already exists",
	})

	client := NewHostClient(runner)
	_, err := client.Create(context.Background(), "paulo-bl", "ssh-rsa AAAA")
	assert.ErrorIs(t, err, ErrIdentityExists)

	// Nothing beyond useradd should have run.
	assert.Equal(t, []string{"useradd"}, runner.paths())
}

func TestDeleteKillsProcessesFirst(t *testing.T) {
	runner := newFakeRunner()

	client := NewHostClient(runner)
	require.NoError(t, client.Delete(context.Background(), "paulo-bl"))

	assert.Equal(t, []string{"pkill", "userdel"}, runner.paths())
	assert.Equal(t, []string{"--remove", "paulo-bl"}, runner.calls[1].Args)
}

func TestDeleteToleratesNoProcesses(t *testing.T) {
	runner := newFakeRunner()
	runner.respond("pkill", "", &ExitError{Cmd: "pkill -KILL -u paulo-bl", Code: 1})

	client := NewHostClient(runner)
	require.NoError(t, client.Delete(context.Background(), "paulo-bl"))
	assert.Equal(t, []string{"pkill", "userdel"}, runner.paths())
}

func TestAppendAuthorizedKeyMalformedPasswd(t *testing.T) {
	runner := newFakeRunner()
	runner.respond("getent", "garbage", nil)

	client := NewHostClient(runner)
	err := client.AppendAuthorizedKey(context.Background(), "paulo-bl", "ssh-rsa AAAA")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed passwd entry")
}

func TestShellQuote(t *testing.T) {
	cmd := Command{Path: "useradd", Args: []string{"evil; rm -rf /", "$(whoami)"}}
	quoted := quoteCommand(cmd)
	assert.Equal(t, `'useradd' 'evil; rm -rf /' '$(whoami)'`, quoted)

	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
}
