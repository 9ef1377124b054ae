package n8n

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTemplate() *Template {
	return &Template{
		Nodes: []Node{
			{
				Name:        "Slack Trigger",
				Type:        "n8n-nodes-base.slackTrigger",
				TypeVersion: 1,
				Parameters:  map[string]any{"trigger": []any{"app_mention"}},
			},
			{
				Name:        "Run Bot",
				Type:        "n8n-nodes-base.ssh",
				TypeVersion: 1,
				Parameters:  map[string]any{"command": "./run.sh", "cwd": "/placeholder"},
			},
		},
		Connections:         map[string]any{"Slack Trigger": map[string]any{"main": []any{}}},
		SSHCredentialSlot:   Slot{Node: "Run Bot", Key: "sshPrivateKey"},
		SlackCredentialSlot: Slot{Node: "Slack Trigger", Key: "slackApi"},
		WorkingDirSlot:      Slot{Node: "Run Bot", Key: "cwd"},
	}
}

func TestRenderSubstitutesAllSlots(t *testing.T) {
	tpl := testTemplate()

	wf, err := tpl.Render(Substitutions{
		WorkflowName:    "bot-bl",
		WorkingDir:      "/home/paulo-bl",
		SSHCredential:   &CredentialSlot{ID: "cred-ssh", Name: "bl-ssh"},
		SlackCredential: &CredentialSlot{ID: "cred-slack", Name: "bl-slack"},
	})
	require.NoError(t, err)

	assert.Equal(t, "bot-bl", wf.Name)
	assert.Equal(t, CredentialSlot{ID: "cred-slack", Name: "bl-slack"}, wf.Nodes[0].Credentials["slackApi"])
	assert.Equal(t, CredentialSlot{ID: "cred-ssh", Name: "bl-ssh"}, wf.Nodes[1].Credentials["sshPrivateKey"])
	assert.Equal(t, "/home/paulo-bl", wf.Nodes[1].Parameters["cwd"])
}

func TestRenderWithoutSSHCredentialLeavesSlotEmpty(t *testing.T) {
	tpl := testTemplate()

	wf, err := tpl.Render(Substitutions{
		WorkflowName:    "bot-bl",
		WorkingDir:      "/home/paulo-bl",
		SlackCredential: &CredentialSlot{ID: "cred-slack", Name: "bl-slack"},
	})
	require.NoError(t, err)
	assert.Empty(t, wf.Nodes[1].Credentials)
}

func TestRenderDoesNotMutateTemplate(t *testing.T) {
	tpl := testTemplate()

	_, err := tpl.Render(Substitutions{
		WorkflowName:    "bot-one",
		WorkingDir:      "/home/one",
		SlackCredential: &CredentialSlot{ID: "c1", Name: "one"},
	})
	require.NoError(t, err)

	assert.Equal(t, "/placeholder", tpl.Nodes[1].Parameters["cwd"])
	assert.Empty(t, tpl.Nodes[0].Credentials)
}

func TestRenderRequiresSlackCredential(t *testing.T) {
	_, err := testTemplate().Render(Substitutions{WorkflowName: "bot-bl"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slack credential")
}

func TestRenderUnknownSlotNode(t *testing.T) {
	tpl := testTemplate()
	tpl.WorkingDirSlot = Slot{Node: "Missing", Key: "cwd"}

	_, err := tpl.Render(Substitutions{
		WorkflowName:    "bot-bl",
		WorkingDir:      "/home/paulo-bl",
		SlackCredential: &CredentialSlot{ID: "c", Name: "n"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in template")
}

func TestLoadTemplate(t *testing.T) {
	raw, err := json.Marshal(testTemplate())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "template.json")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	tpl, err := LoadTemplate(path)
	require.NoError(t, err)
	assert.Len(t, tpl.Nodes, 2)
	assert.Equal(t, "cwd", tpl.WorkingDirSlot.Key)
}

func TestLoadTemplateEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"nodes":[]}`), 0o644))

	_, err := LoadTemplate(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no nodes")
}
