package n8n

import (
	"encoding/json"
	"fmt"
	"os"
)

// Node is one workflow node in the n8n export format.
type Node struct {
	Name        string                    `json:"name"`
	Type        string                    `json:"type"`
	TypeVersion float64                   `json:"typeVersion"`
	Position    [2]int                    `json:"position"`
	Parameters  map[string]any            `json:"parameters"`
	Credentials map[string]CredentialSlot `json:"credentials,omitempty"`
}

// CredentialSlot references a stored credential from a node.
type CredentialSlot struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Workflow is the create-workflow payload.
type Workflow struct {
	Name        string         `json:"name"`
	Nodes       []Node         `json:"nodes"`
	Connections map[string]any `json:"connections"`
	Settings    map[string]any `json:"settings"`
}

// Slot names a substitution point in the template: the node that carries it
// and the key inside that node's credentials or parameters map.
type Slot struct {
	Node string `json:"node"`
	Key  string `json:"key"`
}

// Template is a workflow blueprint with named substitution points. Cloning
// never searches node arrays by type at runtime; the slots say exactly
// where the per-bot values go.
type Template struct {
	Nodes       []Node         `json:"nodes"`
	Connections map[string]any `json:"connections"`
	Settings    map[string]any `json:"settings"`

	SSHCredentialSlot   Slot `json:"sshCredentialSlot"`
	SlackCredentialSlot Slot `json:"slackCredentialSlot"`
	WorkingDirSlot      Slot `json:"workingDirSlot"`
}

// Substitutions are the per-bot values rendered into a template.
type Substitutions struct {
	WorkflowName    string
	WorkingDir      string
	SSHCredential   *CredentialSlot // nil when the caller supplied their own key
	SlackCredential *CredentialSlot
}

// LoadTemplate reads a template from a JSON file.
func LoadTemplate(path string) (*Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow template: %w", err)
	}
	var tpl Template
	if err := json.Unmarshal(raw, &tpl); err != nil {
		return nil, fmt.Errorf("parse workflow template %s: %w", path, err)
	}
	if len(tpl.Nodes) == 0 {
		return nil, fmt.Errorf("workflow template %s has no nodes", path)
	}
	return &tpl, nil
}

// Render produces a new workflow from the template. The template itself is
// never mutated; nodes are deep-copied before substitution.
func (t *Template) Render(sub Substitutions) (*Workflow, error) {
	if sub.SlackCredential == nil {
		return nil, fmt.Errorf("render %s: slack credential is required", sub.WorkflowName)
	}

	nodes, err := deepCopyNodes(t.Nodes)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", sub.WorkflowName, err)
	}
	byName := make(map[string]*Node, len(nodes))
	for i := range nodes {
		byName[nodes[i].Name] = &nodes[i]
	}

	if err := setCredential(byName, t.SlackCredentialSlot, sub.SlackCredential); err != nil {
		return nil, fmt.Errorf("render %s: %w", sub.WorkflowName, err)
	}
	// The SSH slot stays empty for caller-supplied keys; the operator
	// wires a credential in by hand afterwards.
	if sub.SSHCredential != nil {
		if err := setCredential(byName, t.SSHCredentialSlot, sub.SSHCredential); err != nil {
			return nil, fmt.Errorf("render %s: %w", sub.WorkflowName, err)
		}
	}

	node, ok := byName[t.WorkingDirSlot.Node]
	if !ok {
		return nil, fmt.Errorf("render %s: working-dir slot node %q not in template", sub.WorkflowName, t.WorkingDirSlot.Node)
	}
	if node.Parameters == nil {
		node.Parameters = make(map[string]any)
	}
	node.Parameters[t.WorkingDirSlot.Key] = sub.WorkingDir

	return &Workflow{
		Name:        sub.WorkflowName,
		Nodes:       nodes,
		Connections: t.Connections,
		Settings:    t.Settings,
	}, nil
}

func setCredential(byName map[string]*Node, slot Slot, cred *CredentialSlot) error {
	node, ok := byName[slot.Node]
	if !ok {
		return fmt.Errorf("credential slot node %q not in template", slot.Node)
	}
	if node.Credentials == nil {
		node.Credentials = make(map[string]CredentialSlot)
	}
	node.Credentials[slot.Key] = *cred
	return nil
}

func deepCopyNodes(nodes []Node) ([]Node, error) {
	raw, err := json.Marshal(nodes)
	if err != nil {
		return nil, fmt.Errorf("copy template nodes: %w", err)
	}
	var out []Node
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("copy template nodes: %w", err)
	}
	return out, nil
}
