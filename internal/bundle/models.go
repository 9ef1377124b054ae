// Package bundle implements the provisioning orchestrator: it drives the
// Slack, host-identity and n8n clients to create (or tear down) everything
// one bot needs, with best-effort compensation when a step fails.
package bundle

import (
	"time"
)

// Status is the bundle lifecycle state.
type Status string

const (
	StatusCreated  Status = "created"
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// RefKind identifies the kind of external resource a ResourceRef points at.
type RefKind string

const (
	RefIdentity        RefKind = "identity"
	RefSlackChannel    RefKind = "slack-channel"
	RefSlackCredential RefKind = "slack-credential"
	RefSSHCredential   RefKind = "ssh-credential"
	RefWorkflow        RefKind = "workflow"
)

// ResourceRef records one external resource created for a bundle. Refs are
// owned by the bundle and deleted (best effort) when it is deleted.
type ResourceRef struct {
	Kind        RefKind   `json:"kind"`
	ExternalID  string    `json:"external_id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Bundle is the aggregate of all resources provisioned for one bot.
type Bundle struct {
	ID            string
	RequestedName string
	IdentityName  string
	Description   string
	Refs          []ResourceRef
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Ref returns the first ref of the given kind, or nil.
func (b *Bundle) Ref(kind RefKind) *ResourceRef {
	for i := range b.Refs {
		if b.Refs[i].Kind == kind {
			return &b.Refs[i]
		}
	}
	return nil
}

// CreateRequest is an inbound provisioning request.
type CreateRequest struct {
	// Name is the short human-chosen bot name, [A-Za-z0-9]{1,20}.
	Name string
	// SlackToken is the bot OAuth token (xoxb-...).
	SlackToken string
	// PublicKey is an optional caller-supplied SSH public key. When set,
	// no key pair is generated and no SSH credential is created.
	PublicKey string
	// IdentityName optionally overrides the derived host account name.
	IdentityName string
	// Description is free text shown in the panel.
	Description string
	// Tool selects the workflow variant; empty means the default.
	Tool string
	// InviteUserID optionally names a Slack member to invite into the
	// bot's channel after provisioning.
	InviteUserID string
}

// CreateResult is returned once per successful creation. PrivateKey is only
// populated when a key pair was generated, and is never retrievable again
// through any read path.
type CreateResult struct {
	Bundle              *Bundle
	WorkflowURL         string
	ChannelID           string
	ChannelName         string
	KeyProvidedByCaller bool
	// ManualSSHCredential is set when the caller supplied their own key:
	// no SSH credential was created in n8n and the operator must wire
	// one up by hand.
	ManualSSHCredential bool
	PrivateKey          string
	Warnings            []string
}

// DeleteResult reports a bundle teardown. Failures lists per-ref delete
// errors; the local record is removed regardless.
type DeleteResult struct {
	Failures []CompensationFailure
}
