package bundle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fleetops/botpanel/internal/identity"
	"github.com/fleetops/botpanel/internal/n8n"
	"github.com/fleetops/botpanel/internal/slack"
	"github.com/fleetops/botpanel/internal/sshkey"
)

var botNameRe = regexp.MustCompile(`^[A-Za-z0-9]{1,20}$`)

// SlackAPI is the slice of the Slack client the orchestrator needs.
type SlackAPI interface {
	ValidateToken(ctx context.Context, token string) (*slack.TokenInfo, error)
	CreateChannel(ctx context.Context, token, name string) (*slack.Channel, error)
	PostMessage(ctx context.Context, token, channelID, text string) error
	InviteMember(ctx context.Context, token, channelID, userID string) error
}

// AutomationAPI is the slice of the n8n client the orchestrator needs.
type AutomationAPI interface {
	CreateCredential(ctx context.Context, name, credType string, data map[string]any) (*n8n.Credential, error)
	DeleteCredential(ctx context.Context, id string) error
	CreateWorkflow(ctx context.Context, wf *n8n.Workflow) (*n8n.WorkflowRef, error)
	ActivateWorkflow(ctx context.Context, id string) error
	DeactivateWorkflow(ctx context.Context, id string) error
	DeleteWorkflow(ctx context.Context, id string) error
}

// Config carries everything the orchestrator reads at runtime. It is built
// once at startup; business logic never consults ambient globals.
type Config struct {
	// IdentityPrefix is prepended to the lowercased bot name to form the
	// host account name, e.g. "paulo-".
	IdentityPrefix string
	// ChannelPrefix is prepended to the lowercased bot name to form the
	// Slack channel name, e.g. "claude-bot-".
	ChannelPrefix string
	// WorkflowBaseURL is the n8n UI root used to build workflow links.
	WorkflowBaseURL string
}

// Service orchestrates bundle provisioning across the external clients.
type Service struct {
	cfg       Config
	store     Store
	validator *identity.Validator
	ident     identity.Client
	slack     SlackAPI
	auto      AutomationAPI

	// template is the default workflow blueprint; toolTemplates holds
	// per-tool variants selected by CreateRequest.Tool.
	template      *n8n.Template
	toolTemplates map[string]*n8n.Template

	// generateKey is swappable in tests; production uses sshkey.Generate.
	generateKey func() (*sshkey.KeyPair, error)
}

func NewService(cfg Config, store Store, validator *identity.Validator, ident identity.Client, slackAPI SlackAPI, auto AutomationAPI, template *n8n.Template) *Service {
	return &Service{
		cfg:           cfg,
		store:         store,
		validator:     validator,
		ident:         ident,
		slack:         slackAPI,
		auto:          auto,
		template:      template,
		toolTemplates: make(map[string]*n8n.Template),
		generateKey:   sshkey.Generate,
	}
}

// RegisterTemplate adds a workflow template variant selectable through
// CreateRequest.Tool.
func (s *Service) RegisterTemplate(tool string, tpl *n8n.Template) {
	s.toolTemplates[tool] = tpl
}

// compensator undoes one created resource during rollback.
type compensator struct {
	kind       RefKind
	externalID string
	undo       func(ctx context.Context) error
}

// CreateBundle runs the provisioning pipeline:
//
//  1. validate the request (no side effects on failure)
//  2. validate the Slack token (nothing created yet, plain abort)
//  3. create the Slack channel (failure is non-fatal)
//  4. resolve key material (caller-supplied or generated)
//  5. create the host identity (conflict falls back to key append)
//  6. create the SSH credential in n8n (skipped for caller keys)
//  7. create the Slack-token credential in n8n
//  8. clone the workflow template, inactive
//  9. persist the bundle record
//
// A failure at steps 5-8 rolls back, in reverse order, whichever n8n
// resources were already created. The host identity is deliberately never
// rolled back: a pre-existing account must survive a failed attempt. The
// Slack channel is likewise left in place (it may be wanted independently
// and Slack only supports archiving); the result and logs always name it.
//
// Known limitations: there is no locking around name uniqueness
// (two concurrent requests for the same name race, with the identity
// conflict fallback as the only net), no pipeline-wide deadline (each
// client applies its own call timeout), and no cancellation once started.
func (s *Service) CreateBundle(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	// Step 1: request shape, identity name and template. Pure validation,
	// before any remote call.
	identityName, template, err := s.validateRequest(req)
	if err != nil {
		return nil, err
	}

	// Step 2: messaging token.
	tokenInfo, err := s.slack.ValidateToken(ctx, req.SlackToken)
	if err != nil {
		return nil, err
	}
	slog.Info("Slack token validated", "team", tokenInfo.Team, "bot", req.Name)

	result := &CreateResult{KeyProvidedByCaller: req.PublicKey != ""}
	now := time.Now().UTC()
	bundle := &Bundle{
		ID:            uuid.New().String(),
		RequestedName: req.Name,
		IdentityName:  identityName,
		Description:   req.Description,
		Status:        StatusCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// Step 3: Slack channel. Scope and permission gaps are common here,
	// so failure only logs a warning and the pipeline continues.
	channelName := s.cfg.ChannelPrefix + strings.ToLower(req.Name)
	channel, err := s.slack.CreateChannel(ctx, req.SlackToken, channelName)
	if err != nil {
		slog.Warn("Slack channel creation failed, continuing without channel",
			"channel", channelName, "error", err)
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("slack channel %s could not be created: %v", channelName, err))
	} else {
		result.ChannelID = channel.ID
		result.ChannelName = channel.Name
		bundle.Refs = append(bundle.Refs, ResourceRef{
			Kind:        RefSlackChannel,
			ExternalID:  channel.ID,
			DisplayName: channel.Name,
			CreatedAt:   now,
		})
		if channel.Existed {
			slog.Info("Reusing existing Slack channel", "channel", channel.Name, "id", channel.ID)
		}
	}

	// Step 4: key material.
	publicKey := req.PublicKey
	var privateKey string
	if publicKey == "" {
		kp, err := s.generateKey()
		if err != nil {
			return nil, fmt.Errorf("generate key pair: %w", err)
		}
		publicKey = kp.PublicKey
		privateKey = kp.PrivateKey
	}

	var comps []compensator

	// Step 5: host identity. Never rolled back on later failures.
	homeDir, err := s.provisionIdentity(ctx, identityName, publicKey)
	if err != nil {
		return nil, s.rollback(ctx, "identity provisioning", err, comps)
	}
	bundle.Refs = append(bundle.Refs, ResourceRef{
		Kind:        RefIdentity,
		ExternalID:  identityName,
		DisplayName: identityName,
		CreatedAt:   now,
	})

	lowName := strings.ToLower(req.Name)

	// Step 6: SSH credential, only for generated keys. With a caller
	// key there is no private half to store; the operator configures
	// the credential manually and the result says so.
	var sshSlot *n8n.CredentialSlot
	if privateKey != "" {
		cred, err := s.auto.CreateCredential(ctx, lowName+"-ssh", n8n.CredentialTypeSSH, map[string]any{
			"privateKey": privateKey,
			"username":   identityName,
		})
		if err != nil {
			return nil, s.rollback(ctx, "SSH credential creation", err, comps)
		}
		comps = append(comps, compensator{
			kind:       RefSSHCredential,
			externalID: cred.ID,
			undo:       func(ctx context.Context) error { return s.auto.DeleteCredential(ctx, cred.ID) },
		})
		sshSlot = &n8n.CredentialSlot{ID: cred.ID, Name: cred.Name}
		bundle.Refs = append(bundle.Refs, ResourceRef{
			Kind:        RefSSHCredential,
			ExternalID:  cred.ID,
			DisplayName: cred.Name,
			CreatedAt:   now,
		})
	} else {
		result.ManualSSHCredential = true
	}

	// Step 7: Slack-token credential.
	slackCred, err := s.auto.CreateCredential(ctx, lowName+"-slack", n8n.CredentialTypeSlack, map[string]any{
		"accessToken": req.SlackToken,
	})
	if err != nil {
		return nil, s.rollback(ctx, "Slack credential creation", err, comps)
	}
	comps = append(comps, compensator{
		kind:       RefSlackCredential,
		externalID: slackCred.ID,
		undo:       func(ctx context.Context) error { return s.auto.DeleteCredential(ctx, slackCred.ID) },
	})
	bundle.Refs = append(bundle.Refs, ResourceRef{
		Kind:        RefSlackCredential,
		ExternalID:  slackCred.ID,
		DisplayName: slackCred.Name,
		CreatedAt:   now,
	})

	// Step 8: workflow, cloned from the template, created inactive.
	wf, err := template.Render(n8n.Substitutions{
		WorkflowName:    "bot-" + lowName,
		WorkingDir:      homeDir,
		SSHCredential:   sshSlot,
		SlackCredential: &n8n.CredentialSlot{ID: slackCred.ID, Name: slackCred.Name},
	})
	if err != nil {
		return nil, s.rollback(ctx, "workflow template rendering", err, comps)
	}
	wfRef, err := s.auto.CreateWorkflow(ctx, wf)
	if err != nil {
		return nil, s.rollback(ctx, "workflow creation", err, comps)
	}
	comps = append(comps, compensator{
		kind:       RefWorkflow,
		externalID: wfRef.ID,
		undo:       func(ctx context.Context) error { return s.auto.DeleteWorkflow(ctx, wfRef.ID) },
	})
	bundle.Refs = append(bundle.Refs, ResourceRef{
		Kind:        RefWorkflow,
		ExternalID:  wfRef.ID,
		DisplayName: wf.Name,
		CreatedAt:   now,
	})

	// Step 9: commit the record.
	if err := s.store.Insert(ctx, bundle); err != nil {
		return nil, s.rollback(ctx, "bundle persistence", err, comps)
	}

	result.Bundle = bundle
	result.WorkflowURL = s.workflowURL(wfRef.ID)
	result.PrivateKey = privateKey

	if result.ChannelID != "" {
		greeting := fmt.Sprintf("Bot %s is provisioned and ready to be activated.", req.Name)
		if err := s.slack.PostMessage(ctx, req.SlackToken, result.ChannelID, greeting); err != nil {
			slog.Warn("Failed to post greeting", "channel", result.ChannelID, "error", err)
		}
		if req.InviteUserID != "" {
			if err := s.slack.InviteMember(ctx, req.SlackToken, result.ChannelID, req.InviteUserID); err != nil {
				slog.Warn("Failed to invite member", "channel", result.ChannelID, "user", req.InviteUserID, "error", err)
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("could not invite %s to the channel: %v", req.InviteUserID, err))
			}
		}
	}

	slog.Info("Bundle provisioned",
		"bundle_id", bundle.ID,
		"identity", identityName,
		"workflow_id", wfRef.ID,
		"channel_id", result.ChannelID,
		"caller_key", result.KeyProvidedByCaller)
	return result, nil
}

// validateRequest checks request shape and resolves the identity name and
// workflow template.
func (s *Service) validateRequest(req CreateRequest) (string, *n8n.Template, error) {
	if !botNameRe.MatchString(req.Name) {
		return "", nil, &ValidationError{Field: "name", Reason: "must be 1-20 alphanumeric characters"}
	}
	if req.SlackToken == "" {
		return "", nil, &ValidationError{Field: "slack_token", Reason: "is required"}
	}
	if req.PublicKey != "" && !sshkey.ValidatePublicKey(req.PublicKey) {
		return "", nil, &ValidationError{Field: "public_key", Reason: "unrecognized key format; expected an OpenSSH public key (ssh-rsa, ssh-ed25519 or ecdsa-sha2-nistp*)"}
	}

	template := s.template
	if req.Tool != "" {
		tpl, ok := s.toolTemplates[req.Tool]
		if !ok {
			return "", nil, &ValidationError{Field: "tool", Reason: fmt.Sprintf("unknown tool %q", req.Tool)}
		}
		template = tpl
	}

	identityName := req.IdentityName
	if identityName == "" {
		identityName = s.cfg.IdentityPrefix + strings.ToLower(req.Name)
	}
	if err := s.validator.Validate(identityName); err != nil {
		var invalid *identity.InvalidNameError
		if errors.As(err, &invalid) {
			return "", nil, &ValidationError{Field: "identity_name", Reason: invalid.Reason}
		}
		return "", nil, err
	}
	return identityName, template, nil
}

// provisionIdentity creates the host account, falling back to appending the
// key when the account already exists.
func (s *Service) provisionIdentity(ctx context.Context, name, publicKey string) (string, error) {
	res, err := s.ident.Create(ctx, name, publicKey)
	if err == nil {
		return res.HomeDir, nil
	}
	if !errors.Is(err, identity.ErrIdentityExists) {
		return "", err
	}

	slog.Info("Identity already exists, appending authorized key", "identity", name)
	if err := s.ident.AppendAuthorizedKey(ctx, name, publicKey); err != nil {
		return "", err
	}
	// The conventional home path; pre-existing accounts were created the
	// same way.
	return path.Join("/home", name), nil
}

// rollback deletes already-created n8n resources in reverse creation order.
// Every deletion is attempted independently; failures are collected, never
// swallowed, and reported alongside the primary error.
func (s *Service) rollback(ctx context.Context, step string, primary error, comps []compensator) error {
	perr := &ProvisionError{Step: step, Err: primary}

	var failures []CompensationFailure
	for i := len(comps) - 1; i >= 0; i-- {
		c := comps[i]
		if err := c.undo(ctx); err != nil {
			slog.Error("Compensation failed", "kind", c.kind, "external_id", c.externalID, "error", err)
			failures = append(failures, CompensationFailure{
				Kind:       c.kind,
				ExternalID: c.externalID,
				Err:        err,
			})
			continue
		}
		slog.Info("Compensated resource", "kind", c.kind, "external_id", c.externalID)
		perr.Compensated = append(perr.Compensated, c.kind)
	}
	if len(failures) > 0 {
		perr.Compensation = &CompensationError{Failures: failures}
	}
	return perr
}

// Activate turns on the bundle's workflow and records the status change.
// Activating an already-active bundle is a no-op, not an error.
func (s *Service) Activate(ctx context.Context, id string) (*Bundle, error) {
	return s.setWorkflowState(ctx, id, StatusActive)
}

// Deactivate turns off the bundle's workflow and records the status change.
// Deactivating an already-inactive bundle is a no-op, not an error.
func (s *Service) Deactivate(ctx context.Context, id string) (*Bundle, error) {
	return s.setWorkflowState(ctx, id, StatusInactive)
}

func (s *Service) setWorkflowState(ctx context.Context, id string, target Status) (*Bundle, error) {
	b, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status == target {
		return b, nil
	}

	ref := b.Ref(RefWorkflow)
	if ref == nil {
		return nil, fmt.Errorf("bundle %s has no workflow", id)
	}

	if target == StatusActive {
		err = s.auto.ActivateWorkflow(ctx, ref.ExternalID)
	} else {
		err = s.auto.DeactivateWorkflow(ctx, ref.ExternalID)
	}
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateStatus(ctx, id, target); err != nil {
		return nil, err
	}
	b.Status = target

	slog.Info("Bundle status changed", "bundle_id", id, "status", target)
	return b, nil
}

// Delete tears a bundle down: every stored ref is deleted best-effort in
// reverse creation order, then the record is removed unconditionally. Stale
// upstream resources must never block removing the local record, so per-ref
// failures are collected and reported, not fatal. Slack channels are not
// deletable through the API and are left in place.
func (s *Service) Delete(ctx context.Context, id string) (*DeleteResult, error) {
	b, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &DeleteResult{}
	for i := len(b.Refs) - 1; i >= 0; i-- {
		ref := b.Refs[i]
		var err error
		switch ref.Kind {
		case RefWorkflow:
			err = s.auto.DeleteWorkflow(ctx, ref.ExternalID)
		case RefSlackCredential, RefSSHCredential:
			err = s.auto.DeleteCredential(ctx, ref.ExternalID)
		case RefIdentity:
			err = s.ident.Delete(ctx, ref.ExternalID)
		case RefSlackChannel:
			slog.Info("Leaving Slack channel in place", "channel", ref.DisplayName, "id", ref.ExternalID)
			continue
		}
		if err != nil {
			slog.Error("Failed to delete bundle resource",
				"bundle_id", id, "kind", ref.Kind, "external_id", ref.ExternalID, "error", err)
			result.Failures = append(result.Failures, CompensationFailure{
				Kind:       ref.Kind,
				ExternalID: ref.ExternalID,
				Err:        err,
			})
		}
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("remove bundle record %s: %w", id, err)
	}

	slog.Info("Bundle deleted", "bundle_id", id, "sub_errors", len(result.Failures))
	return result, nil
}

// Get returns one bundle.
func (s *Service) Get(ctx context.Context, id string) (*Bundle, error) {
	return s.store.GetByID(ctx, id)
}

// List returns all bundles.
func (s *Service) List(ctx context.Context) ([]Bundle, error) {
	return s.store.List(ctx)
}

func (s *Service) workflowURL(id string) string {
	base := strings.TrimRight(s.cfg.WorkflowBaseURL, "/")
	if base == "" {
		return ""
	}
	return base + "/workflow/" + id
}
