package dto

import "time"

type CreateBundleRequest struct {
	Name         string `json:"name" binding:"required"`
	SlackToken   string `json:"slack_token" binding:"required"`
	PublicKey    string `json:"public_key"`
	IdentityName string `json:"identity_name"`
	Description  string `json:"description"`
	Tool         string `json:"tool"`
	InviteUserID string `json:"invite_user_id"`
}

type ResourceRefInfo struct {
	Kind        string    `json:"kind"`
	ExternalID  string    `json:"external_id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

type BundleInfo struct {
	ID            string            `json:"id"`
	RequestedName string            `json:"requested_name"`
	IdentityName  string            `json:"identity_name"`
	Description   string            `json:"description,omitempty"`
	Status        string            `json:"status"`
	Refs          []ResourceRefInfo `json:"refs"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

type CreateBundleResponse struct {
	Bundle              BundleInfo `json:"bundle"`
	WorkflowURL         string     `json:"workflow_url,omitempty"`
	ChannelID           string     `json:"channel_id,omitempty"`
	ChannelName         string     `json:"channel_name,omitempty"`
	KeyProvidedByCaller bool       `json:"key_provided_by_caller"`
	ManualSSHCredential bool       `json:"manual_ssh_credential"`
	// PrivateKey is returned exactly once, here; no read endpoint ever
	// returns it again.
	PrivateKey string   `json:"private_key,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

type ListBundlesResponse struct {
	Bundles []BundleInfo `json:"bundles"`
	Count   int          `json:"count"`
}

type DeleteBundleResponse struct {
	Deleted   bool     `json:"deleted"`
	SubErrors []string `json:"sub_errors,omitempty"`
}
