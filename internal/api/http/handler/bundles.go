package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/fleetops/botpanel/internal/api/http/dto"
	"github.com/fleetops/botpanel/internal/bundle"
	"github.com/fleetops/botpanel/internal/slack"
	"github.com/gin-gonic/gin"
)

type BundleHandler struct {
	bundles *bundle.Service
}

func NewBundleHandler(bundles *bundle.Service) *BundleHandler {
	return &BundleHandler{bundles: bundles}
}

func (h *BundleHandler) Create(c *gin.Context) {
	var req dto.CreateBundleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The pipeline is not cancellable: a caller hanging up must not
	// strand half-provisioned resources mid-step.
	ctx := context.WithoutCancel(c.Request.Context())

	result, err := h.bundles.CreateBundle(ctx, bundle.CreateRequest{
		Name:         req.Name,
		SlackToken:   req.SlackToken,
		PublicKey:    req.PublicKey,
		IdentityName: req.IdentityName,
		Description:  req.Description,
		Tool:         req.Tool,
		InviteUserID: req.InviteUserID,
	})
	if err != nil {
		var verr *bundle.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
		case errors.Is(err, slack.ErrInvalidToken):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			// ProvisionError.Error() already names the failed step
			// and anything that could not be cleaned up.
			slog.Error("Bundle provisioning failed", "name", req.Name, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, dto.CreateBundleResponse{
		Bundle:              toBundleInfo(result.Bundle),
		WorkflowURL:         result.WorkflowURL,
		ChannelID:           result.ChannelID,
		ChannelName:         result.ChannelName,
		KeyProvidedByCaller: result.KeyProvidedByCaller,
		ManualSSHCredential: result.ManualSSHCredential,
		PrivateKey:          result.PrivateKey,
		Warnings:            result.Warnings,
	})
}

func (h *BundleHandler) List(c *gin.Context) {
	bundles, err := h.bundles.List(c.Request.Context())
	if err != nil {
		slog.Error("Failed to list bundles", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list bundles"})
		return
	}

	infos := make([]dto.BundleInfo, len(bundles))
	for i := range bundles {
		infos[i] = toBundleInfo(&bundles[i])
	}
	c.JSON(http.StatusOK, dto.ListBundlesResponse{Bundles: infos, Count: len(infos)})
}

func (h *BundleHandler) Get(c *gin.Context) {
	b, err := h.bundles.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBundleInfo(b))
}

func (h *BundleHandler) Activate(c *gin.Context) {
	b, err := h.bundles.Activate(context.WithoutCancel(c.Request.Context()), c.Param("id"))
	if err != nil {
		h.respondLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBundleInfo(b))
}

func (h *BundleHandler) Deactivate(c *gin.Context) {
	b, err := h.bundles.Deactivate(context.WithoutCancel(c.Request.Context()), c.Param("id"))
	if err != nil {
		h.respondLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBundleInfo(b))
}

func (h *BundleHandler) Delete(c *gin.Context) {
	result, err := h.bundles.Delete(context.WithoutCancel(c.Request.Context()), c.Param("id"))
	if err != nil {
		h.respondLookupError(c, err)
		return
	}

	resp := dto.DeleteBundleResponse{Deleted: true}
	for _, f := range result.Failures {
		resp.SubErrors = append(resp.SubErrors, fmt.Sprintf("%s %s: %v", f.Kind, f.ExternalID, f.Err))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BundleHandler) respondLookupError(c *gin.Context, err error) {
	if errors.Is(err, bundle.ErrBundleNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "bundle not found"})
		return
	}
	slog.Error("Bundle operation failed", "bundle_id", c.Param("id"), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func toBundleInfo(b *bundle.Bundle) dto.BundleInfo {
	refs := make([]dto.ResourceRefInfo, len(b.Refs))
	for i, r := range b.Refs {
		refs[i] = dto.ResourceRefInfo{
			Kind:        string(r.Kind),
			ExternalID:  r.ExternalID,
			DisplayName: r.DisplayName,
			CreatedAt:   r.CreatedAt,
		}
	}
	return dto.BundleInfo{
		ID:            b.ID,
		RequestedName: b.RequestedName,
		IdentityName:  b.IdentityName,
		Description:   b.Description,
		Status:        string(b.Status),
		Refs:          refs,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}
