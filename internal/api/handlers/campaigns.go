package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/frostdev-ops/campaign-automation/internal/core/automation"
	"github.com/frostdev-ops/campaign-automation/internal/database/models"
	apperrors "github.com/frostdev-ops/campaign-automation/pkg/errors"
	"github.com/frostdev-ops/campaign-automation/pkg/utils"
)

// dateLayout is the day format of metric uploads
const dateLayout = "2006-01-02"

type organizationRequest struct {
	Name string `json:"name" binding:"required"`
}

type campaignRequest struct {
	Name     string                    `json:"name" binding:"required"`
	Platform string                    `json:"platform" binding:"required"`
	Status   automation.CampaignStatus `json:"status" binding:"required"`
}

// PutOrganization creates or renames an organization
func (h *Handlers) PutOrganization(c *gin.Context) {
	var req organizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.Validation("bind organization", err))
		return
	}

	org := &models.Organization{ID: c.Param("org_id"), Name: req.Name}
	if err := h.campaigns.SaveOrganization(c.Request.Context(), org); err != nil {
		fail(c, err)
		return
	}
	utils.SendSuccess(c, org)
}

// ListCampaigns lists an organization's campaigns
func (h *Handlers) ListCampaigns(c *gin.Context) {
	campaigns, err := h.campaigns.ListCampaigns(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		fail(c, err)
		return
	}
	utils.SendSuccessWithMeta(c, campaigns, gin.H{"count": len(campaigns)})
}

// PutCampaign creates or updates a campaign of the organization
func (h *Handlers) PutCampaign(c *gin.Context) {
	var req campaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.Validation("bind campaign", err))
		return
	}
	switch req.Status {
	case automation.CampaignDraft, automation.CampaignActive, automation.CampaignPaused, automation.CampaignArchived:
	default:
		invalid(c, "put campaign", "unknown campaign status %q", req.Status)
		return
	}

	campaign := &automation.Campaign{
		ID:       c.Param("campaign_id"),
		OrgID:    c.Param("org_id"),
		Name:     req.Name,
		Platform: req.Platform,
		Status:   req.Status,
	}
	if err := h.campaigns.SaveCampaign(c.Request.Context(), campaign); err != nil {
		fail(c, err)
		return
	}
	utils.SendSuccess(c, campaign)
}

// PutDailyMetrics replaces one campaign's totals for one day
func (h *Handlers) PutDailyMetrics(c *gin.Context) {
	day, err := time.Parse(dateLayout, c.Param("date"))
	if err != nil {
		invalid(c, "put metrics", "date must be formatted as YYYY-MM-DD")
		return
	}

	var raw automation.RawMetrics
	if err := c.ShouldBindJSON(&raw); err != nil {
		fail(c, apperrors.Validation("bind metrics", err))
		return
	}
	if raw.Impressions < 0 || raw.Clicks < 0 || raw.Spend < 0 || raw.Conversions < 0 || raw.ConversionValue < 0 {
		invalid(c, "put metrics", "metric totals cannot be negative")
		return
	}

	ctx := c.Request.Context()
	if _, err := h.campaigns.GetCampaign(ctx, c.Param("org_id"), c.Param("campaign_id")); err != nil {
		fail(c, err)
		return
	}
	if err := h.campaigns.UpsertDailyMetrics(ctx, c.Param("campaign_id"), day, raw); err != nil {
		fail(c, err)
		return
	}
	utils.SendSuccess(c, gin.H{"campaign_id": c.Param("campaign_id"), "date": c.Param("date"), "metrics": raw})
}
