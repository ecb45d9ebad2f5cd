package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/campaign-automation/internal/core/automation"
	"github.com/frostdev-ops/campaign-automation/internal/database/models"
	apperrors "github.com/frostdev-ops/campaign-automation/pkg/errors"
)

// DateLayout is the campaign_metrics.date format
const DateLayout = "2006-01-02"

// CampaignRepository serves campaign identity and daily metrics. It
// implements automation.CampaignRegistry and automation.MetricsStore.
type CampaignRepository struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func NewCampaignRepository(db *sqlx.DB, log *logrus.Logger) *CampaignRepository {
	return &CampaignRepository{
		db:  db,
		log: log,
	}
}

// SaveOrganization inserts or renames an organization
func (r *CampaignRepository) SaveOrganization(ctx context.Context, org *models.Organization) error {
	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO organizations (id, name, created_at)
		VALUES (:id, :name, :created_at)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`, org)
	if err != nil {
		return fmt.Errorf("failed to save organization: %w", err)
	}
	return nil
}

// SaveCampaign inserts or updates a campaign
func (r *CampaignRepository) SaveCampaign(ctx context.Context, c *automation.Campaign) error {
	res, err := r.db.ExecContext(ctx, `INSERT INTO campaigns (id, org_id, name, platform, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, platform = excluded.platform, status = excluded.status
		WHERE campaigns.org_id = excluded.org_id`,
		c.ID, c.OrgID, c.Name, c.Platform, string(c.Status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("campaign %s belongs to another organization: %w", c.ID, apperrors.ErrNotFound)
	}
	return nil
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, orgID string) ([]automation.Campaign, error) {
	var campaigns []automation.Campaign
	err := r.db.SelectContext(ctx, &campaigns,
		`SELECT id, org_id, name, platform, status FROM campaigns WHERE org_id = ? ORDER BY id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, nil
}

func (r *CampaignRepository) GetCampaign(ctx context.Context, orgID, campaignID string) (*automation.Campaign, error) {
	var c automation.Campaign
	err := r.db.GetContext(ctx, &c,
		`SELECT id, org_id, name, platform, status FROM campaigns WHERE id = ? AND org_id = ?`, campaignID, orgID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return &c, nil
}

// UpsertDailyMetrics replaces one campaign's totals for one day
func (r *CampaignRepository) UpsertDailyMetrics(ctx context.Context, campaignID string, day time.Time, raw automation.RawMetrics) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO campaign_metrics
		(campaign_id, date, impressions, clicks, spend, conversions, conversion_value)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(campaign_id, date) DO UPDATE SET
			impressions = excluded.impressions,
			clicks = excluded.clicks,
			spend = excluded.spend,
			conversions = excluded.conversions,
			conversion_value = excluded.conversion_value`,
		campaignID, day.Format(DateLayout), raw.Impressions, raw.Clicks, raw.Spend, raw.Conversions, raw.ConversionValue)
	if err != nil {
		return fmt.Errorf("failed to upsert metrics: %w", err)
	}
	return nil
}

// Aggregate sums daily rows for the campaigns over [start, end]. Dates are
// taken in the location of start and end.
func (r *CampaignRepository) Aggregate(ctx context.Context, campaignIDs []string, start, end time.Time) (automation.RawMetrics, error) {
	var raw automation.RawMetrics
	if len(campaignIDs) == 0 {
		return raw, nil
	}

	query, args, err := sqlx.In(`SELECT
			COALESCE(SUM(impressions), 0) AS impressions,
			COALESCE(SUM(clicks), 0) AS clicks,
			COALESCE(SUM(spend), 0) AS spend,
			COALESCE(SUM(conversions), 0) AS conversions,
			COALESCE(SUM(conversion_value), 0) AS conversion_value
		FROM campaign_metrics
		WHERE campaign_id IN (?) AND date >= ? AND date <= ?`,
		campaignIDs, start.Format(DateLayout), end.Format(DateLayout))
	if err != nil {
		return raw, fmt.Errorf("failed to build aggregate query: %w", err)
	}

	if err := r.db.GetContext(ctx, &raw, r.db.Rebind(query), args...); err != nil {
		return raw, fmt.Errorf("failed to aggregate metrics: %w", err)
	}
	return raw, nil
}
