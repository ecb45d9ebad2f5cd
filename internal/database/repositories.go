package database

import (
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/campaign-automation/internal/database/sqlite"
)

// Repositories holds all repository instances
type Repositories struct {
	Rules         *sqlite.RuleRepository
	Alerts        *sqlite.AlertRepository
	Campaigns     *sqlite.CampaignRepository
	Notifications *sqlite.NotificationRepository
}

// NewRepositories creates all repository instances
func NewRepositories(db *sqlx.DB, log *logrus.Logger) *Repositories {
	return &Repositories{
		Rules:         sqlite.NewRuleRepository(db, log),
		Alerts:        sqlite.NewAlertRepository(db, log),
		Campaigns:     sqlite.NewCampaignRepository(db, log),
		Notifications: sqlite.NewNotificationRepository(db, log),
	}
}
