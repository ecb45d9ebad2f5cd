package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/frostdev-ops/campaign-automation/internal/core/scheduler"
	apperrors "github.com/frostdev-ops/campaign-automation/pkg/errors"
	"github.com/frostdev-ops/campaign-automation/pkg/utils"
)

// RunRulesPass runs a rules pass under the same lock as the scheduler
func (h *Handlers) RunRulesPass(c *gin.Context) {
	h.runPass(c, h.passes.RunRulesPass)
}

// RunAlertsPass runs an alerts pass under the same lock as the scheduler
func (h *Handlers) RunAlertsPass(c *gin.Context) {
	h.runPass(c, h.passes.RunAlertsPass)
}

func (h *Handlers) runPass(c *gin.Context, run func(ctx context.Context) scheduler.PassReport) {
	// A disconnecting client must not abandon a pass halfway
	report := run(context.WithoutCancel(c.Request.Context()))

	switch report.Result {
	case scheduler.PassLocked:
		utils.SendErrorWithDetails(c, http.StatusConflict, "another pass is already running",
			string(apperrors.CategoryConflict), report)
	case scheduler.PassFailed:
		utils.SendErrorWithDetails(c, http.StatusInternalServerError, "pass failed",
			string(apperrors.CategoryPersistence), report)
	default:
		utils.SendSuccess(c, report)
	}
}
