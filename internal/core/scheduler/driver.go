package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/campaign-automation/internal/core/alerts"
	"github.com/frostdev-ops/campaign-automation/internal/core/automation"
)

// Pass names a kind of scheduled pass
type Pass string

const (
	PassRules  Pass = "rules"
	PassAlerts Pass = "alerts"
)

// PassResult is how a pass ended
type PassResult string

const (
	PassCompleted PassResult = "completed"
	// PassLocked means another pass held the lock; no work was done
	PassLocked PassResult = "skipped"
	// PassFailed means the pass could not enumerate its work
	PassFailed PassResult = "failed"
)

// PassReport summarizes one pass for logs, metrics and the admin API
type PassReport struct {
	Pass          Pass                     `json:"pass"`
	Result        PassResult               `json:"result"`
	StartedAt     time.Time                `json:"started_at"`
	Duration      time.Duration            `json:"duration"`
	Organizations int                      `json:"organizations"`
	Evaluated     int                      `json:"evaluated"`
	Triggered     int                      `json:"triggered"`
	Skipped       int                      `json:"skipped"`
	Errors        int                      `json:"errors"`
	Sweep         *automation.SweepSummary `json:"sweep,omitempty"`
}

// OrganizationLister enumerates organizations with automation configured
type OrganizationLister interface {
	ListOrganizations(ctx context.Context) ([]string, error)
}

// PassObserver receives pass-level events
type PassObserver interface {
	PassCompleted(report PassReport)
	AlertTriggered(alertType alerts.AlertType)
}

type nopPassObserver struct{}

func (nopPassObserver) PassCompleted(PassReport)        {}
func (nopPassObserver) AlertTriggered(alerts.AlertType) {}

// Driver runs the rules and alerts passes. It holds no state between passes.
type Driver struct {
	orgs      OrganizationLister
	rules     automation.Store
	engine    *automation.Engine
	approvals *automation.ApprovalWorkflow
	alerts    alerts.Store
	evaluator *alerts.Evaluator
	lock      PassLock
	workers   int
	observer  PassObserver
	logger    *logrus.Logger
	now       func() time.Time
}

// DriverDeps are the collaborators of a Driver
type DriverDeps struct {
	Organizations OrganizationLister
	Rules         automation.Store
	Engine        *automation.Engine
	Approvals     *automation.ApprovalWorkflow
	Alerts        alerts.Store
	Evaluator     *alerts.Evaluator
	Lock          PassLock
}

func NewDriver(deps DriverDeps, workers int, logger *logrus.Logger) *Driver {
	if workers <= 0 {
		workers = 1
	}
	lock := deps.Lock
	if lock == nil {
		lock = NewLocalLock()
	}
	return &Driver{
		orgs:      deps.Organizations,
		rules:     deps.Rules,
		engine:    deps.Engine,
		approvals: deps.Approvals,
		alerts:    deps.Alerts,
		evaluator: deps.Evaluator,
		lock:      lock,
		workers:   workers,
		observer:  nopPassObserver{},
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetObserver registers a pass observer
func (d *Driver) SetObserver(o PassObserver) {
	if o == nil {
		o = nopPassObserver{}
	}
	d.observer = o
}

// SetClock replaces the driver's time source
func (d *Driver) SetClock(now func() time.Time) {
	d.now = now
}

// RunRulesPass sweeps expired pending actions, then evaluates every active
// rule of every organization.
func (d *Driver) RunRulesPass(ctx context.Context) PassReport {
	report := PassReport{Pass: PassRules, StartedAt: d.now()}
	release, ok := d.acquire(ctx, RulesPassLock, &report)
	if !ok {
		return d.finish(report)
	}
	defer release()

	now := report.StartedAt
	log := d.logger.WithField("pass", PassRules)

	sweep, err := d.approvals.ExpireStale(ctx, now)
	if err != nil {
		log.WithError(err).Error("Pending action expiry sweep failed")
		report.Errors++
	}
	report.Sweep = &sweep
	report.Errors += sweep.Errors

	orgs, err := d.orgs.ListOrganizations(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to list organizations")
		report.Result = PassFailed
		report.Errors++
		return d.finish(report)
	}
	report.Organizations = len(orgs)

	var rules []*automation.Rule
	for _, orgID := range orgs {
		orgRules, err := d.rules.ListActiveRules(ctx, orgID)
		if err != nil {
			log.WithError(err).WithField("org_id", orgID).Error("Failed to list rules")
			report.Errors++
			continue
		}
		rules = append(rules, orgRules...)
	}

	var mutex sync.Mutex
	d.runPool(len(rules), func(i int) {
		outcome, err := d.evaluateRule(ctx, rules[i], now)

		mutex.Lock()
		defer mutex.Unlock()
		report.Evaluated++
		switch {
		case err != nil:
			report.Errors++
		case outcome.Skipped:
			report.Skipped++
		default:
			report.Triggered += outcome.Triggered()
			report.Errors += outcome.Errors
		}
	})

	report.Result = PassCompleted
	return d.finish(report)
}

// evaluateRule contains a single rule's failure, including a panic
func (d *Driver) evaluateRule(ctx context.Context, rule *automation.Rule, now time.Time) (outcome *automation.RuleOutcome, err error) {
	log := d.logger.WithFields(logrus.Fields{"pass": PassRules, "rule_id": rule.ID, "org_id": rule.OrgID})
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic evaluating rule: %v", r)
			log.WithField("panic", r).Error("Rule evaluation panicked")
		}
	}()

	outcome, err = d.engine.EvaluateRule(ctx, rule, now)
	if err != nil {
		log.WithError(err).Error("Rule evaluation failed, retrying next tick")
	}
	return outcome, err
}

// RunAlertsPass evaluates every enabled alert of every organization
func (d *Driver) RunAlertsPass(ctx context.Context) PassReport {
	report := PassReport{Pass: PassAlerts, StartedAt: d.now()}
	release, ok := d.acquire(ctx, AlertsPassLock, &report)
	if !ok {
		return d.finish(report)
	}
	defer release()

	now := report.StartedAt
	log := d.logger.WithField("pass", PassAlerts)

	orgs, err := d.orgs.ListOrganizations(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to list organizations")
		report.Result = PassFailed
		report.Errors++
		return d.finish(report)
	}
	report.Organizations = len(orgs)

	var list []*alerts.Alert
	for _, orgID := range orgs {
		orgAlerts, err := d.alerts.ListEnabledAlerts(ctx, orgID)
		if err != nil {
			log.WithError(err).WithField("org_id", orgID).Error("Failed to list alerts")
			report.Errors++
			continue
		}
		list = append(list, orgAlerts...)
	}

	var mutex sync.Mutex
	d.runPool(len(list), func(i int) {
		outcome, err := d.evaluateAlert(ctx, list[i], now)

		mutex.Lock()
		defer mutex.Unlock()
		report.Evaluated++
		switch {
		case err != nil:
			report.Errors++
		case outcome.Skipped:
			report.Skipped++
		case outcome.Triggered:
			report.Triggered++
			d.observer.AlertTriggered(list[i].Type)
		}
	})

	report.Result = PassCompleted
	return d.finish(report)
}

func (d *Driver) evaluateAlert(ctx context.Context, alert *alerts.Alert, now time.Time) (outcome *alerts.Outcome, err error) {
	log := d.logger.WithFields(logrus.Fields{"pass": PassAlerts, "alert_id": alert.ID, "org_id": alert.OrgID})
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic evaluating alert: %v", r)
			log.WithField("panic", r).Error("Alert evaluation panicked")
		}
	}()

	outcome, err = d.evaluator.EvaluateAlert(ctx, alert, now)
	if err != nil {
		log.WithError(err).Error("Alert evaluation failed, retrying next tick")
	}
	return outcome, err
}

// RunRuleNow evaluates one rule immediately, outside any pass. Rate limiting
// and cooldown still apply.
func (d *Driver) RunRuleNow(ctx context.Context, orgID, ruleID string) (*automation.RuleOutcome, error) {
	rule, err := d.rules.GetRule(ctx, orgID, ruleID)
	if err != nil {
		return nil, err
	}
	return d.engine.EvaluateRule(ctx, rule, d.now())
}

func (d *Driver) acquire(ctx context.Context, name string, report *PassReport) (func(), bool) {
	release, ok, err := d.lock.TryAcquire(ctx, name)
	if err != nil {
		d.logger.WithError(err).WithField("pass", report.Pass).Error("Failed to acquire pass lock")
		report.Result = PassFailed
		report.Errors++
		return nil, false
	}
	if !ok {
		d.logger.WithField("pass", report.Pass).Info("Pass already running elsewhere, skipping")
		report.Result = PassLocked
		return nil, false
	}
	return release, true
}

// runPool calls fn(0..n-1) on at most d.workers goroutines
func (d *Driver) runPool(n int, fn func(i int)) {
	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := d.workers
	if n < workers {
		workers = n
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
			}
		}()
	}
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

func (d *Driver) finish(report PassReport) PassReport {
	report.Duration = d.now().Sub(report.StartedAt)
	if report.Duration < 0 {
		report.Duration = 0
	}
	d.observer.PassCompleted(report)

	d.logger.WithFields(logrus.Fields{
		"pass":          report.Pass,
		"result":        report.Result,
		"organizations": report.Organizations,
		"evaluated":     report.Evaluated,
		"triggered":     report.Triggered,
		"skipped":       report.Skipped,
		"errors":        report.Errors,
		"duration":      report.Duration,
	}).Info("Scheduled pass finished")
	return report
}
