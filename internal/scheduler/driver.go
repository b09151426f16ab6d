// Package scheduler implements the batch driver that walks the enabled
// notification rules, decides which are due under their cron expressions,
// and hands each due rule to the dispatch engine. The driver owns no timer;
// an external scheduler invokes RunOnce on whatever cadence the deployment
// chooses, normally once a minute.
//
// Only one driver instance should run at a time. Concurrent runs against
// the same rule can double-send and collapse delivery records; mutual
// exclusion (a cron lock, a singleton job) is a deployment concern.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"pagenotify/internal/types"
)

// RuleSource loads the candidate rules for a run.
type RuleSource interface {
	ListEnabled(ctx context.Context) ([]types.NotificationRule, error)
}

// Dispatcher delivers one rule. It never returns; per-rule problems come
// back as the error string list.
type Dispatcher interface {
	DispatchRule(ctx context.Context, rule *types.NotificationRule) (sentUserIDs []int64, errs []string)
}

// RunPreparer is an optional hook invoked once at the start of a run,
// before any rule is dispatched. The render adapter uses it to reset its
// per-run purge bookkeeping.
type RunPreparer interface {
	BeginRun()
}

// RuleResult is the per-rule line of a run report.
type RuleResult struct {
	NotificationID int64
	Subject        string
	Due            bool
	Sent           int
	Errors         []string
}

// RunReport aggregates one RunOnce invocation.
type RunReport struct {
	RunID   string
	Started time.Time
	Rules   []RuleResult
	// Sent is the total count of recipients successfully delivered to
	// across all rules in this run.
	Sent int
	// Errors flattens every rule's error list, in rule order.
	Errors []string
}

// Driver evaluates rule schedules and dispatches due rules.
type Driver struct {
	rules      RuleSource
	dispatcher Dispatcher
	preparer   RunPreparer
	logger     types.Logger
}

// NewDriver creates a Driver. preparer may be nil.
func NewDriver(rules RuleSource, dispatcher Dispatcher, preparer RunPreparer, logger types.Logger) *Driver {
	return &Driver{
		rules:      rules,
		dispatcher: dispatcher,
		preparer:   preparer,
		logger:     logger,
	}
}

// cronParser accepts the standard five-field cron syntax plus the
// @hourly/@daily descriptors.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// dueAt reports whether a cron expression fires in the minute containing
// now. The next fire time is computed from one second before the top of
// that minute, so an expression matching the current minute exactly is due.
func dueAt(sched cron.Schedule, now time.Time) bool {
	windowStart := now.Truncate(time.Minute).Add(-time.Second)
	next := sched.Next(windowStart)
	return !next.After(now)
}

// RunOnce performs a single scheduling pass at now. It never fails:
// unparseable frequencies are logged and skipped, rule-level dispatch
// problems end up in the report's error list, and the only early exit is
// cancellation of ctx, which takes effect between rules.
func (d *Driver) RunOnce(ctx context.Context, now time.Time) RunReport {
	report := RunReport{
		RunID:   uuid.New().String(),
		Started: now,
	}
	logger := d.logger.With("run_id", report.RunID)

	rules, err := d.rules.ListEnabled(ctx)
	if err != nil {
		logger.Error("loading enabled rules", "error", err.Error())
		report.Errors = append(report.Errors, "loading enabled rules: "+err.Error())
		return report
	}
	logger.Info("scheduler run started", "rules", len(rules))

	if d.preparer != nil {
		d.preparer.BeginRun()
	}

	for i := range rules {
		rule := &rules[i]
		if err := ctx.Err(); err != nil {
			report.Errors = append(report.Errors, "run cancelled: "+err.Error())
			break
		}

		result := RuleResult{NotificationID: rule.ID, Subject: rule.Subject}

		sched, err := cronParser.Parse(rule.Frequency)
		if err != nil {
			// A bad frequency is an admin data problem, not a batch
			// failure. The rule sits out until the expression is fixed.
			logger.Warn("unparseable frequency, skipping rule",
				"notification_id", rule.ID, "frequency", rule.Frequency, "error", err.Error())
			report.Rules = append(report.Rules, result)
			continue
		}
		if !dueAt(sched, now) {
			report.Rules = append(report.Rules, result)
			continue
		}

		result.Due = true
		sent, errs := d.dispatcher.DispatchRule(ctx, rule)
		result.Sent = len(sent)
		result.Errors = errs

		report.Sent += len(sent)
		report.Errors = append(report.Errors, errs...)
		report.Rules = append(report.Rules, result)

		logger.Info("rule dispatched",
			"notification_id", rule.ID, "sent", len(sent), "errors", len(errs))
	}

	logger.Info("scheduler run finished", "sent", report.Sent, "errors", len(report.Errors))
	return report
}
