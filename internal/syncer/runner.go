package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/christopherklint97/togglsync/internal/toggl"
)

// Prepared is the state a run derives before fetching anything.
type Prepared struct {
	Plan           SyncPlan
	WorkspaceID    int64
	AccountCreated time.Time
}

// RunReport summarizes a full run.
type RunReport struct {
	Plan        SyncPlan
	Incremental Result
	Gap         *Result
	Reverse     *ReverseResult
	// Aborted is set when a quota failure stopped the run before all phases ran.
	Aborted bool
	Elapsed time.Duration
}

// Success reports whether every phase that ran completed.
func (r *RunReport) Success() bool {
	if r.Aborted || !r.Incremental.Success {
		return false
	}
	return r.Gap == nil || r.Gap.Success
}

// Runner drives a full run: plan, incremental phase, gap phase, reverse sync.
type Runner struct {
	s *Session
	// WorkspaceID overrides the account's default workspace when non-zero.
	WorkspaceID int64
	// SkipReverse disables the reverse sync phase.
	SkipReverse bool
}

func NewRunner(s *Session) *Runner {
	return &Runner{s: s}
}

// Account loads the account creation time and the project and client directory, and picks
// the workspace: the configured one, else the account default, else the first listed.
func (rn *Runner) Account(ctx context.Context) (workspaceID int64, created time.Time) {
	log := rn.s.Logger
	workspaceID = rn.WorkspaceID

	me, err := rn.s.Source.Me(ctx)
	if err != nil {
		created = time.Date(2010, 1, 1, 0, 0, 0, 0, rn.s.Location)
		log.Warn("could not read account, assuming early creation date", "created", created.Format(time.DateOnly), "error", err)
	} else {
		created = me.CreatedAt.In(rn.s.Location)
		if workspaceID == 0 {
			workspaceID = me.DefaultWorkspaceID
		}
	}

	workspaces, err := rn.s.Source.Workspaces(ctx)
	if err != nil {
		log.Warn("could not list workspaces", "error", err)
	}
	if workspaceID == 0 && len(workspaces) > 0 {
		workspaceID = workspaces[0].ID
	}
	if len(workspaces) > 0 {
		dir, err := rn.s.Source.LoadDirectory(ctx, workspaces)
		if err != nil {
			log.Warn("could not load projects and clients", "error", err)
		} else {
			rn.s.Directory = dir
			projects, clients := dir.Len()
			log.Debug("loaded directory", "projects", projects, "clients", clients)
		}
	}
	return workspaceID, created
}

// Prepare loads the account and the store bounds and computes the plan.
func (rn *Runner) Prepare(ctx context.Context) (*Prepared, error) {
	p := &Prepared{}
	p.WorkspaceID, p.AccountCreated = rn.Account(ctx)

	latest, earliest, err := rn.s.StoreBounds(ctx)
	if err != nil {
		return nil, err
	}
	p.Plan = Plan(latest, earliest, p.AccountCreated, rn.s.now())
	return p, nil
}

// Run executes one full sync. Only failures that prevent planning are returned as errors;
// everything else is logged and reflected in the report.
func (rn *Runner) Run(ctx context.Context) (*RunReport, error) {
	log := rn.s.Logger
	started := time.Now()

	p, err := rn.Prepare(ctx)
	if err != nil {
		return nil, fmt.Errorf("planning sync: %w", err)
	}
	report := &RunReport{Plan: p.Plan}
	defer func() { report.Elapsed = time.Since(started) }()

	if p.Plan.Full {
		log.Info("store is empty, syncing from account creation", "range", p.Plan.Incremental.String())
	} else {
		log.Info("incremental sync", "range", p.Plan.Incremental.String())
	}

	exec := NewExecutor(rn.s)
	report.Incremental = exec.Execute(ctx, p.Plan.Incremental, p.WorkspaceID)
	if report.Incremental.Abort == AbortRun || errors.Is(report.Incremental.Err, context.Canceled) {
		report.Aborted = true
		return report, nil
	}

	if p.Plan.Gap != nil {
		log.Info("history gap detected, backfilling", "range", p.Plan.Gap.String())
		gap := exec.Execute(ctx, *p.Plan.Gap, p.WorkspaceID)
		report.Gap = &gap
		if gap.Abort == AbortRun || errors.Is(gap.Err, context.Canceled) {
			report.Aborted = true
			return report, nil
		}
	}

	if !rn.SkipReverse {
		rev, err := NewReverseSyncer(rn.s).Reconcile(ctx, p.WorkspaceID)
		if err != nil {
			log.Error("reverse sync failed", "error", err)
		}
		report.Reverse = &rev
	}

	return report, nil
}

var _ Source = (*toggl.Client)(nil)
