package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stagehand-io/stagehand/internal/driver"
	"github.com/stagehand-io/stagehand/internal/logging"
	"github.com/stagehand-io/stagehand/internal/model"
)

const defaultParallelism = 4

// DefaultStageTimeout bounds a single stage apply, CloudFormation waiting
// included.
const DefaultStageTimeout = 60 * time.Minute

// ApplyEvent reports progress for one stage during apply or teardown.
type ApplyEvent struct {
	Stage    string
	Action   string
	Status   string // "started", "completed", "failed", "skipped"
	Duration time.Duration
	Error    error
}

// ApplyCallback receives apply events if set.
type ApplyCallback func(event ApplyEvent)

// ApplyPlan executes a plan and mutates the deployment records in st.
func (e *Engine) ApplyPlan(ctx context.Context, plan *model.Plan, st *model.State) error {
	return e.ApplyPlanWithCallback(ctx, plan, st, nil)
}

// ApplyPlanWithCallback executes a plan with progress events. Creates,
// updates and recreates run in parallel where dependencies allow; deletions
// of removed stages run afterwards, sequentially, in the order the plan
// listed them (the plan puts deletions in reverse record order).
func (e *Engine) ApplyPlanWithCallback(ctx context.Context, plan *model.Plan, st *model.State, callback ApplyCallback) error {
	var mu sync.Mutex
	var errs []error

	emit := func(event ApplyEvent) {
		if callback != nil {
			callback(event)
		}
	}

	var applies, deletes []*model.StageChange
	for _, change := range plan.Changes {
		if change.Action == model.ActionDelete {
			deletes = append(deletes, change)
		} else {
			applies = append(applies, change)
		}
	}

	if err := e.applyParallel(ctx, applies, st, &mu, emit); err != nil {
		if !e.ContinueOnError {
			rebuildOutputs(st)
			st.Serial++
			return err
		}
		errs = append(errs, err)
	}

	for _, change := range deletes {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("apply cancelled: %w", err)
		}
		start := time.Now()
		emit(ApplyEvent{Stage: change.Stage, Action: change.Action, Status: "started"})
		if err := e.deleteStage(ctx, change, st, &mu); err != nil {
			emit(ApplyEvent{Stage: change.Stage, Action: change.Action, Status: "failed", Duration: time.Since(start), Error: err})
			if !e.ContinueOnError {
				rebuildOutputs(st)
				st.Serial++
				return err
			}
			errs = append(errs, err)
			continue
		}
		emit(ApplyEvent{Stage: change.Stage, Action: change.Action, Status: "completed", Duration: time.Since(start)})
	}

	rebuildOutputs(st)
	st.Serial++

	if len(errs) > 0 {
		return fmt.Errorf("%d stage(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// applyParallel runs stage changes concurrently under a semaphore. A stage
// waits for every dependency that is also pending in this plan; when a
// dependency fails, its dependents are skipped.
func (e *Engine) applyParallel(ctx context.Context, changes []*model.StageChange, st *model.State, mu *sync.Mutex, emit func(ApplyEvent)) error {
	if len(changes) == 0 {
		return nil
	}

	changeMap := make(map[string]*model.StageChange, len(changes))
	producers := map[string]string{} // export name -> pending stage
	for _, c := range changes {
		changeMap[c.Stage] = c
		if c.Desired != nil {
			for _, exp := range c.Desired.Exports {
				producers[exp] = c.Stage
			}
		}
	}

	deps := make(map[string]map[string]bool, len(changes))
	for _, c := range changes {
		deps[c.Stage] = map[string]bool{}
		if c.Desired == nil {
			continue
		}
		for _, d := range c.Desired.DependsOn {
			if _, ok := changeMap[d]; ok {
				deps[c.Stage][d] = true
			}
		}
		for _, imp := range c.Desired.Imports {
			if producer, ok := producers[imp]; ok && producer != c.Stage {
				deps[c.Stage][producer] = true
			}
		}
	}

	parallelism := e.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}

	completed := map[string]bool{}
	failed := map[string]bool{}
	gateMu := sync.Mutex{}
	gate := sync.NewCond(&gateMu)
	var firstErr error
	var allErrs []error
	sem := make(chan struct{}, parallelism)

	var wg sync.WaitGroup
	for _, change := range changes {
		wg.Add(1)
		go func(c *model.StageChange) {
			defer wg.Done()

			gateMu.Lock()
			for {
				if firstErr != nil && !e.ContinueOnError {
					gateMu.Unlock()
					return
				}
				ready := true
				blocked := false
				for dep := range deps[c.Stage] {
					if failed[dep] {
						blocked = true
						break
					}
					if !completed[dep] {
						ready = false
						break
					}
				}
				if blocked {
					failed[c.Stage] = true
					gateMu.Unlock()
					emit(ApplyEvent{Stage: c.Stage, Action: c.Action, Status: "skipped",
						Error: fmt.Errorf("dependency failed")})
					gate.Broadcast()
					return
				}
				if ready {
					break
				}
				gate.Wait()
			}
			gateMu.Unlock()

			if err := ctx.Err(); err != nil {
				gateMu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("apply cancelled: %w", err)
				}
				gateMu.Unlock()
				gate.Broadcast()
				return
			}

			sem <- struct{}{}
			defer func() { <-sem }()

			start := time.Now()
			emit(ApplyEvent{Stage: c.Stage, Action: c.Action, Status: "started"})

			if err := e.applyStage(ctx, c, st, mu); err != nil {
				emit(ApplyEvent{Stage: c.Stage, Action: c.Action, Status: "failed", Duration: time.Since(start), Error: err})
				gateMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				allErrs = append(allErrs, err)
				failed[c.Stage] = true
				gateMu.Unlock()
				gate.Broadcast()
				return
			}

			emit(ApplyEvent{Stage: c.Stage, Action: c.Action, Status: "completed", Duration: time.Since(start)})

			gateMu.Lock()
			completed[c.Stage] = true
			gateMu.Unlock()
			gate.Broadcast()
		}(change)
	}

	wg.Wait()

	if e.ContinueOnError && len(allErrs) > 0 {
		return fmt.Errorf("%d stage(s) failed: %w", len(allErrs), errors.Join(allErrs...))
	}
	return firstErr
}

// applyStage runs one create/update/recreate and walks the deployment record
// through its lifecycle: pending on entry, applied, failed or rolled-back on
// exit. The record survives failures so the next plan can see what happened.
func (e *Engine) applyStage(ctx context.Context, change *model.StageChange, st *model.State, mu *sync.Mutex) error {
	stage := change.Desired
	logging.Debug("applying stage", "stage", stage.Name, "action", change.Action)

	timeout := DefaultStageTimeout
	if stage.Timeout != "" {
		if d, err := time.ParseDuration(stage.Timeout); err == nil && d > 0 {
			timeout = d
		}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	now := time.Now().UTC()
	rec := &model.DeploymentRecord{
		ID:             uuid.NewString(),
		Stage:          stage.Name,
		StackName:      stage.StackName,
		Parameters:     stage.Parameters,
		TemplateDigest: stage.TemplateDigest,
		Status:         model.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	mu.Lock()
	if prior := st.Record(stage.Name); prior != nil {
		rec.ID = prior.ID
		rec.CreatedAt = prior.CreatedAt
		rec.StackID = prior.StackID
	}
	st.Upsert(rec)
	mu.Unlock()

	fail := func(err error) error {
		mu.Lock()
		rec.Status = model.StatusFailed
		if rolledBack(err) {
			rec.Status = model.StatusRolledBack
		}
		rec.LastError = err.Error()
		rec.UpdatedAt = time.Now().UTC()
		mu.Unlock()
		return err
	}

	if change.Action == model.ActionRecreate {
		if err := e.drv.Delete(ctx, stage.StackName); err != nil {
			return fail(fmt.Errorf("failed to remove rolled-back stack %s: %w", stage.StackName, err))
		}
	}

	policy := DefaultRetryPolicy()
	var result *driver.ApplyResult
	err := RetryWithBackoff(ctx, policy, func() error {
		var applyErr error
		result, applyErr = e.drv.Apply(ctx, &driver.ApplyRequest{
			StackName:    stage.StackName,
			TemplateBody: stage.TemplateBody,
			Parameters:   stage.Parameters,
			Capabilities: stage.Capabilities,
			Tags:         map[string]string{"stagehand:stage": stage.Name},
		})
		return applyErr
	}, IsTransientError)
	if err != nil {
		return fail(fmt.Errorf("apply failed for stage %s: %w", stage.Name, err))
	}

	mu.Lock()
	rec.StackID = result.StackID
	rec.Outputs = result.Outputs
	rec.Exports = result.Exports
	rec.Status = model.StatusApplied
	rec.LastError = ""
	rec.UpdatedAt = time.Now().UTC()
	mu.Unlock()
	return nil
}

func (e *Engine) deleteStage(ctx context.Context, change *model.StageChange, st *model.State, mu *sync.Mutex) error {
	logging.Debug("deleting stage", "stage", change.Stage, "stack", change.StackName)

	policy := DefaultRetryPolicy()
	err := RetryWithBackoff(ctx, policy, func() error {
		return e.drv.Delete(ctx, change.StackName)
	}, IsTransientError)
	if err != nil {
		return fmt.Errorf("delete failed for stage %s: %w", change.Stage, err)
	}

	mu.Lock()
	st.Remove(change.Stage)
	mu.Unlock()
	return nil
}

// Teardown deletes recorded stages strictly sequentially in the given order,
// which callers derive as the exact reverse of deployment order. It stops at
// the first failure so dependencies are never deleted from under a dependent.
func (e *Engine) Teardown(ctx context.Context, st *model.State, order []string, callback ApplyCallback) error {
	emit := func(event ApplyEvent) {
		if callback != nil {
			callback(event)
		}
	}

	removed := 0
	for _, name := range order {
		rec := st.Record(name)
		if rec == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("teardown cancelled: %w", err)
		}

		start := time.Now()
		emit(ApplyEvent{Stage: name, Action: model.ActionDelete, Status: "started"})

		policy := DefaultRetryPolicy()
		err := RetryWithBackoff(ctx, policy, func() error {
			return e.drv.Delete(ctx, rec.StackName)
		}, IsTransientError)
		if err != nil {
			emit(ApplyEvent{Stage: name, Action: model.ActionDelete, Status: "failed", Duration: time.Since(start), Error: err})
			rec.Status = model.StatusFailed
			rec.LastError = err.Error()
			rec.UpdatedAt = time.Now().UTC()
			if removed > 0 {
				rebuildOutputs(st)
				st.Serial++
			}
			return fmt.Errorf("teardown failed at stage %s: %w", name, err)
		}

		st.Remove(name)
		removed++
		emit(ApplyEvent{Stage: name, Action: model.ActionDelete, Status: "completed", Duration: time.Since(start)})
	}

	if removed > 0 {
		rebuildOutputs(st)
		st.Serial++
	}
	return nil
}

// rebuildOutputs recomputes project outputs as the union of exports from
// applied stages.
func rebuildOutputs(st *model.State) {
	outputs := map[string]string{}
	for _, rec := range st.Records {
		if rec.Status != model.StatusApplied {
			continue
		}
		for k, v := range rec.Exports {
			outputs[k] = v
		}
	}
	st.Outputs = outputs
}

func rolledBack(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToUpper(err.Error())
	return strings.Contains(msg, "ROLLBACK") || strings.Contains(msg, "ROLLED BACK")
}
