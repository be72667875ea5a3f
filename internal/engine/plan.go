package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/stagehand-io/stagehand/internal/driver"
	"github.com/stagehand-io/stagehand/internal/logging"
	"github.com/stagehand-io/stagehand/internal/model"
)

// Engine orchestrates the lifecycle of stages against a stack driver.
type Engine struct {
	drv driver.Driver

	// ContinueOnError lets apply continue past failed stages instead of
	// stopping at the first failure. Dependents of a failed stage are
	// skipped either way.
	ContinueOnError bool

	// Parallelism bounds concurrent stage applies.
	Parallelism int
}

func New(drv driver.Driver) *Engine {
	return &Engine{drv: drv, Parallelism: defaultParallelism}
}

// CreatePlan compares desired stages with both the deployment records and
// the live environment and produces per-stage actions in deployment order.
func (e *Engine) CreatePlan(ctx context.Context, stages []*model.Stage, st *model.State) (*model.Plan, error) {
	return e.CreatePlanWithTargets(ctx, stages, st, nil)
}

// CreatePlanWithTargets limits the plan to the named stages plus their
// transitive dependencies. Nil or empty targets plans everything.
func (e *Engine) CreatePlanWithTargets(ctx context.Context, stages []*model.Stage, st *model.State, targets []string) (*model.Plan, error) {
	logging.Debug("creating plan", "stages", len(stages), "records", len(st.Records), "targets", len(targets))

	g, err := BuildGraph(stages)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve stage dependencies: %w", err)
	}

	plan := &model.Plan{
		Metadata: &model.PlanMetadata{
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
			PriorSerial: st.Serial,
		},
		Changes: []*model.StageChange{},
		Summary: &model.PlanSummary{},
	}

	byName := make(map[string]*model.Stage, len(stages))
	for _, s := range stages {
		byName[s.Name] = s
	}

	var targetSet map[string]bool
	if len(targets) > 0 {
		targetSet = make(map[string]bool)
		for _, t := range targets {
			if _, ok := byName[t]; !ok {
				return nil, fmt.Errorf("target stage %q is not in the manifest", t)
			}
			targetSet[t] = true
			for _, dep := range g.TransitiveDeps(t) {
				targetSet[dep] = true
			}
		}
	}

	for _, name := range g.DeployOrder() {
		stage := byName[name]
		if targetSet != nil && !targetSet[name] {
			plan.Summary.NoOp++
			continue
		}

		change, err := e.planStage(ctx, stage, st.Record(name))
		if err != nil {
			return nil, err
		}
		if change.Action == model.ActionNoOp {
			plan.Summary.NoOp++
			continue
		}
		plan.Changes = append(plan.Changes, change)
		switch change.Action {
		case model.ActionCreate:
			plan.Summary.Create++
		case model.ActionUpdate:
			plan.Summary.Update++
		case model.ActionRecreate:
			plan.Summary.Recreate++
		}
	}

	// Records whose stage left the manifest become deletions, in reverse
	// deployment-record order so dependents go before their dependencies.
	for i := len(st.Records) - 1; i >= 0; i-- {
		rec := st.Records[i]
		if _, ok := byName[rec.Stage]; ok {
			continue
		}
		if targetSet != nil && !targetSet[rec.Stage] {
			continue
		}
		plan.Changes = append(plan.Changes, &model.StageChange{
			Stage:     rec.Stage,
			StackName: rec.StackName,
			Action:    model.ActionDelete,
			Reason:    "stage removed from manifest",
			Prior:     rec,
			Diff:      deleteDiff(rec.Parameters),
		})
		plan.Summary.Delete++
	}

	return plan, nil
}

// planStage decides the action for one stage from its record and the live
// stack. Re-apply of an unchanged stage is a no-op.
func (e *Engine) planStage(ctx context.Context, stage *model.Stage, rec *model.DeploymentRecord) (*model.StageChange, error) {
	change := &model.StageChange{
		Stage:     stage.Name,
		StackName: stage.StackName,
		Desired:   stage,
		Prior:     rec,
	}

	live, err := e.drv.Describe(ctx, stage.StackName)
	if err != nil {
		return nil, fmt.Errorf("failed to describe stack %s: %w", stage.StackName, err)
	}

	switch {
	case live.Exists && driver.Rollback(live.Status):
		change.Action = model.ActionRecreate
		change.Reason = fmt.Sprintf("stack is in %s and must be replaced", live.Status)
		change.Diff = createDiff(stage.Parameters)

	case !live.Exists:
		change.Action = model.ActionCreate
		if rec != nil {
			change.Reason = "stack missing from environment"
		}
		change.Diff = createDiff(stage.Parameters)

	case rec == nil:
		change.Action = model.ActionUpdate
		change.Reason = "stack exists but has no deployment record; adopting"
		change.Diff = parameterDiff(live.Parameters, stage.Parameters)

	case rec.TemplateDigest == stage.TemplateDigest && mapsEqual(rec.Parameters, stage.Parameters) && rec.Status == model.StatusApplied:
		change.Action = model.ActionNoOp

	default:
		change.Action = model.ActionUpdate
		if rec.TemplateDigest != stage.TemplateDigest {
			change.Reason = "template changed"
		} else if rec.Status != model.StatusApplied {
			change.Reason = fmt.Sprintf("previous deployment is %s", rec.Status)
		} else {
			change.Reason = "parameters changed"
		}
		change.Diff = parameterDiff(rec.Parameters, stage.Parameters)
	}

	return change, nil
}

func parameterDiff(prior, desired map[string]string) map[string]*model.ParameterDiff {
	diff := make(map[string]*model.ParameterDiff)

	for k, after := range desired {
		before, ok := prior[k]
		switch {
		case !ok:
			diff[k] = &model.ParameterDiff{After: after, Action: "create"}
		case before != after:
			diff[k] = &model.ParameterDiff{Before: before, After: after, Action: "update"}
		}
	}
	for k, before := range prior {
		if _, ok := desired[k]; !ok {
			diff[k] = &model.ParameterDiff{Before: before, Action: "delete"}
		}
	}
	return diff
}

func createDiff(params map[string]string) map[string]*model.ParameterDiff {
	diff := make(map[string]*model.ParameterDiff, len(params))
	for k, v := range params {
		diff[k] = &model.ParameterDiff{After: v, Action: "create"}
	}
	return diff
}

func deleteDiff(params map[string]string) map[string]*model.ParameterDiff {
	diff := make(map[string]*model.ParameterDiff, len(params))
	for k, v := range params {
		diff[k] = &model.ParameterDiff{Before: v, Action: "delete"}
	}
	return diff
}

func mapsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
