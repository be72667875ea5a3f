package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagehand-io/stagehand/drivers/memory"
	"github.com/stagehand-io/stagehand/internal/driver"
	"github.com/stagehand-io/stagehand/internal/model"
)

func emptyState() *model.State {
	return &model.State{Version: 1, Lineage: "test"}
}

func TestCreatePlan_FreshProject(t *testing.T) {
	drv := memory.New()
	eng := New(drv)
	ctx := context.Background()

	plan, err := eng.CreatePlan(ctx, pipelineStages(), emptyState())
	require.NoError(t, err)

	require.Len(t, plan.Changes, 4)
	assert.Equal(t, 4, plan.Summary.Create)
	for _, c := range plan.Changes {
		assert.Equal(t, model.ActionCreate, c.Action)
	}
	// Changes come out in deploy order.
	assert.Equal(t, "network", plan.Changes[0].Stage)
	assert.Equal(t, "pipeline", plan.Changes[3].Stage)
}

func TestCreatePlan_RedeployUnchangedIsNoOp(t *testing.T) {
	drv := memory.New()
	eng := New(drv)
	ctx := context.Background()
	st := emptyState()

	stages := pipelineStages()
	plan, err := eng.CreatePlan(ctx, stages, st)
	require.NoError(t, err)
	require.NoError(t, eng.ApplyPlan(ctx, plan, st))

	plan, err = eng.CreatePlan(ctx, stages, st)
	require.NoError(t, err)
	assert.Empty(t, plan.Changes)
	assert.Equal(t, 4, plan.Summary.NoOp)
}

func TestCreatePlan_TemplateChange(t *testing.T) {
	drv := memory.New()
	eng := New(drv)
	ctx := context.Background()
	st := emptyState()

	stages := pipelineStages()
	plan, err := eng.CreatePlan(ctx, stages, st)
	require.NoError(t, err)
	require.NoError(t, eng.ApplyPlan(ctx, plan, st))

	stages[2].TemplateDigest = "changed"
	stages[2].TemplateBody = "changed"

	plan, err = eng.CreatePlan(ctx, stages, st)
	require.NoError(t, err)
	require.Len(t, plan.Changes, 1)
	assert.Equal(t, model.ActionUpdate, plan.Changes[0].Action)
	assert.Equal(t, "service", plan.Changes[0].Stage)
	assert.Equal(t, "template changed", plan.Changes[0].Reason)
}

func TestCreatePlan_ParameterChangeWithDiff(t *testing.T) {
	drv := memory.New()
	eng := New(drv)
	ctx := context.Background()
	st := emptyState()

	stages := pipelineStages()
	stages[2].Parameters = map[string]string{"DesiredCount": "2"}
	plan, err := eng.CreatePlan(ctx, stages, st)
	require.NoError(t, err)
	require.NoError(t, eng.ApplyPlan(ctx, plan, st))

	stages[2].Parameters = map[string]string{"DesiredCount": "4"}
	plan, err = eng.CreatePlan(ctx, stages, st)
	require.NoError(t, err)
	require.Len(t, plan.Changes, 1)
	assert.Equal(t, model.ActionUpdate, plan.Changes[0].Action)
	assert.Equal(t, "parameters changed", plan.Changes[0].Reason)

	diff := plan.Changes[0].Diff["DesiredCount"]
	require.NotNil(t, diff)
	assert.Equal(t, "update", diff.Action)
	assert.Equal(t, "2", diff.Before)
	assert.Equal(t, "4", diff.After)
}

func TestCreatePlan_RolledBackStackIsRecreated(t *testing.T) {
	drv := memory.New()
	drv.RollbackOn = map[string]bool{"demo-service": true}
	eng := New(drv)
	ctx := context.Background()
	st := emptyState()

	stages := pipelineStages()
	plan, err := eng.CreatePlan(ctx, stages, st)
	require.NoError(t, err)
	err = eng.ApplyPlan(ctx, plan, st)
	require.Error(t, err)

	// The failed stack now sits in ROLLBACK_COMPLETE. Let the next apply work.
	drv.RollbackOn = nil

	plan, err = eng.CreatePlan(ctx, stages, st)
	require.NoError(t, err)

	var serviceChange *model.StageChange
	for _, c := range plan.Changes {
		if c.Stage == "service" {
			serviceChange = c
		}
	}
	require.NotNil(t, serviceChange)
	assert.Equal(t, model.ActionRecreate, serviceChange.Action)
	assert.Contains(t, serviceChange.Reason, driver.StatusRollbackComplete)
}

func TestCreatePlan_AdoptsUntrackedStack(t *testing.T) {
	drv := memory.New()
	ctx := context.Background()

	// A stack exists in the environment but state has no record of it.
	_, err := drv.Apply(ctx, &driver.ApplyRequest{StackName: "demo-network", TemplateBody: "old"})
	require.NoError(t, err)

	eng := New(drv)
	plan, err := eng.CreatePlan(ctx, pipelineStages()[:1], emptyState())
	require.NoError(t, err)

	require.Len(t, plan.Changes, 1)
	assert.Equal(t, model.ActionUpdate, plan.Changes[0].Action)
	assert.Contains(t, plan.Changes[0].Reason, "adopting")
}

func TestCreatePlan_RemovedStageIsDeleted(t *testing.T) {
	drv := memory.New()
	eng := New(drv)
	ctx := context.Background()
	st := emptyState()

	stages := pipelineStages()
	plan, err := eng.CreatePlan(ctx, stages, st)
	require.NoError(t, err)
	require.NoError(t, eng.ApplyPlan(ctx, plan, st))

	// Drop the pipeline stage from the manifest.
	plan, err = eng.CreatePlan(ctx, stages[:3], st)
	require.NoError(t, err)

	require.Len(t, plan.Changes, 1)
	assert.Equal(t, model.ActionDelete, plan.Changes[0].Action)
	assert.Equal(t, "pipeline", plan.Changes[0].Stage)
	assert.Equal(t, 1, plan.Summary.Delete)
}

func TestCreatePlan_Targets(t *testing.T) {
	drv := memory.New()
	eng := New(drv)
	ctx := context.Background()

	plan, err := eng.CreatePlanWithTargets(ctx, pipelineStages(), emptyState(), []string{"service"})
	require.NoError(t, err)

	// service plus its transitive dependencies, not the pipeline.
	names := map[string]bool{}
	for _, c := range plan.Changes {
		names[c.Stage] = true
	}
	assert.Equal(t, map[string]bool{"network": true, "container": true, "service": true}, names)

	_, err = eng.CreatePlanWithTargets(ctx, pipelineStages(), emptyState(), []string{"nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in the manifest")
}
