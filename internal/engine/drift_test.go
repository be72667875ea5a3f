package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagehand-io/stagehand/drivers/memory"
	"github.com/stagehand-io/stagehand/internal/driver"
)

func TestDetectDrift_CleanEnvironment(t *testing.T) {
	drv := memory.New()
	eng := New(drv)
	ctx := context.Background()
	st := emptyState()

	plan, err := eng.CreatePlan(ctx, pipelineStages(), st)
	require.NoError(t, err)
	require.NoError(t, eng.ApplyPlan(ctx, plan, st))

	drifts, err := eng.DetectDrift(ctx, st)
	require.NoError(t, err)
	assert.Empty(t, drifts)
}

func TestDetectDrift_VanishedStack(t *testing.T) {
	drv := memory.New()
	eng := New(drv)
	ctx := context.Background()
	st := emptyState()

	stages := pipelineStages()[:1]
	plan, err := eng.CreatePlan(ctx, stages, st)
	require.NoError(t, err)
	require.NoError(t, eng.ApplyPlan(ctx, plan, st))

	// Someone deletes the stack outside of the tool.
	require.NoError(t, drv.Delete(ctx, "demo-network"))

	drifts, err := eng.DetectDrift(ctx, st)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, DriftVanished, drifts[0].Kind)
	assert.Equal(t, "network", drifts[0].Stage)
}

func TestRefreshState_AcceptsLiveValues(t *testing.T) {
	drv := memory.New()
	eng := New(drv)
	ctx := context.Background()
	st := emptyState()

	stages := pipelineStages()[:2]
	stages[0].Parameters = map[string]string{"VpcCidr": "10.0.0.0/16"}
	plan, err := eng.CreatePlan(ctx, stages, st)
	require.NoError(t, err)
	require.NoError(t, eng.ApplyPlan(ctx, plan, st))
	priorSerial := st.Serial

	// Out of band: the network stack gets a new parameter value and the
	// container stack is deleted entirely.
	_, err = drv.Apply(ctx, &driver.ApplyRequest{
		StackName:  "demo-network",
		Parameters: map[string]string{"VpcCidr": "172.16.0.0/16"},
	})
	require.NoError(t, err)
	require.NoError(t, drv.Delete(ctx, "demo-container"))

	updated, err := eng.RefreshState(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	assert.Nil(t, st.Record("container"))
	rec := st.Record("network")
	require.NotNil(t, rec)
	assert.Equal(t, "172.16.0.0/16", rec.Parameters["VpcCidr"])
	assert.Equal(t, priorSerial+1, st.Serial)

	// The refreshed state matches the environment again.
	drifts, err := eng.DetectDrift(ctx, st)
	require.NoError(t, err)
	assert.Empty(t, drifts)
}

func TestRefreshState_CleanStateUntouched(t *testing.T) {
	drv := memory.New()
	eng := New(drv)
	ctx := context.Background()
	st := emptyState()

	plan, err := eng.CreatePlan(ctx, pipelineStages()[:1], st)
	require.NoError(t, err)
	require.NoError(t, eng.ApplyPlan(ctx, plan, st))
	priorSerial := st.Serial

	updated, err := eng.RefreshState(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, 0, updated)
	assert.Equal(t, priorSerial, st.Serial)
}

func TestDetectDrift_ParameterChange(t *testing.T) {
	drv := memory.New()
	eng := New(drv)
	ctx := context.Background()
	st := emptyState()

	stages := pipelineStages()[:1]
	stages[0].Parameters = map[string]string{"VpcCidr": "10.0.0.0/16"}
	plan, err := eng.CreatePlan(ctx, stages, st)
	require.NoError(t, err)
	require.NoError(t, eng.ApplyPlan(ctx, plan, st))

	// An out-of-band update changes a parameter.
	_, err = drv.Apply(ctx, &driver.ApplyRequest{
		StackName:  "demo-network",
		Parameters: map[string]string{"VpcCidr": "172.16.0.0/16"},
	})
	require.NoError(t, err)

	drifts, err := eng.DetectDrift(ctx, st)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, DriftParameters, drifts[0].Kind)
	assert.Contains(t, drifts[0].Detail, "VpcCidr")
}
