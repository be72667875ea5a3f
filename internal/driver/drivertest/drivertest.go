// Package drivertest holds the conformance suite every stack driver must
// pass. It exercises the full lifecycle a driver sees in production:
// Describe (missing) -> Apply (create) -> Describe -> Apply (no change) ->
// Apply (update) -> Delete -> Describe (gone).
package drivertest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagehand-io/stagehand/internal/driver"
)

// Factory builds a fresh driver against an empty environment.
type Factory func(t *testing.T) driver.Driver

// Conformance runs the shared driver contract against a factory.
func Conformance(t *testing.T, factory Factory) {
	t.Run("FullLifecycle", func(t *testing.T) {
		ctx := context.Background()
		drv := factory(t)

		desc, err := drv.Describe(ctx, "lifecycle-stack")
		require.NoError(t, err)
		assert.False(t, desc.Exists)

		req := &driver.ApplyRequest{
			StackName:    "lifecycle-stack",
			TemplateBody: "v1",
			Parameters:   map[string]string{"Size": "small"},
		}
		created, err := drv.Apply(ctx, req)
		require.NoError(t, err)
		assert.False(t, created.NoChange)
		assert.NotEmpty(t, created.StackID)
		assert.Equal(t, driver.StatusCreateComplete, created.Status)

		desc, err = drv.Describe(ctx, "lifecycle-stack")
		require.NoError(t, err)
		assert.True(t, desc.Exists)
		assert.Equal(t, "small", desc.Parameters["Size"])

		// Identical input is the idempotent re-apply case.
		unchanged, err := drv.Apply(ctx, req)
		require.NoError(t, err)
		assert.True(t, unchanged.NoChange)
		assert.Equal(t, created.StackID, unchanged.StackID)

		updated, err := drv.Apply(ctx, &driver.ApplyRequest{
			StackName:    "lifecycle-stack",
			TemplateBody: "v1",
			Parameters:   map[string]string{"Size": "large"},
		})
		require.NoError(t, err)
		assert.False(t, updated.NoChange)
		assert.Equal(t, driver.StatusUpdateComplete, updated.Status)

		require.NoError(t, drv.Delete(ctx, "lifecycle-stack"))

		desc, err = drv.Describe(ctx, "lifecycle-stack")
		require.NoError(t, err)
		assert.False(t, desc.Exists)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		ctx := context.Background()
		drv := factory(t)

		require.NoError(t, drv.Delete(ctx, "never-created"))
		require.NoError(t, drv.Delete(ctx, "never-created"))
	})
}
