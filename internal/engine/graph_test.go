package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagehand-io/stagehand/internal/model"
)

func pipelineStages() []*model.Stage {
	return []*model.Stage{
		{
			Name:      "network",
			StackName: "demo-network",
			Exports:   []string{"demo-network-VpcId", "demo-network-PublicSubnets"},
		},
		{
			Name:      "container",
			StackName: "demo-container",
			Exports:   []string{"demo-container-RepositoryUri"},
		},
		{
			Name:      "service",
			StackName: "demo-service",
			Imports:   []string{"demo-network-VpcId", "demo-container-RepositoryUri"},
			Exports:   []string{"demo-service-ClusterName"},
		},
		{
			Name:      "pipeline",
			StackName: "demo-pipeline",
			Imports:   []string{"demo-service-ClusterName", "demo-container-RepositoryUri"},
		},
	}
}

func TestBuildGraph_OrderFromImports(t *testing.T) {
	g, err := BuildGraph(pipelineStages())
	require.NoError(t, err)

	order := g.DeployOrder()
	require.Equal(t, []string{"network", "container", "service", "pipeline"}, order)

	// Teardown is the exact reverse.
	assert.Equal(t, []string{"pipeline", "service", "container", "network"}, g.TeardownOrder())
}

func TestBuildGraph_Dependencies(t *testing.T) {
	g, err := BuildGraph(pipelineStages())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"network", "container"}, g.Dependencies("service"))
	assert.Empty(t, g.Dependencies("network"))
	assert.ElementsMatch(t, []string{"service", "container", "network"}, g.TransitiveDeps("pipeline"))
}

func TestBuildGraph_ExplicitDependsOn(t *testing.T) {
	stages := []*model.Stage{
		{Name: "a", StackName: "a"},
		{Name: "b", StackName: "b", DependsOn: []string{"a"}},
	}
	g, err := BuildGraph(stages)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, g.DeployOrder())

	stages[1].DependsOn = []string{"missing"}
	_, err = BuildGraph(stages)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stage")
}

func TestBuildGraph_UnresolvedImport(t *testing.T) {
	stages := []*model.Stage{
		{Name: "service", StackName: "svc", Imports: []string{"nobody-exports-this"}},
	}
	_, err := BuildGraph(stages)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no stage exports")
}

func TestBuildGraph_DuplicateExport(t *testing.T) {
	stages := []*model.Stage{
		{Name: "a", StackName: "a", Exports: []string{"shared-Name"}},
		{Name: "b", StackName: "b", Exports: []string{"shared-Name"}},
	}
	_, err := BuildGraph(stages)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "produced by both")
}

func TestBuildGraph_Cycle(t *testing.T) {
	stages := []*model.Stage{
		{Name: "a", StackName: "a", Exports: []string{"a-Out"}, Imports: []string{"b-Out"}},
		{Name: "b", StackName: "b", Exports: []string{"b-Out"}, Imports: []string{"a-Out"}},
	}
	_, err := BuildGraph(stages)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestBuildGraph_SelfImport(t *testing.T) {
	stages := []*model.Stage{
		{Name: "a", StackName: "a", Exports: []string{"a-Out"}, Imports: []string{"a-Out"}},
	}
	_, err := BuildGraph(stages)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "its own export")
}
