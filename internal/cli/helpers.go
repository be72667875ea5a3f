package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/viper"

	"github.com/stagehand-io/stagehand/internal/driver"
	"github.com/stagehand-io/stagehand/internal/manifest"
	"github.com/stagehand-io/stagehand/internal/model"
	"github.com/stagehand-io/stagehand/internal/registry"
	"github.com/stagehand-io/stagehand/internal/state"
)

// project bundles everything a command needs: the manifest, the resolved
// stages, and the state backend for this project directory.
type project struct {
	dir      string
	manifest *model.Manifest
	stages   []*model.Stage
	backend  state.Backend
}

// loadProject reads the manifest and templates from the configured directory.
func loadProject() (*project, error) {
	dir, err := filepath.Abs(viper.GetString("dir"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project directory: %w", err)
	}

	loader := manifest.NewLoader(dir)
	m, err := loader.LoadManifest(manifest.DefaultManifestFile)
	if err != nil {
		return nil, err
	}

	stages, err := loader.ResolveStages(m)
	if err != nil {
		return nil, err
	}

	backend, err := state.NewBackend(m.Backend, dir)
	if err != nil {
		return nil, err
	}

	return &project{dir: dir, manifest: m, stages: stages, backend: backend}, nil
}

// region returns the effective region: flag and environment win over manifest.
func (p *project) region() string {
	if r := viper.GetString("region"); r != "" {
		return r
	}
	return p.manifest.Region
}

func (p *project) profile() string {
	if pr := viper.GetString("profile"); pr != "" {
		return pr
	}
	return p.manifest.Profile
}

// loadDriver builds the configured stack driver.
func (p *project) loadDriver(ctx context.Context) (driver.Driver, error) {
	name := viper.GetString("driver")
	reg := registry.New(registry.Options{Region: p.region(), Profile: p.profile()})
	if err := reg.Load(ctx, name); err != nil {
		return nil, err
	}
	return reg.Get(name)
}

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
)

func actionSymbol(action string) string {
	switch action {
	case model.ActionCreate:
		return "+"
	case model.ActionDelete:
		return "-"
	case model.ActionRecreate:
		return "-/+"
	case model.ActionNoOp:
		return " "
	default:
		return "~"
	}
}

func actionColor(action string) string {
	switch action {
	case model.ActionCreate:
		return colorGreen
	case model.ActionDelete:
		return colorRed
	case model.ActionUpdate, model.ActionRecreate:
		return colorYellow
	default:
		return colorReset
	}
}

// renderPlanChanges prints the detailed change list for a plan.
func renderPlanChanges(plan *model.Plan) {
	for _, change := range plan.Changes {
		if change.Action == model.ActionNoOp {
			continue
		}
		color := actionColor(change.Action)
		symbol := actionSymbol(change.Action)

		fmt.Printf("\n%s  # stage %s will be %s (%s)%s\n", color, change.Stage, change.Action, change.Reason, colorReset)
		fmt.Printf("%s  %s stack %q {\n", color, symbol, change.StackName)
		renderParameterDiff(change.Diff, color)
		fmt.Printf("%s  }%s\n", color, colorReset)
	}
}

// renderParameterDiff prints structured parameter diffs in a stable order.
func renderParameterDiff(diff map[string]*model.ParameterDiff, color string) {
	keys := make([]string, 0, len(diff))
	for k := range diff {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		d := diff[key]
		switch d.Action {
		case "create":
			fmt.Printf("\033[32m      + %s = %q\033[0m\n", key, d.After)
		case "delete":
			fmt.Printf("\033[31m      - %s = %q\033[0m\n", key, d.Before)
		case "update":
			fmt.Printf("\033[33m      ~ %s = %q -> %q\033[0m\n", key, d.Before, d.After)
		default:
			fmt.Printf("%s        %s = %q%s\n", color, key, d.After, colorReset)
		}
	}
}

// renderPlanSummary prints the plan summary counts.
func renderPlanSummary(plan *model.Plan) {
	fmt.Println("\nPlan Summary:")
	fmt.Printf("  Create:   %d\n", plan.Summary.Create)
	fmt.Printf("  Update:   %d\n", plan.Summary.Update)
	fmt.Printf("  Delete:   %d\n", plan.Summary.Delete)
	fmt.Printf("  Recreate: %d\n", plan.Summary.Recreate)
	fmt.Printf("  NoOp:     %d\n", plan.Summary.NoOp)
}

// hasWork reports whether the plan contains anything beyond no-ops.
func hasWork(plan *model.Plan) bool {
	return plan.Summary.Create+plan.Summary.Update+plan.Summary.Delete+plan.Summary.Recreate > 0
}

// confirm asks the operator a yes/no question on stdin.
func confirm(prompt string) bool {
	fmt.Printf("%s (y/n): ", prompt)
	var response string
	fmt.Scanln(&response)
	return response == "y" || response == "yes"
}
