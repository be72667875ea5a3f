package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/stagehand-io/stagehand/internal/driver"
	"github.com/stagehand-io/stagehand/internal/model"
)

// DriftKind classifies a detected divergence between recorded and live state.
type DriftKind string

const (
	DriftVanished   DriftKind = "vanished"   // recorded stack no longer exists
	DriftParameters DriftKind = "parameters" // live parameters differ from record
	DriftOutputs    DriftKind = "outputs"    // live outputs differ from record
	DriftStatus     DriftKind = "status"     // stack is in a rollback or failed state
)

// Drift describes one divergence found for a stage.
type Drift struct {
	Stage     string
	StackName string
	Kind      DriftKind
	Detail    string
}

// DetectDrift compares every applied deployment record against the live
// environment and reports divergences. It never mutates state; RefreshState
// writes the live values back, and a deploy reconciles the stacks.
func (e *Engine) DetectDrift(ctx context.Context, st *model.State) ([]*Drift, error) {
	var drifts []*Drift
	for _, rec := range st.Records {
		if rec.Status == model.StatusPending {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("drift detection cancelled: %w", err)
		}

		live, err := e.drv.Describe(ctx, rec.StackName)
		if err != nil {
			return nil, fmt.Errorf("failed to describe stack %s: %w", rec.StackName, err)
		}

		if !live.Exists {
			drifts = append(drifts, &Drift{
				Stage:     rec.Stage,
				StackName: rec.StackName,
				Kind:      DriftVanished,
				Detail:    "stack recorded as deployed but not found in environment",
			})
			continue
		}

		if driver.Rollback(live.Status) || failedStatus(live.Status) {
			drifts = append(drifts, &Drift{
				Stage:     rec.Stage,
				StackName: rec.StackName,
				Kind:      DriftStatus,
				Detail:    fmt.Sprintf("stack status is %s", live.Status),
			})
		}

		if diff := describeMapDiff(rec.Parameters, live.Parameters); diff != "" {
			drifts = append(drifts, &Drift{
				Stage:     rec.Stage,
				StackName: rec.StackName,
				Kind:      DriftParameters,
				Detail:    diff,
			})
		}
		if diff := describeMapDiff(rec.Outputs, live.Outputs); diff != "" {
			drifts = append(drifts, &Drift{
				Stage:     rec.Stage,
				StackName: rec.StackName,
				Kind:      DriftOutputs,
				Detail:    diff,
			})
		}
	}
	return drifts, nil
}

// RefreshState reconciles deployment records with the live environment:
// records for vanished stacks are dropped, live parameters, outputs, and
// exports replace the recorded ones, and rollback or failed stack statuses
// land on the record. Returns the number of records touched. The caller
// persists the state.
func (e *Engine) RefreshState(ctx context.Context, st *model.State) (int, error) {
	recs := append([]*model.DeploymentRecord(nil), st.Records...)
	updated := 0
	for _, rec := range recs {
		if rec.Status == model.StatusPending {
			continue
		}
		if err := ctx.Err(); err != nil {
			return updated, fmt.Errorf("refresh cancelled: %w", err)
		}

		live, err := e.drv.Describe(ctx, rec.StackName)
		if err != nil {
			return updated, fmt.Errorf("failed to describe stack %s: %w", rec.StackName, err)
		}

		if !live.Exists {
			if st.Remove(rec.Stage) {
				updated++
			}
			continue
		}

		changed := false
		if describeMapDiff(rec.Parameters, live.Parameters) != "" {
			rec.Parameters = live.Parameters
			changed = true
		}
		if !mapsEqual(rec.Outputs, live.Outputs) {
			rec.Outputs = live.Outputs
			changed = true
		}
		if !mapsEqual(rec.Exports, live.Exports) {
			rec.Exports = live.Exports
			changed = true
		}
		if status := refreshedStatus(live.Status); status != rec.Status {
			rec.Status = status
			changed = true
		}
		if changed {
			rec.UpdatedAt = time.Now().UTC()
			updated++
		}
	}

	if updated > 0 {
		rebuildOutputs(st)
		st.Serial++
	}
	return updated, nil
}

func refreshedStatus(liveStatus string) string {
	switch {
	case driver.Rollback(liveStatus):
		return model.StatusRolledBack
	case failedStatus(liveStatus):
		return model.StatusFailed
	default:
		return model.StatusApplied
	}
}

func failedStatus(status string) bool {
	switch status {
	case driver.StatusCreateFailed, driver.StatusUpdateFailed, driver.StatusDeleteFailed:
		return true
	}
	return false
}

// describeMapDiff renders the keys whose values differ between recorded and
// live maps. Keys present live but never recorded are ignored; CloudFormation
// reports defaulted parameters the manifest never set.
func describeMapDiff(recorded, live map[string]string) string {
	var changed []string
	for k, v := range recorded {
		if lv, ok := live[k]; !ok || lv != v {
			changed = append(changed, k)
		}
	}
	if len(changed) == 0 {
		return ""
	}
	sort.Strings(changed)
	out := "changed keys:"
	for _, k := range changed {
		out += " " + k
	}
	return out
}
