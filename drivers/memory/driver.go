// Package memory implements an in-process driver. It tracks stacks in a map
// and is the engine's test double; nothing real is provisioned.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stagehand-io/stagehand/internal/driver"
)

type stackRecord struct {
	id         string
	status     string
	template   string
	parameters map[string]string
	createdAt  time.Time
	updatedAt  time.Time
}

// Driver is an in-memory driver.Driver.
type Driver struct {
	mu     sync.Mutex
	stacks map[string]*stackRecord
	serial int

	// FailOn makes Apply fail for the named stacks.
	FailOn map[string]error
	// RollbackOn makes Apply leave the named stacks in ROLLBACK_COMPLETE.
	RollbackOn map[string]bool
	// StackOutputs pre-seeds the outputs Apply reports per stack name.
	StackOutputs map[string]map[string]string
	// StackExports pre-seeds the exports Apply reports per stack name.
	StackExports map[string]map[string]string

	applyCalls  map[string]int
	deleteCalls map[string]int
}

func New() *Driver {
	return &Driver{
		stacks:      make(map[string]*stackRecord),
		applyCalls:  make(map[string]int),
		deleteCalls: make(map[string]int),
	}
}

func (d *Driver) Describe(ctx context.Context, stackName string) (*driver.Description, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.stacks[stackName]
	if !ok {
		return &driver.Description{Exists: false, StackName: stackName}, nil
	}
	return &driver.Description{
		Exists:     true,
		StackID:    rec.id,
		StackName:  stackName,
		Status:     rec.status,
		Parameters: copyMap(rec.parameters),
		Outputs:    copyMap(d.StackOutputs[stackName]),
		Exports:    copyMap(d.StackExports[stackName]),
		CreatedAt:  rec.createdAt,
		UpdatedAt:  rec.updatedAt,
	}, nil
}

func (d *Driver) Apply(ctx context.Context, req *driver.ApplyRequest) (*driver.ApplyResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.applyCalls[req.StackName]++

	if err, ok := d.FailOn[req.StackName]; ok && err != nil {
		return nil, err
	}

	if d.RollbackOn[req.StackName] {
		d.serial++
		rec := &stackRecord{
			id:         fmt.Sprintf("memory-stack-%d", d.serial),
			status:     driver.StatusRollbackComplete,
			template:   req.TemplateBody,
			parameters: copyMap(req.Parameters),
			createdAt:  time.Now().UTC(),
			updatedAt:  time.Now().UTC(),
		}
		d.stacks[req.StackName] = rec
		return nil, fmt.Errorf("stack %s rolled back", req.StackName)
	}

	rec, exists := d.stacks[req.StackName]
	if exists && rec.status == driver.StatusRollbackComplete {
		return nil, fmt.Errorf("stack %s is in ROLLBACK_COMPLETE and cannot be updated", req.StackName)
	}

	status := driver.StatusCreateComplete
	if exists {
		if rec.template == req.TemplateBody && mapsEqual(rec.parameters, req.Parameters) {
			return &driver.ApplyResult{
				StackID:  rec.id,
				Status:   rec.status,
				Outputs:  copyMap(d.StackOutputs[req.StackName]),
				Exports:  copyMap(d.StackExports[req.StackName]),
				NoChange: true,
			}, nil
		}
		status = driver.StatusUpdateComplete
		rec.template = req.TemplateBody
		rec.parameters = copyMap(req.Parameters)
		rec.status = status
		rec.updatedAt = time.Now().UTC()
	} else {
		d.serial++
		rec = &stackRecord{
			id:         fmt.Sprintf("memory-stack-%d", d.serial),
			status:     status,
			template:   req.TemplateBody,
			parameters: copyMap(req.Parameters),
			createdAt:  time.Now().UTC(),
			updatedAt:  time.Now().UTC(),
		}
		d.stacks[req.StackName] = rec
	}

	return &driver.ApplyResult{
		StackID: rec.id,
		Status:  status,
		Outputs: copyMap(d.StackOutputs[req.StackName]),
		Exports: copyMap(d.StackExports[req.StackName]),
	}, nil
}

func (d *Driver) Delete(ctx context.Context, stackName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.deleteCalls[stackName]++
	delete(d.stacks, stackName)
	return nil
}

// ApplyCalls reports how many times Apply ran for a stack.
func (d *Driver) ApplyCalls(stackName string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.applyCalls[stackName]
}

// DeleteCalls reports how many times Delete ran for a stack.
func (d *Driver) DeleteCalls(stackName string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deleteCalls[stackName]
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
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
