// Package registry manages the lifecycle of stack drivers.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/stagehand-io/stagehand/drivers/cloudformation"
	"github.com/stagehand-io/stagehand/drivers/memory"
	"github.com/stagehand-io/stagehand/internal/driver"
)

// Options carries the environment settings drivers need at construction.
type Options struct {
	Region  string
	Profile string
}

type Registry struct {
	mu      sync.RWMutex
	opts    Options
	drivers map[string]driver.Driver
}

func New(opts Options) *Registry {
	return &Registry{
		opts:    opts,
		drivers: make(map[string]driver.Driver),
	}
}

// Load initializes and registers a built-in driver by name.
func (r *Registry) Load(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.drivers[name]; exists {
		return nil
	}

	var d driver.Driver
	switch name {
	case "cloudformation":
		cfn, err := cloudformation.New(ctx, r.opts.Region, r.opts.Profile)
		if err != nil {
			return err
		}
		d = cfn
	case "memory":
		d = memory.New()
	default:
		return fmt.Errorf("unknown driver: %s", name)
	}

	r.drivers[name] = d
	return nil
}

// Register installs a pre-built driver, replacing any existing registration.
func (r *Registry) Register(name string, d driver.Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[name] = d
}

// Get returns a registered driver.
func (r *Registry) Get(name string) (driver.Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.drivers[name]
	if !ok {
		return nil, fmt.Errorf("driver not loaded: %s", name)
	}
	return d, nil
}
