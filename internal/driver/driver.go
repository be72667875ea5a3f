package driver

import (
	"context"
	"time"
)

// Stack status values, following CloudFormation's vocabulary. Drivers that do
// not talk to CloudFormation still report these so the engine has one set of
// terminal states to reason about.
const (
	StatusCreateComplete   = "CREATE_COMPLETE"
	StatusUpdateComplete   = "UPDATE_COMPLETE"
	StatusRollbackComplete = "ROLLBACK_COMPLETE"
	StatusDeleteComplete   = "DELETE_COMPLETE"
	StatusCreateFailed     = "CREATE_FAILED"
	StatusUpdateFailed     = "UPDATE_FAILED"
	StatusDeleteFailed     = "DELETE_FAILED"
)

// ApplyRequest asks a driver to create or update one stack.
type ApplyRequest struct {
	StackName    string
	TemplateBody string
	Parameters   map[string]string
	Capabilities []string
	Tags         map[string]string
}

// ApplyResult reports the terminal outcome of an apply.
type ApplyResult struct {
	StackID string
	Status  string
	Outputs map[string]string
	// Exports maps export names to values for outputs this stack exports.
	Exports map[string]string
	// NoChange is set when the driver found nothing to do.
	NoChange bool
}

// Description is the observed state of a stack.
type Description struct {
	Exists     bool
	StackID    string
	StackName  string
	Status     string
	StatusText string
	Parameters map[string]string
	Outputs    map[string]string
	Exports    map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Driver applies stage stacks against a target environment. Apply blocks
// until the stack reaches a terminal status and must be safe to call again
// for a stack it already created (create-or-update semantics).
type Driver interface {
	Describe(ctx context.Context, stackName string) (*Description, error)
	Apply(ctx context.Context, req *ApplyRequest) (*ApplyResult, error)
	Delete(ctx context.Context, stackName string) error
}

// Rollback reports whether a status means CloudFormation gave up and rolled
// the stack back. Such a stack cannot be updated; it must be deleted and
// recreated.
func Rollback(status string) bool {
	return status == StatusRollbackComplete
}
