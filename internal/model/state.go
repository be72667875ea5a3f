package model

import "time"

// Deployment record statuses. A record is created as pending on the first
// apply attempt, transitions on completion, and is retained until an explicit
// teardown removes it.
const (
	StatusPending    = "pending"
	StatusApplied    = "applied"
	StatusFailed     = "failed"
	StatusRolledBack = "rolled-back"
)

// State is the persistent deployment state for a project.
type State struct {
	Version int                 `yaml:"version" json:"version"`
	Serial  int                 `yaml:"serial" json:"serial"`
	Lineage string              `yaml:"lineage" json:"lineage"`
	Records []*DeploymentRecord `yaml:"records" json:"records"`
	Outputs map[string]string   `yaml:"outputs" json:"outputs"`
}

// DeploymentRecord tracks one applied stage.
type DeploymentRecord struct {
	ID             string            `yaml:"id" json:"id"`
	Stage          string            `yaml:"stage" json:"stage"`
	StackName      string            `yaml:"stackName" json:"stackName"`
	StackID        string            `yaml:"stackId" json:"stackId"`
	Parameters     map[string]string `yaml:"parameters" json:"parameters"`
	TemplateDigest string            `yaml:"templateDigest" json:"templateDigest"`
	Outputs        map[string]string `yaml:"outputs" json:"outputs"`
	Exports        map[string]string `yaml:"exports" json:"exports"`
	Status         string            `yaml:"status" json:"status"`
	CreatedAt      time.Time         `yaml:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time         `yaml:"updatedAt" json:"updatedAt"`
	LastError      string            `yaml:"lastError,omitempty" json:"lastError,omitempty"`
}

// Record returns the deployment record for a stage, or nil.
func (s *State) Record(stage string) *DeploymentRecord {
	for _, r := range s.Records {
		if r.Stage == stage {
			return r
		}
	}
	return nil
}

// Upsert replaces the record for rec.Stage or appends it.
func (s *State) Upsert(rec *DeploymentRecord) {
	for i, r := range s.Records {
		if r.Stage == rec.Stage {
			s.Records[i] = rec
			return
		}
	}
	s.Records = append(s.Records, rec)
}

// Remove deletes the record for a stage. It reports whether one existed.
func (s *State) Remove(stage string) bool {
	for i, r := range s.Records {
		if r.Stage == stage {
			s.Records = append(s.Records[:i], s.Records[i+1:]...)
			return true
		}
	}
	return false
}
