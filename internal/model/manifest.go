package model

// Manifest is the top-level deployment manifest (stagehand.yaml).
type Manifest struct {
	Project string       `yaml:"project"`
	Region  string       `yaml:"region"`
	Profile string       `yaml:"profile"`
	Backend *BackendSpec `yaml:"backend"`
	Stages  []*StageSpec `yaml:"stages"`
}

// StageSpec is the manifest entry for one stage, before template resolution.
type StageSpec struct {
	Name       string            `yaml:"name"`
	Template   string            `yaml:"template"`
	StackName  string            `yaml:"stackName"`
	Parameters map[string]string `yaml:"parameters"`
	DependsOn  []string          `yaml:"dependsOn"`
	Timeout    string            `yaml:"timeout"`
	Protected  bool              `yaml:"protected"`
}

// BackendSpec selects and configures a remote state backend.
type BackendSpec struct {
	Type    string            `yaml:"type"` // "local", "s3"
	Options map[string]string `yaml:"options"`
}
