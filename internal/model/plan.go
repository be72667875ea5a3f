package model

// Stage change actions.
const (
	ActionCreate   = "CREATE"
	ActionUpdate   = "UPDATE"
	ActionDelete   = "DELETE"
	ActionRecreate = "RECREATE" // stack stranded in ROLLBACK_COMPLETE
	ActionNoOp     = "NOOP"
)

// Plan is a calculated execution plan over stages.
type Plan struct {
	Metadata *PlanMetadata  `yaml:"metadata" json:"metadata"`
	Changes  []*StageChange `yaml:"changes" json:"changes"`
	Summary  *PlanSummary   `yaml:"summary" json:"summary"`
}

type PlanMetadata struct {
	Timestamp   string `yaml:"timestamp" json:"timestamp"`
	Project     string `yaml:"project" json:"project"`
	PriorSerial int    `yaml:"priorSerial" json:"priorSerial"`
}

// StageChange describes what will happen to one stage.
type StageChange struct {
	Stage     string                    `yaml:"stage" json:"stage"`
	StackName string                    `yaml:"stackName" json:"stackName"`
	Action    string                    `yaml:"action" json:"action"`
	Reason    string                    `yaml:"reason" json:"reason"`
	Diff      map[string]*ParameterDiff `yaml:"diff" json:"diff"`
	Desired   *Stage                    `yaml:"-" json:"-"`
	Prior     *DeploymentRecord         `yaml:"-" json:"-"`
}

type ParameterDiff struct {
	Before string `yaml:"before" json:"before"`
	After  string `yaml:"after" json:"after"`
	Action string `yaml:"action" json:"action"` // "create", "update", "delete"
}

type PlanSummary struct {
	Create   int `yaml:"create" json:"create"`
	Update   int `yaml:"update" json:"update"`
	Delete   int `yaml:"delete" json:"delete"`
	Recreate int `yaml:"recreate" json:"recreate"`
	NoOp     int `yaml:"noop" json:"noop"`
}
