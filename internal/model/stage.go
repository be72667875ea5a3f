package model

// Stage is a fully resolved deployment stage: one CloudFormation stack with
// its template, parameter values, and the cross-stack values it consumes and
// produces.
type Stage struct {
	Name           string            `yaml:"name" json:"name"`
	StackName      string            `yaml:"stackName" json:"stackName"`
	TemplateFile   string            `yaml:"templateFile" json:"templateFile"`
	TemplateBody   string            `yaml:"-" json:"-"`
	TemplateDigest string            `yaml:"templateDigest" json:"templateDigest"`
	Parameters     map[string]string `yaml:"parameters" json:"parameters"`
	Capabilities   []string          `yaml:"capabilities" json:"capabilities"`
	DependsOn      []string          `yaml:"dependsOn" json:"dependsOn"`
	Imports        []string          `yaml:"imports" json:"imports"`
	Exports        []string          `yaml:"exports" json:"exports"`
	Resources      []*ResourceDecl   `yaml:"-" json:"-"`
	Timeout        string            `yaml:"timeout" json:"timeout"`
	Protected      bool              `yaml:"protected" json:"protected"`
}

// ResourceDecl is a single resource declaration inside a stage template:
// a type tag, its property mapping, and dependency edges to sibling
// declarations in the same stage.
type ResourceDecl struct {
	LogicalID  string         `yaml:"logicalId" json:"logicalId"`
	Type       string         `yaml:"type" json:"type"`
	Properties map[string]any `yaml:"properties" json:"properties"`
	DependsOn  []string       `yaml:"dependsOn" json:"dependsOn"`
}
