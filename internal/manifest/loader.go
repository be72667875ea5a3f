package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stagehand-io/stagehand/internal/logging"
	"github.com/stagehand-io/stagehand/internal/model"
)

// DefaultManifestFile is the manifest name looked up in the project directory.
const DefaultManifestFile = "stagehand.yaml"

// Loader reads the deployment manifest and resolves its stages against their
// CloudFormation templates.
type Loader struct {
	projectDir string
}

func NewLoader(projectDir string) *Loader {
	return &Loader{projectDir: projectDir}
}

// LoadManifest reads and validates the manifest file.
func (l *Loader) LoadManifest(file string) (*model.Manifest, error) {
	if file == "" {
		file = DefaultManifestFile
	}
	path := filepath.Join(l.projectDir, file)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var m model.Manifest
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	if m.Project == "" {
		return nil, fmt.Errorf("manifest is missing 'project'")
	}
	if len(m.Stages) == 0 {
		return nil, fmt.Errorf("manifest declares no stages")
	}
	seen := map[string]bool{}
	for _, s := range m.Stages {
		if s.Name == "" {
			return nil, fmt.Errorf("manifest contains a stage without a name")
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("duplicate stage name %q", s.Name)
		}
		seen[s.Name] = true
		if s.Template == "" {
			return nil, fmt.Errorf("stage %q is missing 'template'", s.Name)
		}
	}
	for _, s := range m.Stages {
		for _, dep := range s.DependsOn {
			if !seen[dep] {
				return nil, fmt.Errorf("stage %q depends on unknown stage %q", s.Name, dep)
			}
		}
	}
	return &m, nil
}

// ResolveStages loads each stage's template and produces fully resolved
// stages: effective parameters, capabilities, imports and exports.
func (l *Loader) ResolveStages(m *model.Manifest) ([]*model.Stage, error) {
	stages := make([]*model.Stage, 0, len(m.Stages))
	for _, spec := range m.Stages {
		stage, err := l.resolveStage(spec)
		if err != nil {
			return nil, fmt.Errorf("stage %q: %w", spec.Name, err)
		}
		stages = append(stages, stage)
	}
	return stages, nil
}

func (l *Loader) resolveStage(spec *model.StageSpec) (*model.Stage, error) {
	path := filepath.Join(l.projectDir, spec.Template)
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}

	tpl, err := ParseTemplate(body)
	if err != nil {
		return nil, err
	}

	params, err := effectiveParameters(tpl, spec.Parameters)
	if err != nil {
		return nil, err
	}

	stackName := spec.StackName
	if stackName == "" {
		stackName = spec.Name
	}

	digest := sha256.Sum256(body)

	stage := &model.Stage{
		Name:           spec.Name,
		StackName:      stackName,
		TemplateFile:   spec.Template,
		TemplateBody:   string(body),
		TemplateDigest: hex.EncodeToString(digest[:]),
		Parameters:     params,
		Capabilities:   tpl.Capabilities(),
		DependsOn:      append([]string{}, spec.DependsOn...),
		Imports:        tpl.ResolveImports(stackName, params),
		Exports:        tpl.ResolveExports(stackName, params),
		Resources:      tpl.Resources,
		Timeout:        spec.Timeout,
		Protected:      spec.Protected,
	}
	logging.Debug("resolved stage", "stage", stage.Name, "stack", stage.StackName,
		"imports", len(stage.Imports), "exports", len(stage.Exports))
	return stage, nil
}

// effectiveParameters overlays manifest values on template defaults.
// Unknown manifest parameters and missing required parameters are errors.
func effectiveParameters(tpl *Template, values map[string]string) (map[string]string, error) {
	params := make(map[string]string, len(tpl.Parameters))
	for name, p := range tpl.Parameters {
		if p.HasDefault {
			params[name] = p.Default
		}
	}
	for name, v := range values {
		if _, ok := tpl.Parameters[name]; !ok {
			return nil, fmt.Errorf("parameter %q is not declared by the template", name)
		}
		params[name] = v
	}
	var missing []string
	for name := range tpl.Parameters {
		if _, ok := params[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing required parameters: %s", strings.Join(missing, ", "))
	}
	return params, nil
}

// LintStackNameParameters checks that every stack name a stage references
// through a *StackName parameter matches a stack deployed by an earlier stage.
// deployOrder is the resolved deployment order of stage names.
func LintStackNameParameters(stages []*model.Stage, deployOrder []string) []error {
	byName := make(map[string]*model.Stage, len(stages))
	for _, s := range stages {
		byName[s.Name] = s
	}

	var errs []error
	earlier := map[string]bool{} // stack names produced so far
	for _, name := range deployOrder {
		stage, ok := byName[name]
		if !ok {
			continue
		}
		for param, value := range stage.Parameters {
			if !strings.HasSuffix(param, "StackName") {
				continue
			}
			if !earlier[value] {
				errs = append(errs, fmt.Errorf(
					"stage %q parameter %s references stack %q, which is not created by an earlier stage",
					stage.Name, param, value))
			}
		}
		earlier[stage.StackName] = true
	}
	return errs
}
