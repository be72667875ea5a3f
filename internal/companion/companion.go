// Package companion validates the repository files a pipeline deployment
// depends on but CloudFormation never sees: the Dockerfile, the CodeBuild
// buildspec and the imagedefinitions artifact contract.
package companion

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Finding is one problem detected in a companion file.
type Finding struct {
	File    string
	Problem string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %s", f.File, f.Problem)
}

// Check inspects the companion files under dir and returns findings for
// anything that would break the pipeline at build or deploy time. A missing
// Dockerfile or buildspec is only a finding when the project has a pipeline
// stage; callers pass hasPipeline accordingly.
func Check(dir string, hasPipeline bool) []Finding {
	var findings []Finding

	findings = append(findings, checkDockerfile(dir, hasPipeline)...)
	findings = append(findings, checkBuildspec(dir, hasPipeline)...)
	findings = append(findings, checkImageDefinitionsFile(dir)...)
	return findings
}

// checkImageDefinitionsFile validates imagedefinitions.json when the project
// tracks one. The file is usually a build artifact, so absence is fine; a
// committed copy still has to honor the deploy action's contract.
func checkImageDefinitionsFile(dir string) []Finding {
	data, err := os.ReadFile(filepath.Join(dir, "imagedefinitions.json"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return []Finding{{File: "imagedefinitions.json", Problem: err.Error()}}
	}
	return CheckImageDefinitions(data, "")
}

func checkDockerfile(dir string, required bool) []Finding {
	path := filepath.Join(dir, "Dockerfile")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if required {
			return []Finding{{File: "Dockerfile", Problem: "not found; the build stage cannot produce an image without it"}}
		}
		return nil
	}
	if err != nil {
		return []Finding{{File: "Dockerfile", Problem: err.Error()}}
	}

	var findings []Finding
	hasFrom := false
	hasExpose := false
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		upper := strings.ToUpper(trimmed)
		if strings.HasPrefix(upper, "FROM ") {
			hasFrom = true
		}
		if strings.HasPrefix(upper, "EXPOSE ") {
			hasExpose = true
		}
	}
	if !hasFrom {
		findings = append(findings, Finding{File: "Dockerfile", Problem: "no FROM instruction"})
	}
	if !hasExpose {
		findings = append(findings, Finding{File: "Dockerfile",
			Problem: "no EXPOSE instruction; confirm the container listens on the port the target group probes"})
	}
	return findings
}

// buildspec is the subset of the CodeBuild buildspec format the checks read.
type buildspec struct {
	Version any `yaml:"version"`
	Phases  map[string]struct {
		Commands []string `yaml:"commands"`
	} `yaml:"phases"`
	Artifacts struct {
		Files []string `yaml:"files"`
	} `yaml:"artifacts"`
}

func checkBuildspec(dir string, required bool) []Finding {
	path := filepath.Join(dir, "buildspec.yml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		data, err = os.ReadFile(filepath.Join(dir, "buildspec.yaml"))
		if os.IsNotExist(err) {
			if required {
				return []Finding{{File: "buildspec.yml", Problem: "not found; CodeBuild has nothing to run"}}
			}
			return nil
		}
	}
	if err != nil {
		return []Finding{{File: "buildspec.yml", Problem: err.Error()}}
	}

	var spec buildspec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return []Finding{{File: "buildspec.yml", Problem: fmt.Sprintf("invalid YAML: %v", err)}}
	}

	var findings []Finding
	if spec.Version == nil {
		findings = append(findings, Finding{File: "buildspec.yml", Problem: "missing version key"})
	}
	if len(spec.Phases) == 0 {
		findings = append(findings, Finding{File: "buildspec.yml", Problem: "no phases defined"})
	}

	emitsImageDefs := false
	for _, f := range spec.Artifacts.Files {
		if strings.Contains(f, "imagedefinitions.json") || f == "**/*" {
			emitsImageDefs = true
		}
	}
	if !emitsImageDefs {
		findings = append(findings, Finding{File: "buildspec.yml",
			Problem: "artifacts do not include imagedefinitions.json; the ECS deploy action requires it"})
	}

	writesImageDefs := false
	for _, phase := range spec.Phases {
		for _, cmd := range phase.Commands {
			if strings.Contains(cmd, "imagedefinitions.json") {
				writesImageDefs = true
			}
		}
	}
	if emitsImageDefs && !writesImageDefs {
		findings = append(findings, Finding{File: "buildspec.yml",
			Problem: "no phase command writes imagedefinitions.json"})
	}

	return findings
}

// imageDefinition mirrors one entry of imagedefinitions.json.
type imageDefinition struct {
	Name     string `json:"name"`
	ImageURI string `json:"imageUri"`
}

// CheckImageDefinitions validates a rendered imagedefinitions.json, typically
// a build artifact rather than a tracked file. The container name must match
// the name in the service's task definition or the deploy action fails.
func CheckImageDefinitions(data []byte, containerName string) []Finding {
	var defs []imageDefinition
	if err := json.Unmarshal(data, &defs); err != nil {
		return []Finding{{File: "imagedefinitions.json", Problem: fmt.Sprintf("invalid JSON: %v", err)}}
	}
	if len(defs) == 0 {
		return []Finding{{File: "imagedefinitions.json", Problem: "empty; must list at least one container"}}
	}

	var findings []Finding
	matched := containerName == ""
	for i, d := range defs {
		if d.Name == "" {
			findings = append(findings, Finding{File: "imagedefinitions.json",
				Problem: fmt.Sprintf("entry %d has no name", i)})
		}
		if d.ImageURI == "" {
			findings = append(findings, Finding{File: "imagedefinitions.json",
				Problem: fmt.Sprintf("entry %d has no imageUri", i)})
		}
		if d.Name == containerName {
			matched = true
		}
	}
	if !matched {
		findings = append(findings, Finding{File: "imagedefinitions.json",
			Problem: fmt.Sprintf("no entry named %q; the deploy action matches on the task definition's container name", containerName)})
	}
	return findings
}
