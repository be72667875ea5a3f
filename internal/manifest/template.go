package manifest

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stagehand-io/stagehand/internal/model"
)

// Template is the parsed view of a CloudFormation template: just enough
// structure to resolve cross-stack wiring, not a full CloudFormation model.
type Template struct {
	Parameters map[string]*TemplateParameter
	Resources  []*model.ResourceDecl
	Outputs    []*TemplateOutput

	// Import expressions found anywhere in the template. Entries may contain
	// ${Param} placeholders until ResolveImports substitutes them.
	importExprs []string
}

type TemplateParameter struct {
	Name       string
	Type       string
	Default    string
	HasDefault bool
}

type TemplateOutput struct {
	Name string
	// ExportExpr is the Export.Name value, possibly containing ${Param} or
	// ${AWS::StackName} placeholders.
	ExportExpr string
}

// ParseTemplate parses a CloudFormation YAML template body. CloudFormation's
// short-form intrinsics (!Ref, !Sub, !ImportValue, !GetAtt) are YAML local
// tags, so the template is walked as a yaml.Node tree rather than decoded
// into plain maps.
func ParseTemplate(body []byte) (*Template, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("invalid template YAML: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("template is empty")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("template root must be a mapping")
	}

	tpl := &Template{Parameters: map[string]*TemplateParameter{}}

	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		val := root.Content[i+1]
		switch key {
		case "Parameters":
			if err := tpl.parseParameters(val); err != nil {
				return nil, err
			}
		case "Resources":
			if err := tpl.parseResources(val); err != nil {
				return nil, err
			}
		case "Outputs":
			if err := tpl.parseOutputs(val); err != nil {
				return nil, err
			}
		}
	}

	if len(tpl.Resources) == 0 {
		return nil, fmt.Errorf("template declares no resources")
	}
	return tpl, nil
}

func (t *Template) parseParameters(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("Parameters must be a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		p := &TemplateParameter{Name: name}
		body := node.Content[i+1]
		for j := 0; j+1 < len(body.Content); j += 2 {
			switch body.Content[j].Value {
			case "Type":
				p.Type = body.Content[j+1].Value
			case "Default":
				p.Default = body.Content[j+1].Value
				p.HasDefault = true
			}
		}
		t.Parameters[name] = p
	}
	return nil
}

func (t *Template) parseResources(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("Resources must be a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		logicalID := node.Content[i].Value
		body := node.Content[i+1]
		decl := &model.ResourceDecl{LogicalID: logicalID}

		var props *yaml.Node
		for j := 0; j+1 < len(body.Content); j += 2 {
			switch body.Content[j].Value {
			case "Type":
				decl.Type = body.Content[j+1].Value
			case "DependsOn":
				dep := body.Content[j+1]
				if dep.Kind == yaml.SequenceNode {
					for _, d := range dep.Content {
						decl.DependsOn = append(decl.DependsOn, d.Value)
					}
				} else {
					decl.DependsOn = append(decl.DependsOn, dep.Value)
				}
			case "Properties":
				props = body.Content[j+1]
			}
		}
		if decl.Type == "" {
			return fmt.Errorf("resource %s is missing Type", logicalID)
		}
		if props != nil {
			decl.Properties = decodeLoose(props)
			t.collectImports(props)
			for _, ref := range collectRefs(props) {
				decl.DependsOn = append(decl.DependsOn, ref)
			}
		}
		t.Resources = append(t.Resources, decl)
	}

	// Drop reference edges that do not point at sibling resources
	// (Ref to a parameter or pseudo-parameter is not a dependency edge).
	ids := map[string]bool{}
	for _, r := range t.Resources {
		ids[r.LogicalID] = true
	}
	for _, r := range t.Resources {
		var edges []string
		seen := map[string]bool{}
		for _, d := range r.DependsOn {
			if ids[d] && d != r.LogicalID && !seen[d] {
				edges = append(edges, d)
				seen[d] = true
			}
		}
		sort.Strings(edges)
		r.DependsOn = edges
	}
	return nil
}

func (t *Template) parseOutputs(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("Outputs must be a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		out := &TemplateOutput{Name: node.Content[i].Value}
		body := node.Content[i+1]
		for j := 0; j+1 < len(body.Content); j += 2 {
			switch body.Content[j].Value {
			case "Export":
				export := body.Content[j+1]
				for k := 0; k+1 < len(export.Content); k += 2 {
					if export.Content[k].Value == "Name" {
						out.ExportExpr = exprString(export.Content[k+1])
					}
				}
			case "Value":
				t.collectImports(body.Content[j+1])
			}
		}
		t.Outputs = append(t.Outputs, out)
	}
	return nil
}

// collectImports walks a node recording every Fn::ImportValue target,
// in both short (!ImportValue x) and long (Fn::ImportValue: ...) form.
func (t *Template) collectImports(node *yaml.Node) {
	if node == nil {
		return
	}
	if node.Tag == "!ImportValue" {
		t.importExprs = append(t.importExprs, exprString(node))
		return
	}
	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == "Fn::ImportValue" {
				t.importExprs = append(t.importExprs, exprString(node.Content[i+1]))
				continue
			}
			t.collectImports(node.Content[i+1])
		}
		return
	}
	for _, c := range node.Content {
		t.collectImports(c)
	}
}

// collectRefs returns logical names referenced through Ref and Fn::GetAtt.
func collectRefs(node *yaml.Node) []string {
	var refs []string
	var walk func(n *yaml.Node)
	walk = func(n *yaml.Node) {
		if n == nil {
			return
		}
		switch n.Tag {
		case "!Ref":
			refs = append(refs, n.Value)
			return
		case "!GetAtt":
			if n.Kind == yaml.ScalarNode {
				refs = append(refs, strings.SplitN(n.Value, ".", 2)[0])
			} else if len(n.Content) > 0 {
				refs = append(refs, n.Content[0].Value)
			}
			return
		}
		if n.Kind == yaml.MappingNode {
			for i := 0; i+1 < len(n.Content); i += 2 {
				switch n.Content[i].Value {
				case "Ref":
					refs = append(refs, n.Content[i+1].Value)
				case "Fn::GetAtt":
					att := n.Content[i+1]
					if att.Kind == yaml.SequenceNode && len(att.Content) > 0 {
						refs = append(refs, att.Content[0].Value)
					} else {
						refs = append(refs, strings.SplitN(att.Value, ".", 2)[0])
					}
				default:
					walk(n.Content[i+1])
				}
			}
			return
		}
		for _, c := range n.Content {
			walk(c)
		}
	}
	walk(node)
	return refs
}

// exprString renders a node as a substitutable expression string. Sub
// intrinsics keep their ${...} placeholders; plain scalars pass through.
func exprString(node *yaml.Node) string {
	if node.Kind == yaml.ScalarNode {
		return node.Value
	}
	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == "Fn::Sub" {
				return exprString(node.Content[i+1])
			}
		}
	}
	if node.Kind == yaml.SequenceNode && len(node.Content) > 0 {
		// Fn::Sub list form: first element is the pattern.
		return node.Content[0].Value
	}
	return node.Value
}

// decodeLoose converts a node subtree into plain Go values, stringifying
// intrinsic tags so property maps stay inspectable.
func decodeLoose(node *yaml.Node) map[string]any {
	v := decodeValue(node)
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return nil
}

func decodeValue(node *yaml.Node) any {
	switch node.Kind {
	case yaml.MappingNode:
		m := make(map[string]any, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			m[node.Content[i].Value] = decodeValue(node.Content[i+1])
		}
		return m
	case yaml.SequenceNode:
		s := make([]any, 0, len(node.Content))
		for _, c := range node.Content {
			s = append(s, decodeValue(c))
		}
		return s
	default:
		if strings.HasPrefix(node.Tag, "!") && node.Tag != "!!str" && node.Tag != "!!int" &&
			node.Tag != "!!bool" && node.Tag != "!!float" && node.Tag != "!!null" {
			return fmt.Sprintf("%s %s", node.Tag, node.Value)
		}
		return node.Value
	}
}

// ResolveExports substitutes parameter values and the stack name into export
// expressions, returning concrete export names.
func (t *Template) ResolveExports(stackName string, params map[string]string) []string {
	var exports []string
	for _, out := range t.Outputs {
		if out.ExportExpr == "" {
			continue
		}
		exports = append(exports, substitute(out.ExportExpr, stackName, params))
	}
	sort.Strings(exports)
	return exports
}

// ResolveImports substitutes parameter values into import expressions,
// returning concrete export names this template consumes.
func (t *Template) ResolveImports(stackName string, params map[string]string) []string {
	seen := map[string]bool{}
	var imports []string
	for _, expr := range t.importExprs {
		name := substitute(expr, stackName, params)
		if !seen[name] {
			imports = append(imports, name)
			seen[name] = true
		}
	}
	sort.Strings(imports)
	return imports
}

func substitute(expr, stackName string, params map[string]string) string {
	out := strings.ReplaceAll(expr, "${AWS::StackName}", stackName)
	for k, v := range params {
		out = strings.ReplaceAll(out, "${"+k+"}", v)
	}
	return out
}

// Capabilities returns the IAM capabilities the template requires: any
// AWS::IAM::* resource needs CAPABILITY_IAM, and one that fixes a physical
// name needs CAPABILITY_NAMED_IAM.
func (t *Template) Capabilities() []string {
	iam, named := false, false
	for _, r := range t.Resources {
		if !strings.HasPrefix(r.Type, "AWS::IAM::") {
			continue
		}
		iam = true
		for _, key := range []string{"RoleName", "PolicyName", "UserName", "GroupName", "InstanceProfileName"} {
			if _, ok := r.Properties[key]; ok {
				named = true
			}
		}
	}
	switch {
	case named:
		return []string{"CAPABILITY_NAMED_IAM"}
	case iam:
		return []string{"CAPABILITY_IAM"}
	default:
		return nil
	}
}
