package registry

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed templates/fiction.yaml
var fictionTemplateYAML []byte

//go:embed templates/worldbuilding.yaml
var worldbuildingTemplateYAML []byte

// Template holds the default type set a project starts from. Templates own the
// approval configuration; overrides can never change it.
type Template struct {
	ID                string                `yaml:"id"`
	DisplayName       string                `yaml:"displayName"`
	EntityTypes       []TypeDef             `yaml:"entityTypes"`
	RelationshipTypes []RelationshipTypeDef `yaml:"relationshipTypes"`
}

// DefaultTemplateID is used when a project does not name a template.
const DefaultTemplateID = "fiction"

var templates map[string]*Template

func init() {
	templates = make(map[string]*Template)
	for _, raw := range [][]byte{fictionTemplateYAML, worldbuildingTemplateYAML} {
		var t Template
		if err := yaml.Unmarshal(raw, &t); err != nil {
			panic(fmt.Sprintf("parse embedded registry template: %v", err))
		}
		templates[t.ID] = &t
	}
}

// LookupTemplate returns the named template, or the default when id is empty.
func LookupTemplate(id string) (*Template, error) {
	if id == "" {
		id = DefaultTemplateID
	}
	t, ok := templates[id]
	if !ok {
		return nil, fmt.Errorf("unknown registry template %q", id)
	}
	return t, nil
}

// TemplateIDs lists the available template identifiers.
func TemplateIDs() []string {
	ids := make([]string, 0, len(templates))
	for id := range templates {
		ids = append(ids, id)
	}
	return ids
}
