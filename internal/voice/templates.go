package voice

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/lukasbauer/apriori/internal/followup"
)

//go:embed templates.yaml
var defaultTemplates []byte

// Criterion is one post-call evaluation criterion.
type Criterion struct {
	Name   string `yaml:"name" json:"name"`
	Prompt string `yaml:"prompt" json:"prompt"`
}

// DataField declares one typed value the provider extracts after the call.
type DataField struct {
	Identifier  string `yaml:"identifier" json:"identifier"`
	DataType    string `yaml:"data_type" json:"data_type"`
	Description string `yaml:"description" json:"description"`
}

// Template is the raw agent configuration for one call type.
type Template struct {
	Name               string      `yaml:"name"`
	FirstMessage       string      `yaml:"first_message"`
	Prompt             string      `yaml:"prompt"`
	EvaluationCriteria []Criterion `yaml:"evaluation_criteria"`
	DataCollection     []DataField `yaml:"data_collection"`
}

// AgentConfig is a template rendered for one employee.
type AgentConfig struct {
	Name               string
	FirstMessage       string
	Prompt             string
	EvaluationCriteria []Criterion
	DataCollection     []DataField
}

type compiledTemplate struct {
	raw          Template
	name         *template.Template
	firstMessage *template.Template
	prompt       *template.Template
}

// Templates renders agent configurations. Call types without their own
// template use the retention_check one.
type Templates struct {
	byType map[followup.CallType]compiledTemplate
}

// LoadTemplates parses the embedded templates.
func LoadTemplates() (*Templates, error) {
	return ParseTemplates(defaultTemplates)
}

// ParseTemplates parses YAML keyed by call type.
func ParseTemplates(raw []byte) (*Templates, error) {
	var doc map[string]Template
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse agent templates: %w", err)
	}

	t := &Templates{byType: make(map[followup.CallType]compiledTemplate, len(doc))}
	for key, tpl := range doc {
		ct, err := followup.ParseCallType(key)
		if err != nil {
			return nil, fmt.Errorf("agent templates: %w", err)
		}
		c := compiledTemplate{raw: tpl}
		for _, part := range []struct {
			dst  **template.Template
			name string
			text string
		}{
			{&c.name, "name", tpl.Name},
			{&c.firstMessage, "first_message", tpl.FirstMessage},
			{&c.prompt, "prompt", tpl.Prompt},
		} {
			parsed, err := template.New(key + "." + part.name).Option("missingkey=error").Parse(part.text)
			if err != nil {
				return nil, fmt.Errorf("agent template %s.%s: %w", key, part.name, err)
			}
			*part.dst = parsed
		}
		t.byType[ct] = c
	}

	if _, ok := t.byType[followup.CallTypeRetentionCheck]; !ok {
		return nil, fmt.Errorf("agent templates: missing %s template", followup.CallTypeRetentionCheck)
	}
	return t, nil
}

// Render builds the agent configuration for req.
func (t *Templates) Render(req followup.AgentRequest) (AgentConfig, error) {
	c, ok := t.byType[req.CallType]
	if !ok {
		c = t.byType[followup.CallTypeRetentionCheck]
	}

	var out AgentConfig
	for _, part := range []struct {
		tpl *template.Template
		dst *string
	}{
		{c.name, &out.Name},
		{c.firstMessage, &out.FirstMessage},
		{c.prompt, &out.Prompt},
	} {
		var sb strings.Builder
		if err := part.tpl.Execute(&sb, req); err != nil {
			return AgentConfig{}, fmt.Errorf("failed to render %s: %w", part.tpl.Name(), err)
		}
		*part.dst = strings.TrimSpace(sb.String())
	}
	out.EvaluationCriteria = c.raw.EvaluationCriteria
	out.DataCollection = c.raw.DataCollection
	return out, nil
}
