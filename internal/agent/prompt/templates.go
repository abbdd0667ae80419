package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplates []byte

// Templates maps classification labels to enrichment instructions.
type Templates struct {
	Default   string            `yaml:"default"`
	Templates map[string]string `yaml:"templates"`
}

// LoadTemplates parses the embedded table and overlays the file at path, if any.
func LoadTemplates(path string) (*Templates, error) {
	t, err := ParseTemplates(defaultTemplates)
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded templates: %w", err)
	}
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates file: %w", err)
	}
	override, err := ParseTemplates(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates file %s: %w", path, err)
	}
	if override.Default != "" {
		t.Default = override.Default
	}
	for label, instr := range override.Templates {
		t.Templates[label] = instr
	}
	return t, nil
}

func ParseTemplates(data []byte) (*Templates, error) {
	var t Templates
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	normalized := make(map[string]string, len(t.Templates))
	for label, instr := range t.Templates {
		normalized[NormalizeLabel(label)] = strings.TrimSpace(instr)
	}
	t.Templates = normalized
	t.Default = strings.TrimSpace(t.Default)
	return &t, nil
}

// Instructions is a pure function of the label.
func (t *Templates) Instructions(label string) string {
	if instr, ok := t.Templates[NormalizeLabel(label)]; ok && instr != "" {
		return instr
	}
	return t.Default
}

// Enrichment combines document text with label instructions.
func Enrichment(text, instructions string) string {
	return "Given the document\n\n<document>" + text + "</document>\n\n" +
		instructions + "\n\nReturn only the requested content with no preamble.\n"
}
