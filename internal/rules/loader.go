package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"inidars/internal/model"

	"gopkg.in/yaml.v3"
)

// LoadRulesFromJSON loads rules from a JSON configuration file
func LoadRulesFromJSON(filename string) ([]model.Rule, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var rules struct {
		Rules []model.Rule `json:"rules"`
	}

	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %v", err)
	}

	return rules.Rules, nil
}

// LoadRulesFromYAML loads rules from a YAML configuration file
func LoadRulesFromYAML(filename string) ([]model.Rule, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var rules struct {
		Rules []model.Rule `yaml:"rules"`
	}

	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse YAML rules file: %v", err)
	}

	return rules.Rules, nil
}

// LoadRules picks the decoder from the file extension, trying YAML then JSON
// when the extension is unknown.
func LoadRules(filename string) ([]model.Rule, error) {
	if filename == "" {
		return nil, fmt.Errorf("rules file path is empty")
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return LoadRulesFromYAML(filename)
	case ".json":
		return LoadRulesFromJSON(filename)
	}

	if rules, err := LoadRulesFromYAML(filename); err == nil {
		return rules, nil
	}
	return LoadRulesFromJSON(filename)
}

// Merge overlays file rules onto base by name; rules only present in the
// file are appended.
func Merge(base, overrides []model.Rule) []model.Rule {
	merged := make([]model.Rule, len(base))
	copy(merged, base)

	index := make(map[string]int, len(merged))
	for i, r := range merged {
		index[r.Name] = i
	}

	for _, r := range overrides {
		if i, ok := index[r.Name]; ok {
			merged[i] = r
			continue
		}
		index[r.Name] = len(merged)
		merged = append(merged, r)
	}
	return merged
}
