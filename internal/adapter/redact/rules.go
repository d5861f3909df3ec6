package redact

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads additional redaction rules from a YAML file. The file's
// rules are applied after the built-in defaults, in file order.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read redaction rules %s: %w", path, err)
	}

	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse redaction rules %s: %w", path, err)
	}

	for _, rule := range rf.Rules {
		if rule.Name == "" || rule.Pattern == "" {
			return nil, fmt.Errorf("redaction rule in %s is missing a name or pattern", path)
		}
	}

	return rf.Rules, nil
}
