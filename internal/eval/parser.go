package eval

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/agenticgokit/crewview/internal/utils"
)

// ParseConfigFile parses a YAML evaluation suite
func ParseConfigFile(filePath string) (*Suite, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML evaluation suite content
func ParseConfig(data []byte) (*Suite, error) {
	var suite Suite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateSuite(&suite); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &suite, nil
}

var aggregations = map[string]bool{
	"simple_average":         true,
	"weighted_by_complexity": true,
	"best_performance":       true,
	"worst_performance":      true,
}

func validateSuite(suite *Suite) error {
	if suite.Name == "" {
		return utils.NewValidationError("name", "is required")
	}
	if len(suite.Crews) == 0 {
		return utils.NewValidationError("crews", "at least one crew is required")
	}
	for i, id := range suite.Crews {
		if id == "" {
			return utils.NewValidationError(fmt.Sprintf("crews[%d]", i), "must not be empty")
		}
	}
	if suite.Iterations < 0 {
		return utils.NewValidationError("iterations", "must not be negative")
	}
	if suite.Aggregation != "" && !aggregations[suite.Aggregation] {
		return utils.NewValidationError("aggregation", fmt.Sprintf("unknown strategy %q", suite.Aggregation))
	}
	return nil
}
