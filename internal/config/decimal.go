package config

import (
	"fmt"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Decimal is a yaml-aware wrapper around decimal.Decimal for the risk limits
// in the config file. Values may be quoted or bare scalars; either way they
// are parsed exactly, never through a float.
type Decimal struct {
	decimal.Decimal
}

func (d *Decimal) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("decimal value must be a scalar, got %s", node.Tag)
	}
	if node.Value == "" {
		d.Decimal = decimal.Zero
		return nil
	}
	parsed, err := decimal.NewFromString(node.Value)
	if err != nil {
		return fmt.Errorf("invalid decimal %q: %w", node.Value, err)
	}
	d.Decimal = parsed
	return nil
}

// MarshalYAML renders the value as a string scalar so a round-tripped config
// stays exact.
func (d Decimal) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}
