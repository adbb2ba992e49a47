// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Property is a single name/value pair.
type Property struct {
	Name  string
	Value string
}

// Properties is a YAML mapping that remembers the order its keys were
// written in. Scalar values of any type are kept as their literal text, so
// `disableCertChecking: true` yields "true".
type Properties []Property

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *Properties) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.ShortTag() == "!!null" {
		*p = nil
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping of names to values", node.Line)
	}

	out := make(Properties, 0, len(node.Content)/2)
	seen := make(map[string]bool, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if key.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: property name must be a scalar", key.Line)
		}
		if seen[key.Value] {
			return fmt.Errorf("line %d: duplicate property %q", key.Line, key.Value)
		}
		seen[key.Value] = true

		var text string
		switch {
		case value.Kind == yaml.ScalarNode && value.ShortTag() == "!!null":
			text = ""
		case value.Kind == yaml.ScalarNode:
			text = value.Value
		default:
			return fmt.Errorf("line %d: value of %q must be a scalar", value.Line, key.Value)
		}
		out = append(out, Property{Name: key.Value, Value: text})
	}

	*p = out
	return nil
}

// Environ renders the properties as KEY=value pairs in order.
func (p Properties) Environ() []string {
	env := make([]string, 0, len(p))
	for _, prop := range p {
		env = append(env, prop.Name+"="+prop.Value)
	}
	return env
}
