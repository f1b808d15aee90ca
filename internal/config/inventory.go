// ABOUTME: Legacy servers.json inventory import and the Port type shared with the main config.
// ABOUTME: Ports may be written as numbers or numeric strings in every supported format.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Port is a TCP port that unmarshals from either a number or a numeric string.
type Port int

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *Port) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: port must be a number or string", value.Line)
	}
	return p.parse(value.Value)
}

// UnmarshalTOML implements toml.Unmarshaler.
func (p *Port) UnmarshalTOML(v any) error {
	switch val := v.(type) {
	case int64:
		*p = Port(val)
		return nil
	case string:
		return p.parse(val)
	default:
		return fmt.Errorf("port must be a number or string, got %T", v)
	}
}

func (p *Port) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*p = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", s, err)
	}
	*p = Port(n)
	return nil
}

// Inventory is the content of a legacy servers.json file.
type Inventory struct {
	Servers []ServerEntry
	Tokens  []string
}

type legacyServer struct {
	Hostname     string `yaml:"hostname"`
	Name         string `yaml:"name"`
	IP           string `yaml:"ip"`
	Port         Port   `yaml:"port"`
	Password     string `yaml:"password"`
	ReceiverPort Port   `yaml:"receiverPort"`
}

type legacyFile struct {
	Servers []legacyServer `yaml:"servers"`
	Tokens  []string       `yaml:"tokens"`
}

// LoadInventory reads a servers.json file of the form
//
//	{"servers": [{"hostname", "name", "ip", "port", "password", "receiverPort"}], "tokens": [...]}
//
// JSON is decoded with the YAML parser, which accepts it as a subset.
func LoadInventory(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inventory: %w", err)
	}

	var raw legacyFile
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &raw); err != nil {
		return nil, fmt.Errorf("parsing inventory %s: %w", path, err)
	}

	inv := &Inventory{
		Servers: make([]ServerEntry, 0, len(raw.Servers)),
		Tokens:  raw.Tokens,
	}
	for _, s := range raw.Servers {
		inv.Servers = append(inv.Servers, ServerEntry(s))
	}
	return inv, nil
}
