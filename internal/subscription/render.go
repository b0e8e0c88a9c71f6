package subscription

import (
	"encoding/base64"
	"fmt"
	"sort"

	"github.com/mankindli/sub-gateway/internal/model"
	"gopkg.in/yaml.v3"
)

// RenderV2rayN produces the v2rayN subscription body: the Base64 encoding of
// the effective primary and backup share URIs joined by a newline, primary
// first. Share URIs pass through verbatim. The output is deterministic; the
// same effective state always yields byte-identical bytes.
func RenderV2rayN(customer model.Customer, defaultOverride *model.Override) ([]byte, error) {
	if !customer.Enabled {
		return nil, ErrDisabled
	}
	primary, backup := EffectiveNodes(customer, defaultOverride)
	plain := primary.Share + "\n" + backup.Share
	encoded := base64.StdEncoding.EncodeToString([]byte(plain))
	return []byte(encoded), nil
}

// clashDocument is the minimal client config wrapping the two proxies: a
// single select group so the client can switch between primary and backup,
// and a match-all rule pointing at it.
type clashDocument struct {
	MixedPort   int          `yaml:"mixed-port"`
	AllowLAN    bool         `yaml:"allow-lan"`
	Mode        string       `yaml:"mode"`
	LogLevel    string       `yaml:"log-level"`
	Proxies     []*yaml.Node `yaml:"proxies"`
	ProxyGroups []clashGroup `yaml:"proxy-groups"`
	Rules       []string     `yaml:"rules"`
}

type clashGroup struct {
	Name    string   `yaml:"name"`
	Type    string   `yaml:"type"`
	Proxies []string `yaml:"proxies"`
}

const selectGroupName = "PROXY"

// RenderClash produces the Clash subscription body: a YAML document whose
// proxies list carries the effective primary and backup clash mappings
// verbatim, each under a stable display name. Proxy keys are emitted in a
// fixed order (name, type, server, port, then the rest sorted) so repeated
// renders of the same state are byte-identical, not just semantically equal.
func RenderClash(customer model.Customer, defaultOverride *model.Override) ([]byte, error) {
	if !customer.Enabled {
		return nil, ErrDisabled
	}
	primary, backup := EffectiveNodes(customer, defaultOverride)

	primaryName := customer.EffectivePrimaryName()
	backupName := customer.EffectiveBackupName()

	primaryNode, err := clashProxyNode(primaryName, primary.Clash)
	if err != nil {
		return nil, fmt.Errorf("subscription: primary proxy: %w", err)
	}
	backupNode, err := clashProxyNode(backupName, backup.Clash)
	if err != nil {
		return nil, fmt.Errorf("subscription: backup proxy: %w", err)
	}

	doc := clashDocument{
		MixedPort: 7890,
		AllowLAN:  false,
		Mode:      "rule",
		LogLevel:  "info",
		Proxies:   []*yaml.Node{primaryNode, backupNode},
		ProxyGroups: []clashGroup{{
			Name:    selectGroupName,
			Type:    "select",
			Proxies: []string{primaryName, backupName},
		}},
		Rules: []string{"MATCH," + selectGroupName},
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("subscription: encode clash config: %w", err)
	}
	return out, nil
}

// clashProxyNode builds a YAML mapping for one proxy: the injected name key
// first, then type/server/port, then every remaining descriptor field in
// sorted order. The descriptor values are carried untouched.
func clashProxyNode(name string, fields map[string]any) (*yaml.Node, error) {
	mapping := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}

	appendField := func(key string, value any) error {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
		valueNode := &yaml.Node{}
		if err := valueNode.Encode(value); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		mapping.Content = append(mapping.Content, keyNode, valueNode)
		return nil
	}

	if err := appendField("name", name); err != nil {
		return nil, err
	}
	leading := []string{"type", "server", "port"}
	for _, key := range leading {
		if value, ok := fields[key]; ok {
			if err := appendField(key, value); err != nil {
				return nil, err
			}
		}
	}

	rest := make([]string, 0, len(fields))
	for key := range fields {
		if key == "name" || key == "type" || key == "server" || key == "port" {
			continue
		}
		rest = append(rest, key)
	}
	sort.Strings(rest)
	for _, key := range rest {
		if err := appendField(key, fields[key]); err != nil {
			return nil, err
		}
	}
	return mapping, nil
}
