package subscription

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/mankindli/sub-gateway/internal/model"
	"gopkg.in/yaml.v3"
)

func TestRenderV2rayNEncodesPrimaryThenBackup(t *testing.T) {
	customer := baseCustomer()

	body, err := RenderV2rayN(customer, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	decoded, err := base64.StdEncoding.DecodeString(string(body))
	if err != nil {
		t.Fatalf("body is not valid base64: %v", err)
	}
	want := "ss://abc@host:8388\nsocks5://u:p@host2:1080"
	if string(decoded) != want {
		t.Fatalf("decoded body: got %q, want %q", decoded, want)
	}
}

func TestRenderV2rayNIsDeterministic(t *testing.T) {
	customer := baseCustomer()

	first, err := RenderV2rayN(customer, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := RenderV2rayN(customer, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("renders differ:\n%s\n%s", first, second)
	}
}

func TestRenderV2rayNOverrideScenario(t *testing.T) {
	customer := baseCustomer()

	body, err := RenderV2rayN(customer, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	decoded, _ := base64.StdEncoding.DecodeString(string(body))
	if string(decoded) != "ss://abc@host:8388\nsocks5://u:p@host2:1080" {
		t.Fatalf("unexpected pre-override body: %q", decoded)
	}

	customer.Override = &model.Override{
		Primary: &model.Node{Share: "ss://xyz@host3:8388"},
	}
	body, err = RenderV2rayN(customer, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	decoded, _ = base64.StdEncoding.DecodeString(string(body))
	lines := strings.Split(string(decoded), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two lines, got %d", len(lines))
	}
	if lines[0] != "ss://xyz@host3:8388" {
		t.Fatalf("first line should carry the override: %q", lines[0])
	}
	if lines[1] != "socks5://u:p@host2:1080" {
		t.Fatalf("second line should be unchanged: %q", lines[1])
	}
}

func TestRenderV2rayNDisabled(t *testing.T) {
	customer := baseCustomer()
	customer.Enabled = false

	if _, err := RenderV2rayN(customer, nil); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestRenderClashDisabled(t *testing.T) {
	customer := baseCustomer()
	customer.Enabled = false

	if _, err := RenderClash(customer, nil); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestRenderClashDocumentShape(t *testing.T) {
	customer := baseCustomer()

	body, err := RenderClash(customer, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var doc struct {
		MixedPort   int              `yaml:"mixed-port"`
		Mode        string           `yaml:"mode"`
		Proxies     []map[string]any `yaml:"proxies"`
		ProxyGroups []struct {
			Name    string   `yaml:"name"`
			Type    string   `yaml:"type"`
			Proxies []string `yaml:"proxies"`
		} `yaml:"proxy-groups"`
		Rules []string `yaml:"rules"`
	}
	if err := yaml.Unmarshal(body, &doc); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}

	if doc.MixedPort != 7890 || doc.Mode != "rule" {
		t.Fatalf("unexpected scaffold: mixed-port=%d mode=%q", doc.MixedPort, doc.Mode)
	}
	if len(doc.Proxies) != 2 {
		t.Fatalf("expected two proxies, got %d", len(doc.Proxies))
	}
	if doc.Proxies[0]["name"] != "primary" || doc.Proxies[1]["name"] != "backup" {
		t.Fatalf("unexpected proxy names: %v / %v", doc.Proxies[0]["name"], doc.Proxies[1]["name"])
	}
	if doc.Proxies[0]["server"] != "s1" || doc.Proxies[0]["cipher"] != "aes-256-gcm" {
		t.Fatalf("primary clash fields not carried verbatim: %#v", doc.Proxies[0])
	}
	if len(doc.ProxyGroups) != 1 || doc.ProxyGroups[0].Type != "select" {
		t.Fatalf("expected one select group, got %+v", doc.ProxyGroups)
	}
	if got := doc.ProxyGroups[0].Proxies; len(got) != 2 || got[0] != "primary" || got[1] != "backup" {
		t.Fatalf("group should select between both proxies: %v", got)
	}
	if len(doc.Rules) != 1 || doc.Rules[0] != "MATCH,PROXY" {
		t.Fatalf("unexpected rules: %v", doc.Rules)
	}
}

func TestRenderClashUsesDisplayNames(t *testing.T) {
	customer := baseCustomer()
	customer.PrimaryName = "acme-fast"
	customer.BackupName = "acme-direct"

	body, err := RenderClash(customer, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var doc struct {
		Proxies []map[string]any `yaml:"proxies"`
	}
	if err := yaml.Unmarshal(body, &doc); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if doc.Proxies[0]["name"] != "acme-fast" || doc.Proxies[1]["name"] != "acme-direct" {
		t.Fatalf("display names not applied: %v / %v", doc.Proxies[0]["name"], doc.Proxies[1]["name"])
	}
}

func TestRenderClashIsStableAcrossRenders(t *testing.T) {
	customer := baseCustomer()

	first, err := RenderClash(customer, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := RenderClash(customer, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("renders differ:\n%s\n%s", first, second)
	}
}

func TestRenderClashAppliesOverrideFieldMerge(t *testing.T) {
	customer := baseCustomer()
	customer.Override = &model.Override{
		Primary: &model.Node{Clash: map[string]any{"server": "s2", "port": 9000}},
	}

	body, err := RenderClash(customer, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var doc struct {
		Proxies []map[string]any `yaml:"proxies"`
	}
	if err := yaml.Unmarshal(body, &doc); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	primary := doc.Proxies[0]
	if primary["server"] != "s2" {
		t.Fatalf("override server not applied: %v", primary["server"])
	}
	if primary["port"] != 9000 {
		t.Fatalf("override port not applied: %v", primary["port"])
	}
	if primary["cipher"] != "aes-256-gcm" || primary["password"] != "secret" {
		t.Fatalf("base fields should survive the merge: %#v", primary)
	}
}
