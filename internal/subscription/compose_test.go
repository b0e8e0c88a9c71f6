package subscription

import (
	"reflect"
	"testing"

	"github.com/mankindli/sub-gateway/internal/model"
)

func baseCustomer() model.Customer {
	return model.Customer{
		Token:   "test-token",
		Name:    "acme",
		Enabled: true,
		Nodes: model.NodePair{
			Primary: model.Node{
				Share: "ss://abc@host:8388",
				Clash: map[string]any{
					"type":     "ss",
					"server":   "s1",
					"port":     8388,
					"cipher":   "aes-256-gcm",
					"password": "secret",
				},
			},
			Backup: model.Node{
				Share: "socks5://u:p@host2:1080",
				Clash: map[string]any{
					"type":   "socks5",
					"server": "host2",
					"port":   1080,
				},
			},
		},
	}
}

func TestOverlayMergesClashFieldsKeyByKey(t *testing.T) {
	base := model.Node{
		Share: "ss://abc@host:8388",
		Clash: map[string]any{
			"type":     "ss",
			"server":   "s1",
			"port":     8388,
			"cipher":   "aes-256-gcm",
			"password": "secret",
		},
	}
	override := model.Node{Clash: map[string]any{"server": "s2"}}

	effective := Overlay(base, &override)

	if effective.Share != "ss://abc@host:8388" {
		t.Fatalf("share should stay when override does not set it, got %q", effective.Share)
	}
	want := map[string]any{
		"type":     "ss",
		"server":   "s2",
		"port":     8388,
		"cipher":   "aes-256-gcm",
		"password": "secret",
	}
	if !reflect.DeepEqual(effective.Clash, want) {
		t.Fatalf("unexpected merged clash fields: %#v", effective.Clash)
	}
}

func TestOverlayDoesNotMutateBase(t *testing.T) {
	base := model.Node{
		Share: "ss://abc@host:8388",
		Clash: map[string]any{"type": "ss", "server": "s1", "port": 8388},
	}
	override := model.Node{Share: "ss://xyz@host3:8388", Clash: map[string]any{"server": "s3"}}

	_ = Overlay(base, &override)

	if base.Share != "ss://abc@host:8388" {
		t.Fatalf("base share mutated: %q", base.Share)
	}
	if base.Clash["server"] != "s1" {
		t.Fatalf("base clash mutated: %#v", base.Clash)
	}
}

func TestEffectiveNodesSlotIndependence(t *testing.T) {
	customer := baseCustomer()
	customer.Override = &model.Override{
		Primary: &model.Node{Share: "ss://xyz@host3:8388"},
	}

	primary, backup := EffectiveNodes(customer, nil)

	if primary.Share != "ss://xyz@host3:8388" {
		t.Fatalf("primary override not applied: %q", primary.Share)
	}
	if primary.Clash["server"] != "s1" {
		t.Fatalf("primary clash should stay from base: %#v", primary.Clash)
	}
	if backup.Share != "socks5://u:p@host2:1080" {
		t.Fatalf("backup should be untouched: %q", backup.Share)
	}
}

func TestEffectiveNodesDefaultOverridePrecedence(t *testing.T) {
	defaultOverride := &model.Override{
		Primary: &model.Node{Share: "ss://global@host9:8388"},
		Backup:  &model.Node{Share: "socks5://global@host9:1080"},
	}

	tests := []struct {
		name        string
		override    *model.Override
		wantPrimary string
		wantBackup  string
	}{
		{
			name:        "no record override uses global for both slots",
			override:    nil,
			wantPrimary: "ss://global@host9:8388",
			wantBackup:  "socks5://global@host9:1080",
		},
		{
			name: "record primary wins, global still covers backup",
			override: &model.Override{
				Primary: &model.Node{Share: "ss://record@host4:8388"},
			},
			wantPrimary: "ss://record@host4:8388",
			wantBackup:  "socks5://global@host9:1080",
		},
		{
			name: "record override on both slots shadows global entirely",
			override: &model.Override{
				Primary: &model.Node{Share: "ss://record@host4:8388"},
				Backup:  &model.Node{Share: "socks5://record@host4:1080"},
			},
			wantPrimary: "ss://record@host4:8388",
			wantBackup:  "socks5://record@host4:1080",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			customer := baseCustomer()
			customer.Override = tc.override

			primary, backup := EffectiveNodes(customer, defaultOverride)
			if primary.Share != tc.wantPrimary {
				t.Fatalf("primary share: got %q, want %q", primary.Share, tc.wantPrimary)
			}
			if backup.Share != tc.wantBackup {
				t.Fatalf("backup share: got %q, want %q", backup.Share, tc.wantBackup)
			}
		})
	}
}

func TestEffectiveNodesNoOverrides(t *testing.T) {
	customer := baseCustomer()

	primary, backup := EffectiveNodes(customer, nil)

	if primary.Share != customer.Nodes.Primary.Share {
		t.Fatalf("primary changed without overrides: %q", primary.Share)
	}
	if !reflect.DeepEqual(backup.Clash, customer.Nodes.Backup.Clash) {
		t.Fatalf("backup clash changed without overrides: %#v", backup.Clash)
	}
}
