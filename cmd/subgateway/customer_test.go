package main

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/mankindli/sub-gateway/internal/config"
	"github.com/mankindli/sub-gateway/internal/customers"
	"github.com/mankindli/sub-gateway/internal/model"
	"github.com/mankindli/sub-gateway/internal/store"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// seedCustomerStore points the global configuration at a temp document and
// puts one customer in it, returning the store and the customer's token.
func seedCustomerStore(t *testing.T) (*store.Store, string) {
	t.Helper()

	storePath := filepath.Join(t.TempDir(), "customers.yml")
	viper.Reset()
	config.ApplyDefaults(viper.GetViper())
	viper.Set("store.path", storePath)
	viper.Set("admin.password", "test-password")
	t.Cleanup(viper.Reset)

	st, err := store.New(storePath, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error constructing store: %v", err)
	}
	service, err := customers.NewService(customers.ServiceConfig{Store: st})
	if err != nil {
		t.Fatalf("unexpected error constructing service: %v", err)
	}

	expiry := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	created, err := service.Create(context.Background(), customers.CreateParams{
		Name:      "before",
		ExpiresAt: &expiry,
		Nodes: model.NodePair{
			Primary: model.Node{
				Share: "ss://abc@host:8388",
				Clash: map[string]any{"type": "ss", "server": "host", "port": 8388},
			},
			Backup: model.Node{
				Share: "socks5://u:p@host2:1080",
				Clash: map[string]any{"type": "socks5", "server": "host2", "port": 1080},
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error seeding customer: %v", err)
	}
	return st, created.Token
}

func runCustomerCommand(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newCustomerCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestCustomerUpdateCommandAppliesPartialPatch(t *testing.T) {
	st, token := seedCustomerStore(t)

	if err := runCustomerCommand(t, "update", token, "--name", "after", "--enabled=false", "--remark", "paused"); err != nil {
		t.Fatalf("unexpected error running update: %v", err)
	}

	stored, err := st.FindByToken(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Name != "after" || stored.Enabled || stored.Remark != "paused" {
		t.Fatalf("patch not applied: %+v", stored)
	}
	if stored.Nodes.Primary.Share != "ss://abc@host:8388" {
		t.Fatalf("untouched nodes must survive: %+v", stored.Nodes)
	}
	if stored.ExpiresAt == nil {
		t.Fatalf("untouched expiry must survive")
	}
}

func TestCustomerUpdateCommandLeavesOmittedFlagsAlone(t *testing.T) {
	st, token := seedCustomerStore(t)

	if err := runCustomerCommand(t, "update", token, "--remark", "only this"); err != nil {
		t.Fatalf("unexpected error running update: %v", err)
	}

	stored, err := st.FindByToken(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Name != "before" || !stored.Enabled {
		t.Fatalf("omitted flags must not touch the record: %+v", stored)
	}
	if stored.Remark != "only this" {
		t.Fatalf("remark not applied: %q", stored.Remark)
	}
}

func TestCustomerUpdateCommandClearsExpiry(t *testing.T) {
	st, token := seedCustomerStore(t)

	if err := runCustomerCommand(t, "update", token, "--clear-expires-at"); err != nil {
		t.Fatalf("unexpected error running update: %v", err)
	}

	stored, err := st.FindByToken(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.ExpiresAt != nil {
		t.Fatalf("expiry should be cleared: %v", stored.ExpiresAt)
	}
}

func TestCustomerUpdateCommandUnknownToken(t *testing.T) {
	seedCustomerStore(t)

	if err := runCustomerCommand(t, "update", "no-such-token", "--name", "x"); err == nil {
		t.Fatalf("expected unknown token to fail")
	}
}
