package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mankindli/sub-gateway/internal/customers"
	"github.com/mankindli/sub-gateway/internal/model"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// The management subcommands operate on the store directly through the
// lifecycle service, so an operator on the host never needs the HTTP API or
// its credentials in transit.
func newCustomerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "customer",
		Short: "Manage customer records",
	}
	cmd.AddCommand(
		newCustomerCreateCommand(),
		newCustomerListCommand(),
		newCustomerShowCommand(),
		newCustomerUpdateCommand(),
		newCustomerDeleteCommand(),
		newCustomerRotateCommand(),
		newCustomerEnableCommand(),
		newCustomerDisableCommand(),
		newCustomerOverrideCommand(),
	)
	return cmd
}

func newCustomerCreateCommand() *cobra.Command {
	var (
		name        string
		nodesFile   string
		disabled    bool
		ipSource    string
		remark      string
		primaryName string
		backupName  string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a customer and print its record including the new token",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, logger, _, err := buildService()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			nodes, err := readNodePair(nodesFile)
			if err != nil {
				return err
			}

			enabled := !disabled
			created, err := service.Create(cmd.Context(), customers.CreateParams{
				Name:        name,
				Nodes:       nodes,
				Enabled:     &enabled,
				IPSource:    ipSource,
				Remark:      remark,
				PrimaryName: primaryName,
				BackupName:  backupName,
			})
			if err != nil {
				return err
			}
			return printJSON(created)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Customer display name")
	cmd.Flags().StringVar(&nodesFile, "nodes-file", "", "YAML file holding the primary/backup node pair")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Create the customer in disabled state")
	cmd.Flags().StringVar(&ipSource, "ip-source", "", "Node provenance note")
	cmd.Flags().StringVar(&remark, "remark", "", "Free-form remark")
	cmd.Flags().StringVar(&primaryName, "primary-name", "", "Display name for the primary proxy")
	cmd.Flags().StringVar(&backupName, "backup-name", "", "Display name for the backup proxy")
	cobra.CheckErr(cmd.MarkFlagRequired("name"))
	cobra.CheckErr(cmd.MarkFlagRequired("nodes-file"))
	return cmd
}

func newCustomerUpdateCommand() *cobra.Command {
	var (
		name        string
		enabled     bool
		nodesFile   string
		ipSource    string
		remark      string
		primaryName string
		backupName  string
		clearExpiry bool
	)
	cmd := &cobra.Command{
		Use:   "update <token>",
		Short: "Apply a partial update to a customer record; omitted flags stay untouched",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, logger, _, err := buildService()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			flags := cmd.Flags()
			patch := customers.UpdatePatch{ClearExpiresAt: clearExpiry}
			if flags.Changed("name") {
				patch.Name = &name
			}
			if flags.Changed("enabled") {
				patch.Enabled = &enabled
			}
			if flags.Changed("nodes-file") {
				nodes, err := readNodePair(nodesFile)
				if err != nil {
					return err
				}
				patch.Nodes = &nodes
			}
			if flags.Changed("ip-source") {
				patch.IPSource = &ipSource
			}
			if flags.Changed("remark") {
				patch.Remark = &remark
			}
			if flags.Changed("primary-name") {
				patch.PrimaryName = &primaryName
			}
			if flags.Changed("backup-name") {
				patch.BackupName = &backupName
			}

			updated, err := service.Update(cmd.Context(), args[0], patch)
			if err != nil {
				return err
			}
			return printJSON(updated)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Customer display name")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "Enable or disable the subscription")
	cmd.Flags().StringVar(&nodesFile, "nodes-file", "", "YAML file holding a replacement primary/backup node pair")
	cmd.Flags().StringVar(&ipSource, "ip-source", "", "Node provenance note")
	cmd.Flags().StringVar(&remark, "remark", "", "Free-form remark")
	cmd.Flags().StringVar(&primaryName, "primary-name", "", "Display name for the primary proxy")
	cmd.Flags().StringVar(&backupName, "backup-name", "", "Display name for the backup proxy")
	cmd.Flags().BoolVar(&clearExpiry, "clear-expires-at", false, "Remove a stored expiry date")
	return cmd
}

func newCustomerListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all customer records",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, logger, _, err := buildService()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			all, err := service.List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(all)
		},
	}
}

func newCustomerShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <token>",
		Short: "Print one customer record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, logger, _, err := buildService()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			customer, err := service.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(customer)
		},
	}
}

func newCustomerDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <token>",
		Short: "Delete a customer record (irreversible)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, logger, _, err := buildService()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			return service.Delete(cmd.Context(), args[0])
		},
	}
}

func newCustomerRotateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate <token>",
		Short: "Replace the customer's token; the old token stops working immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, logger, appConfig, err := buildService()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			rotated, err := service.RotateToken(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"old_token": args[0],
				"new_token": rotated.Token,
				"subscribe_urls": map[string]string{
					"v2rayn": appConfig.BaseURL + "/s/" + rotated.Token + "/v2rayn",
					"clash":  appConfig.BaseURL + "/s/" + rotated.Token + "/clash",
				},
			})
		},
	}
}

func newCustomerEnableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <token>",
		Short: "Re-enable a customer's subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, logger, _, err := buildService()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			return service.Enable(cmd.Context(), args[0])
		},
	}
}

func newCustomerDisableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <token>",
		Short: "Disable a customer's subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, logger, _, err := buildService()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			return service.Disable(cmd.Context(), args[0])
		},
	}
}

func newCustomerOverrideCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "override",
		Short: "Manage a customer's emergency override",
	}
	cmd.AddCommand(newCustomerOverrideSetCommand(), newCustomerOverrideClearCommand())
	return cmd
}

func newCustomerOverrideSetCommand() *cobra.Command {
	var flags overrideFlags
	cmd := &cobra.Command{
		Use:   "set <token>",
		Short: "Merge an emergency override into the customer record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, logger, _, err := buildService()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			patch, err := flags.patch()
			if err != nil {
				return err
			}
			return service.SetOverride(cmd.Context(), args[0], patch)
		},
	}
	flags.register(cmd)
	return cmd
}

func newCustomerOverrideClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <token>",
		Short: "Remove the customer's emergency override",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, logger, _, err := buildService()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			return service.ClearOverride(cmd.Context(), args[0])
		},
	}
}

// newOverrideCommand manages the store-wide default override, which applies
// to every enabled customer slot without a record-level override.
func newOverrideCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "override",
		Short: "Manage the store-wide default override",
	}

	var flags overrideFlags
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Merge an emergency override applied to all customers without their own",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, logger, _, err := buildService()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			patch, err := flags.patch()
			if err != nil {
				return err
			}
			return service.SetDefaultOverride(cmd.Context(), patch)
		},
	}
	flags.register(setCmd)

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the store-wide default override",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, logger, _, err := buildService()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			return service.ClearDefaultOverride(cmd.Context())
		},
	}

	cmd.AddCommand(setCmd, clearCmd)
	return cmd
}

type overrideFlags struct {
	file         string
	primaryShare string
	backupShare  string
	note         string
	clearNote    bool
}

func (f *overrideFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.file, "file", "", "YAML file holding a full override (primary/backup/note)")
	cmd.Flags().StringVar(&f.primaryShare, "primary-share", "", "Replacement share URI for the primary slot")
	cmd.Flags().StringVar(&f.backupShare, "backup-share", "", "Replacement share URI for the backup slot")
	cmd.Flags().StringVar(&f.note, "note", "", "Operator note explaining the override")
	cmd.Flags().BoolVar(&f.clearNote, "clear-note", false, "Remove the stored operator note")
}

func (f *overrideFlags) patch() (customers.OverridePatch, error) {
	if f.file != "" {
		raw, err := os.ReadFile(f.file)
		if err != nil {
			return customers.OverridePatch{}, fmt.Errorf("read override file: %w", err)
		}
		var override model.Override
		if err := yaml.Unmarshal(raw, &override); err != nil {
			return customers.OverridePatch{}, fmt.Errorf("parse override file: %w", err)
		}
		return customers.OverridePatch{
			Primary: override.Primary,
			Backup:  override.Backup,
			Note:    override.Note,
		}, nil
	}

	patch := customers.OverridePatch{Note: f.note, ClearNote: f.clearNote}
	if f.primaryShare != "" {
		patch.Primary = &model.Node{Share: f.primaryShare}
	}
	if f.backupShare != "" {
		patch.Backup = &model.Node{Share: f.backupShare}
	}
	return patch, nil
}

func readNodePair(path string) (model.NodePair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.NodePair{}, fmt.Errorf("read nodes file: %w", err)
	}
	var pair model.NodePair
	if err := yaml.Unmarshal(raw, &pair); err != nil {
		return model.NodePair{}, fmt.Errorf("parse nodes file: %w", err)
	}
	return pair, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
