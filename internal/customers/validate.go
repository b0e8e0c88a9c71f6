package customers

import (
	"errors"
	"fmt"

	"github.com/mankindli/sub-gateway/internal/model"
)

// ErrValidation indicates a malformed node or override payload on
// create/update/override. The wrapped detail names the offending field.
var ErrValidation = errors.New("customers: invalid payload")

// requiredClashKeys are the only descriptor fields the engine interprets:
// every full descriptor must be renderable for Clash clients, which at
// minimum means an addressable endpoint of a known type. Everything else in
// the mapping passes through untouched.
var requiredClashKeys = []string{"type", "server", "port"}

func validateNode(slot string, node model.Node) error {
	if node.Share == "" {
		return fmt.Errorf("%w: %s node requires a share URI", ErrValidation, slot)
	}
	if len(node.Clash) == 0 {
		return fmt.Errorf("%w: %s node requires clash fields", ErrValidation, slot)
	}
	for _, key := range requiredClashKeys {
		value, ok := node.Clash[key]
		if !ok || value == nil || value == "" {
			return fmt.Errorf("%w: %s node clash config requires %q", ErrValidation, slot, key)
		}
	}
	return nil
}

func validateNodePair(pair model.NodePair) error {
	if err := validateNode("primary", pair.Primary); err != nil {
		return err
	}
	return validateNode("backup", pair.Backup)
}

// validateOverrideNode accepts partial descriptors: an override may replace
// just the share URI, just some clash fields, or both, but must not be empty.
func validateOverrideNode(slot string, node *model.Node) error {
	if node == nil {
		return nil
	}
	if node.Share == "" && len(node.Clash) == 0 {
		return fmt.Errorf("%w: %s override must set share or clash fields", ErrValidation, slot)
	}
	return nil
}

func validateOverridePatch(patch OverridePatch) error {
	if patch.Primary == nil && patch.Backup == nil && patch.Note == "" && !patch.ClearNote {
		return fmt.Errorf("%w: override must supply primary, backup or a note change", ErrValidation)
	}
	if err := validateOverrideNode("primary", patch.Primary); err != nil {
		return err
	}
	return validateOverrideNode("backup", patch.Backup)
}
