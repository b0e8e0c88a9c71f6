package subscription

import (
	"errors"

	"github.com/mankindli/sub-gateway/internal/model"
)

// ErrDisabled indicates a render was attempted for a customer whose
// subscription is switched off. Distinct from a missing record so the admin
// surface can tell "never existed" from "exists but blocked"; the public
// surface collapses both into one generic refusal.
var ErrDisabled = errors.New("subscription: customer disabled")

// Overlay computes the effective descriptor for one slot: override fields
// replace base fields only where the override actually specifies them. The
// share URI is replaced wholesale when set; the clash mapping merges key by
// key over the base mapping, so an operator can override just server and port
// while the base cipher and password stay in force.
func Overlay(base model.Node, override *model.Node) model.Node {
	if override == nil {
		return base.Clone()
	}
	effective := base.Clone()
	if override.Share != "" {
		effective.Share = override.Share
	}
	if len(override.Clash) > 0 {
		if effective.Clash == nil {
			effective.Clash = make(map[string]any, len(override.Clash))
		}
		for key, value := range override.Clash {
			effective.Clash[key] = value
		}
	}
	return effective
}

// EffectiveNodes derives the primary and backup descriptors actually served,
// applying override precedence per slot independently: the record's own
// override wins, then the store-wide default override, then the base node.
// A record override that defines a slot is fully authoritative for that slot;
// the default override is not consulted for it.
func EffectiveNodes(customer model.Customer, defaultOverride *model.Override) (primary, backup model.Node) {
	primary = effectiveSlot(customer.Nodes.Primary, overrideSlot(customer.Override, true), overrideSlot(defaultOverride, true))
	backup = effectiveSlot(customer.Nodes.Backup, overrideSlot(customer.Override, false), overrideSlot(defaultOverride, false))
	return primary, backup
}

func effectiveSlot(base model.Node, record, fallback *model.Node) model.Node {
	if record != nil {
		return Overlay(base, record)
	}
	if fallback != nil {
		return Overlay(base, fallback)
	}
	return base.Clone()
}

func overrideSlot(override *model.Override, primary bool) *model.Node {
	if override == nil {
		return nil
	}
	if primary {
		return override.Primary
	}
	return override.Backup
}
