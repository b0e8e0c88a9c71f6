package model

import "time"

// Node describes one proxy endpoint in the two parallel representations the
// gateway serves: a ready-to-use share URI for v2rayN clients and a free-form
// Clash proxy mapping. The engine carries both verbatim; beyond the presence
// checks in validation it never interprets individual Clash fields.
type Node struct {
	Share string         `yaml:"share,omitempty" json:"share,omitempty"`
	Clash map[string]any `yaml:"clash,omitempty" json:"clash,omitempty"`
}

// Clone returns a deep copy. Clash maps are mutable, so every consumer that
// overlays or annotates a node works on its own copy.
func (n Node) Clone() Node {
	out := Node{Share: n.Share}
	if n.Clash != nil {
		out.Clash = make(map[string]any, len(n.Clash))
		for key, value := range n.Clash {
			out.Clash[key] = value
		}
	}
	return out
}

// NodePair holds a customer's base primary and backup endpoints. Both slots
// are required and must be renderable in both formats.
type NodePair struct {
	Primary Node `yaml:"primary" json:"primary"`
	Backup  Node `yaml:"backup" json:"backup"`
}

// Override is a partial replacement of a customer's node pair, used for
// emergency rerouting without touching the base configuration. Either slot
// may be absent, and a present slot may itself be partial: its share and
// clash fields overlay the base descriptor field by field.
type Override struct {
	Primary *Node  `yaml:"primary,omitempty" json:"primary,omitempty"`
	Backup  *Node  `yaml:"backup,omitempty" json:"backup,omitempty"`
	Note    string `yaml:"note,omitempty" json:"note,omitempty"`
}

// Customer is the token-keyed aggregate the store persists. The token is the
// sole credential granting read access to the subscription endpoints.
type Customer struct {
	Token   string `yaml:"token" json:"token"`
	Name    string `yaml:"name" json:"name"`
	Enabled bool   `yaml:"enabled" json:"enabled"`

	Nodes    NodePair  `yaml:"nodes" json:"nodes"`
	Override *Override `yaml:"override,omitempty" json:"override,omitempty"`

	// Operator metadata. Never consulted when serving subscriptions;
	// expires_at in particular is informational, not enforced.
	IPSource    string     `yaml:"ip_source,omitempty" json:"ip_source,omitempty"`
	ExpiresAt   *time.Time `yaml:"expires_at,omitempty" json:"expires_at,omitempty"`
	Remark      string     `yaml:"remark,omitempty" json:"remark,omitempty"`
	PrimaryName string     `yaml:"primary_name,omitempty" json:"primary_name,omitempty"`
	BackupName  string     `yaml:"backup_name,omitempty" json:"backup_name,omitempty"`

	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}

// Clone returns a deep copy of the customer, including override and clash maps.
func (c Customer) Clone() Customer {
	out := c
	out.Nodes.Primary = c.Nodes.Primary.Clone()
	out.Nodes.Backup = c.Nodes.Backup.Clone()
	if c.Override != nil {
		override := Override{Note: c.Override.Note}
		if c.Override.Primary != nil {
			node := c.Override.Primary.Clone()
			override.Primary = &node
		}
		if c.Override.Backup != nil {
			node := c.Override.Backup.Clone()
			override.Backup = &node
		}
		out.Override = &override
	}
	if c.ExpiresAt != nil {
		expires := *c.ExpiresAt
		out.ExpiresAt = &expires
	}
	return out
}

// EffectivePrimaryName returns the display name used for the primary proxy in
// rendered output.
func (c Customer) EffectivePrimaryName() string {
	if c.PrimaryName != "" {
		return c.PrimaryName
	}
	return "primary"
}

// EffectiveBackupName returns the display name used for the backup proxy.
func (c Customer) EffectiveBackupName() string {
	if c.BackupName != "" {
		return c.BackupName
	}
	return "backup"
}

// Document is the complete durable state of the gateway: the ordered customer
// list plus the optional store-wide emergency override. The YAML form is the
// on-disk layout and is meant to stay hand-editable.
type Document struct {
	Customers       []Customer `yaml:"customers" json:"customers"`
	DefaultOverride *Override  `yaml:"default_override,omitempty" json:"default_override,omitempty"`
}
