package customers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mankindli/sub-gateway/internal/logging"
	"github.com/mankindli/sub-gateway/internal/model"
	"github.com/mankindli/sub-gateway/internal/store"
	"github.com/mankindli/sub-gateway/internal/subscription"
	"go.uber.org/zap"
)

var (
	errMissingStore = errors.New("customers: store is required")

	noOpLogger = zap.NewNop()
)

// tokenRetryLimit bounds collision regeneration. With 190-bit tokens a single
// retry is already astronomically unlikely; the bound exists so a broken
// randomness source cannot spin forever.
const tokenRetryLimit = 5

// ServiceConfig describes the dependencies of the lifecycle service.
type ServiceConfig struct {
	Store  *store.Store
	Clock  func() time.Time
	Logger *zap.Logger
}

// Service orchestrates every mutation of the customer collection: create,
// update, delete, token rotation, enable/disable, and the emergency
// overrides. All mutations run inside the store's serialization point.
type Service struct {
	store  *store.Store
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the lifecycle service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{store: cfg.Store, clock: clock, logger: logger}, nil
}

// CreateParams carries the admin-supplied fields for a new customer. The
// token is always generated by the service, never client-supplied.
type CreateParams struct {
	Name        string
	Nodes       model.NodePair
	Enabled     *bool
	IPSource    string
	ExpiresAt   *time.Time
	Remark      string
	PrimaryName string
	BackupName  string
}

// Create validates the node pair, mints a fresh unique token and persists the
// new record. Returns the stored record including its token.
func (s *Service) Create(ctx context.Context, params CreateParams) (model.Customer, error) {
	if params.Name == "" {
		return model.Customer{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if err := validateNodePair(params.Nodes); err != nil {
		return model.Customer{}, err
	}

	enabled := true
	if params.Enabled != nil {
		enabled = *params.Enabled
	}

	var created model.Customer
	err := s.store.Mutate(func(doc *model.Document) error {
		token, err := s.freshToken(doc)
		if err != nil {
			return err
		}
		now := s.clock().UTC()
		created = model.Customer{
			Token:       token,
			Name:        params.Name,
			Enabled:     enabled,
			Nodes:       params.Nodes,
			IPSource:    params.IPSource,
			ExpiresAt:   params.ExpiresAt,
			Remark:      params.Remark,
			PrimaryName: params.PrimaryName,
			BackupName:  params.BackupName,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		doc.Customers = append(doc.Customers, created)
		return nil
	})
	if err != nil {
		return model.Customer{}, err
	}

	s.logger.Info("customer created",
		zap.String("name", created.Name),
		zap.String("token_prefix", logging.TokenPrefix(created.Token)))
	return created, nil
}

// List returns a snapshot of every customer record in store order.
func (s *Service) List(ctx context.Context) ([]model.Customer, error) {
	doc, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	out := make([]model.Customer, 0, len(doc.Customers))
	for _, customer := range doc.Customers {
		out = append(out, customer.Clone())
	}
	return out, nil
}

// Get returns the record carrying the token, or store.ErrNotFound.
func (s *Service) Get(ctx context.Context, token string) (model.Customer, error) {
	return s.store.FindByToken(token)
}

// DefaultOverride returns the store-wide emergency override, if configured.
func (s *Service) DefaultOverride(ctx context.Context) (*model.Override, error) {
	return s.store.DefaultOverride()
}

// UpdatePatch carries a partial update. Nil fields stay untouched; the token
// itself can only change through RotateToken. ClearExpiresAt removes a set
// expiry; a nil ExpiresAt alone means "leave it alone", not "clear it".
type UpdatePatch struct {
	Name           *string
	Enabled        *bool
	Nodes          *model.NodePair
	IPSource       *string
	ExpiresAt      *time.Time
	ClearExpiresAt bool
	Remark         *string
	PrimaryName    *string
	BackupName     *string
}

// Update applies a partial update to the record carrying the token.
func (s *Service) Update(ctx context.Context, token string, patch UpdatePatch) (model.Customer, error) {
	if patch.Nodes != nil {
		if err := validateNodePair(*patch.Nodes); err != nil {
			return model.Customer{}, err
		}
	}

	var updated model.Customer
	err := s.mutateCustomer(token, func(customer *model.Customer) error {
		if patch.Name != nil {
			customer.Name = *patch.Name
		}
		if patch.Enabled != nil {
			customer.Enabled = *patch.Enabled
		}
		if patch.Nodes != nil {
			customer.Nodes = *patch.Nodes
		}
		if patch.IPSource != nil {
			customer.IPSource = *patch.IPSource
		}
		switch {
		case patch.ClearExpiresAt:
			customer.ExpiresAt = nil
		case patch.ExpiresAt != nil:
			customer.ExpiresAt = patch.ExpiresAt
		}
		if patch.Remark != nil {
			customer.Remark = *patch.Remark
		}
		if patch.PrimaryName != nil {
			customer.PrimaryName = *patch.PrimaryName
		}
		if patch.BackupName != nil {
			customer.BackupName = *patch.BackupName
		}
		updated = customer.Clone()
		return nil
	})
	if err != nil {
		return model.Customer{}, err
	}

	s.logger.Info("customer updated",
		zap.String("name", updated.Name),
		zap.String("token_prefix", logging.TokenPrefix(token)))
	return updated, nil
}

// Delete removes the record carrying the token. Irreversible.
func (s *Service) Delete(ctx context.Context, token string) error {
	err := s.store.Mutate(func(doc *model.Document) error {
		for i, customer := range doc.Customers {
			if customer.Token == token {
				doc.Customers = append(doc.Customers[:i], doc.Customers[i+1:]...)
				return nil
			}
		}
		return store.ErrNotFound
	})
	if err != nil {
		return err
	}
	s.logger.Info("customer deleted", zap.String("token_prefix", logging.TokenPrefix(token)))
	return nil
}

// RotateToken replaces the record's token with a fresh one distinct from
// every live token, including the one being replaced. The old token is
// rejected by all subsequent lookups immediately and permanently.
func (s *Service) RotateToken(ctx context.Context, oldToken string) (model.Customer, error) {
	var rotated model.Customer
	err := s.store.Mutate(func(doc *model.Document) error {
		for i := range doc.Customers {
			if doc.Customers[i].Token != oldToken {
				continue
			}
			token, err := s.freshToken(doc)
			if err != nil {
				return err
			}
			doc.Customers[i].Token = token
			doc.Customers[i].UpdatedAt = s.clock().UTC()
			rotated = doc.Customers[i].Clone()
			return nil
		}
		return store.ErrNotFound
	})
	if err != nil {
		return model.Customer{}, err
	}

	s.logger.Info("token rotated",
		zap.String("name", rotated.Name),
		zap.String("old_token_prefix", logging.TokenPrefix(oldToken)),
		zap.String("new_token_prefix", logging.TokenPrefix(rotated.Token)))
	return rotated, nil
}

// OverridePatch carries an incremental emergency override: each supplied
// slot merges field by field into the stored override, so an operator can
// set primary now and add backup later without restating the first call.
// An empty Note leaves the stored note alone; ClearNote removes it.
type OverridePatch struct {
	Primary   *model.Node
	Backup    *model.Node
	Note      string
	ClearNote bool
}

// SetOverride merges the patch into the record's stored override. The merge
// takes effect on the next public read; there is no propagation step.
func (s *Service) SetOverride(ctx context.Context, token string, patch OverridePatch) error {
	if err := validateOverridePatch(patch); err != nil {
		return err
	}
	err := s.mutateCustomer(token, func(customer *model.Customer) error {
		customer.Override = mergeOverride(customer.Override, patch)
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("override set", zap.String("token_prefix", logging.TokenPrefix(token)))
	return nil
}

// ClearOverride removes the record's override entirely.
func (s *Service) ClearOverride(ctx context.Context, token string) error {
	err := s.mutateCustomer(token, func(customer *model.Customer) error {
		customer.Override = nil
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("override cleared", zap.String("token_prefix", logging.TokenPrefix(token)))
	return nil
}

// SetDefaultOverride merges the patch into the store-wide emergency override,
// which applies to every enabled customer slot without a record override.
func (s *Service) SetDefaultOverride(ctx context.Context, patch OverridePatch) error {
	if err := validateOverridePatch(patch); err != nil {
		return err
	}
	err := s.store.Mutate(func(doc *model.Document) error {
		doc.DefaultOverride = mergeOverride(doc.DefaultOverride, patch)
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("default override set")
	return nil
}

// ClearDefaultOverride removes the store-wide emergency override.
func (s *Service) ClearDefaultOverride(ctx context.Context) error {
	err := s.store.Mutate(func(doc *model.Document) error {
		doc.DefaultOverride = nil
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("default override cleared")
	return nil
}

// Enable switches the customer's subscription back on.
func (s *Service) Enable(ctx context.Context, token string) error {
	return s.setEnabled(token, true)
}

// Disable refuses all public reads for the customer until re-enabled.
func (s *Service) Disable(ctx context.Context, token string) error {
	return s.setEnabled(token, false)
}

func (s *Service) setEnabled(token string, enabled bool) error {
	err := s.mutateCustomer(token, func(customer *model.Customer) error {
		customer.Enabled = enabled
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("customer toggled",
		zap.String("token_prefix", logging.TokenPrefix(token)),
		zap.Bool("enabled", enabled))
	return nil
}

// mutateCustomer locates the record by token inside a store mutation and
// applies fn to it, stamping UpdatedAt on success.
func (s *Service) mutateCustomer(token string, fn func(customer *model.Customer) error) error {
	return s.store.Mutate(func(doc *model.Document) error {
		for i := range doc.Customers {
			if doc.Customers[i].Token == token {
				if err := fn(&doc.Customers[i]); err != nil {
					return err
				}
				doc.Customers[i].UpdatedAt = s.clock().UTC()
				return nil
			}
		}
		return store.ErrNotFound
	})
}

func (s *Service) freshToken(doc *model.Document) (string, error) {
	for attempt := 0; attempt < tokenRetryLimit; attempt++ {
		token, err := GenerateToken()
		if err != nil {
			return "", err
		}
		if !store.TokenLive(doc, token) {
			return token, nil
		}
	}
	return "", fmt.Errorf("%w: could not mint a unique token", store.ErrTokenExists)
}

func mergeOverride(existing *model.Override, patch OverridePatch) *model.Override {
	merged := model.Override{}
	if existing != nil {
		merged = *existing
	}
	if patch.Primary != nil {
		merged.Primary = mergeOverrideSlot(merged.Primary, patch.Primary)
	}
	if patch.Backup != nil {
		merged.Backup = mergeOverrideSlot(merged.Backup, patch.Backup)
	}
	switch {
	case patch.ClearNote:
		merged.Note = ""
	case patch.Note != "":
		merged.Note = patch.Note
	}
	return &merged
}

func mergeOverrideSlot(existing, supplied *model.Node) *model.Node {
	if existing == nil {
		node := supplied.Clone()
		return &node
	}
	node := subscription.Overlay(*existing, supplied)
	return &node
}
