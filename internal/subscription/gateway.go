package subscription

import (
	"context"
	"errors"

	"github.com/mankindli/sub-gateway/internal/model"
	"github.com/mankindli/sub-gateway/internal/store"
)

// Format selects one of the two client output formats.
type Format string

const (
	FormatV2rayN Format = "v2rayn"
	FormatClash  Format = "clash"
)

// ErrUnknownFormat indicates a format selector outside the supported set.
var ErrUnknownFormat = errors.New("subscription: unknown format")

var errMissingStore = errors.New("subscription: store is required")

// ContentType returns the response content type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatClash:
		return "application/x-yaml; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// ParseFormat validates a request-supplied format selector.
func ParseFormat(raw string) (Format, error) {
	switch Format(raw) {
	case FormatV2rayN, FormatClash:
		return Format(raw), nil
	default:
		return "", ErrUnknownFormat
	}
}

// Gateway answers public subscription reads: one store snapshot per request,
// token lookup, override merge, render. It performs no mutations and needs no
// lock; a read concurrent with a mutation sees either the pre- or the
// post-mutation document, never a mix.
type Gateway struct {
	store *store.Store
}

// NewGateway constructs the read-side gateway over the store.
func NewGateway(st *store.Store) (*Gateway, error) {
	if st == nil {
		return nil, errMissingStore
	}
	return &Gateway{store: st}, nil
}

// Render looks up the customer by token and renders the requested format.
// Fails with store.ErrNotFound for an unknown token and ErrDisabled for a
// disabled record; callers on the public surface must collapse both into one
// generic refusal.
func (g *Gateway) Render(ctx context.Context, token string, format Format) ([]byte, model.Customer, error) {
	doc, err := g.store.Load()
	if err != nil {
		return nil, model.Customer{}, err
	}

	var customer model.Customer
	found := false
	for _, candidate := range doc.Customers {
		if candidate.Token == token {
			customer = candidate
			found = true
			break
		}
	}
	if !found {
		return nil, model.Customer{}, store.ErrNotFound
	}

	var body []byte
	switch format {
	case FormatV2rayN:
		body, err = RenderV2rayN(customer, doc.DefaultOverride)
	case FormatClash:
		body, err = RenderClash(customer, doc.DefaultOverride)
	default:
		return nil, customer, ErrUnknownFormat
	}
	if err != nil {
		return nil, customer, err
	}
	return body, customer, nil
}
