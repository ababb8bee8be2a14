/*
clients.go - Client account operations

PURPOSE:
  Create/read/update/delete for client accounts, with input validation and
  phone normalization. New accounts start with all cached totals at zero;
  only the purchase and refund engines mutate them afterwards. Deleting an
  account cascades deletion of its transactions and VINs.
*/
package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ClientService manages client accounts.
type ClientService struct {
	Store Store
}

// NewClientService creates a client service over the given store.
func NewClientService(store Store) *ClientService {
	return &ClientService{Store: store}
}

// CreateClient registers a new account with zeroed totals. Rejects blank
// names, unknown roles and duplicate phones.
func (s *ClientService) CreateClient(ctx context.Context, name, phone string, role Role) (*Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if role == "" {
		role = RoleClient
	}
	if !ValidRole(role) {
		return nil, &ValidationError{Field: "role", Reason: "must be client or master"}
	}

	c := &Client{
		ID:                uuid.NewString(),
		Name:              name,
		Phone:             strings.TrimSpace(phone),
		Role:              role,
		CreatedAt:         time.Now().UTC(),
		BonusBalance:      decimal.Zero,
		TotalPurchasesSum: decimal.Zero,
		TotalOrdersCount:  0,
	}

	if err := s.Store.CreateClient(ctx, c); err != nil {
		return nil, storageErr("create client", err)
	}
	return c, nil
}

// GetClient returns one account.
func (s *ClientService) GetClient(ctx context.Context, id string) (*Client, error) {
	c, err := s.Store.GetClient(ctx, id)
	if err != nil {
		return nil, storageErr("get client", err)
	}
	return c, nil
}

// ListClients returns all accounts with their cached totals.
func (s *ClientService) ListClients(ctx context.Context) ([]Client, error) {
	clients, err := s.Store.ListClients(ctx)
	if err != nil {
		return nil, storageErr("list clients", err)
	}
	return clients, nil
}

// UpdateClient applies partial field updates.
func (s *ClientService) UpdateClient(ctx context.Context, id string, upd ClientUpdate) (*Client, error) {
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
		}
		upd.Name = &trimmed
	}
	if upd.Phone != nil {
		trimmed := strings.TrimSpace(*upd.Phone)
		upd.Phone = &trimmed
	}
	if upd.Role != nil && !ValidRole(*upd.Role) {
		return nil, &ValidationError{Field: "role", Reason: "must be client or master"}
	}

	c, err := s.Store.UpdateClient(ctx, id, upd)
	if err != nil {
		return nil, storageErr("update client", err)
	}
	return c, nil
}

// DeleteClient removes an account and, by cascade, its transactions and VINs.
func (s *ClientService) DeleteClient(ctx context.Context, id string) error {
	return storageErr("delete client", s.Store.DeleteClient(ctx, id))
}

// PurchasesForClient returns the client's purchase history, newest first.
func (s *ClientService) PurchasesForClient(ctx context.Context, clientID string) ([]PurchaseSummary, error) {
	if _, err := s.Store.GetClient(ctx, clientID); err != nil {
		return nil, storageErr("purchases for client", err)
	}
	purchases, err := s.Store.PurchasesForClient(ctx, clientID)
	if err != nil {
		return nil, storageErr("purchases for client", err)
	}
	return purchases, nil
}
