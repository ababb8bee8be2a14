/*
vin.go - Client VIN registry

PURPOSE:
  A client can register the vehicles they bring in: VIN plus an optional
  machine label. VINs are normalized to uppercase and must be exactly 17
  alphanumeric characters. A client cannot register the same VIN twice.
*/
package ledger

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const vinLength = 17

var vinPattern = regexp.MustCompile(`^[A-Z0-9]{17}$`)

// NormalizeVIN trims and uppercases a raw VIN string.
func NormalizeVIN(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ValidateVIN checks the normalized form: 17 latin letters or digits.
func ValidateVIN(vin string) error {
	if len(vin) != vinLength || !vinPattern.MatchString(vin) {
		return &ValidationError{Field: "vin", Reason: "must be 17 latin letters or digits"}
	}
	return nil
}

// VINService manages the per-client VIN registry.
type VINService struct {
	Store Store
}

// NewVINService creates a VIN service over the given store.
func NewVINService(store Store) *VINService {
	return &VINService{Store: store}
}

// AddVIN registers a VIN for a client.
func (s *VINService) AddVIN(ctx context.Context, clientID, rawVIN, machineLabel string) (*VIN, error) {
	vin := NormalizeVIN(rawVIN)
	if err := ValidateVIN(vin); err != nil {
		return nil, err
	}

	v := &VIN{
		ID:           uuid.NewString(),
		ClientID:     clientID,
		VIN:          vin,
		MachineLabel: strings.TrimSpace(machineLabel),
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.Store.AddVIN(ctx, v); err != nil {
		return nil, storageErr("add vin", err)
	}
	return v, nil
}

// VINsForClient lists a client's VINs, oldest first.
func (s *VINService) VINsForClient(ctx context.Context, clientID string) ([]VIN, error) {
	vins, err := s.Store.VINsForClient(ctx, clientID)
	if err != nil {
		return nil, storageErr("list vins", err)
	}
	return vins, nil
}

// VINsForClients resolves VINs for a batch of clients in one query, keyed
// by client id. Feeds the client list view alongside the batched balances.
func (s *VINService) VINsForClients(ctx context.Context, clientIDs []string) (map[string][]VIN, error) {
	vins, err := s.Store.VINsForClients(ctx, clientIDs)
	if err != nil {
		return nil, storageErr("list vins", err)
	}
	return vins, nil
}

// UpdateLabel replaces a VIN's machine label.
func (s *VINService) UpdateLabel(ctx context.Context, id, machineLabel string) (*VIN, error) {
	v, err := s.Store.UpdateVINLabel(ctx, id, strings.TrimSpace(machineLabel))
	if err != nil {
		return nil, storageErr("update vin", err)
	}
	return v, nil
}

// DeleteVIN removes a VIN record.
func (s *VINService) DeleteVIN(ctx context.Context, id string) error {
	return storageErr("delete vin", s.Store.DeleteVIN(ctx, id))
}
