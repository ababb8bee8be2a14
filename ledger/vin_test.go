/*
vin_test.go - VIN registry tests
*/
package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/loyalty-ledger/ledger"
)

func TestAddVIN_NormalizesAndStores(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	client := newTestClient(t, store, "Vera", "+500000001")
	svc := ledger.NewVINService(store)

	vin, err := svc.AddVIN(ctx, client.ID, "  1hgcm82633a004352 ", "red excavator")
	require.NoError(t, err)
	assert.Equal(t, "1HGCM82633A004352", vin.VIN)
	assert.Equal(t, "red excavator", vin.MachineLabel)

	listed, err := svc.VINsForClient(ctx, client.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, vin.ID, listed[0].ID)
}

func TestAddVIN_RejectsMalformed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	client := newTestClient(t, store, "Wim", "+500000002")
	svc := ledger.NewVINService(store)

	for _, raw := range []string{"", "SHORT", "1HGCM82633A00435", "1HGCM82633A0043521", "1HGCM82633A00435!"} {
		_, err := svc.AddVIN(ctx, client.ID, raw, "")
		assert.Truef(t, ledger.IsValidation(err), "vin %q: expected validation error, got %v", raw, err)
	}
}

func TestAddVIN_DuplicatePerClient(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := newTestClient(t, store, "Xenia", "+500000003")
	other := newTestClient(t, store, "Yuri", "+500000004")
	svc := ledger.NewVINService(store)

	_, err := svc.AddVIN(ctx, owner.ID, "1HGCM82633A004352", "")
	require.NoError(t, err)

	// Same client, same VIN (case-insensitively): conflict
	_, err = svc.AddVIN(ctx, owner.ID, "1hgcm82633a004352", "")
	assert.True(t, ledger.IsConflict(err), "expected conflict, got %v", err)

	// A different client may register the same VIN
	_, err = svc.AddVIN(ctx, other.ID, "1HGCM82633A004352", "")
	require.NoError(t, err)
}

func TestAddVIN_UnknownClient(t *testing.T) {
	store := newTestStore(t)
	svc := ledger.NewVINService(store)

	_, err := svc.AddVIN(context.Background(), "ghost", "1HGCM82633A004352", "")
	assert.True(t, ledger.IsNotFound(err), "expected not-found, got %v", err)
}

func TestVINsForClients_Batch(t *testing.T) {
	// GIVEN: Two clients with VINs and one without
	// WHEN: The batch is resolved in one query
	// THEN: Every VIN lands under its owner; VIN-less clients are absent

	store := newTestStore(t)
	ctx := context.Background()
	first := newTestClient(t, store, "Boris", "+500000007")
	second := newTestClient(t, store, "Carla", "+500000008")
	bare := newTestClient(t, store, "Denis", "+500000009")
	svc := ledger.NewVINService(store)

	_, err := svc.AddVIN(ctx, first.ID, "1HGCM82633A004352", "loader")
	require.NoError(t, err)
	_, err = svc.AddVIN(ctx, first.ID, "5YJSA1DN5CFP01657", "digger")
	require.NoError(t, err)
	_, err = svc.AddVIN(ctx, second.ID, "JH4KA7561PC008269", "")
	require.NoError(t, err)

	byClient, err := svc.VINsForClients(ctx, []string{first.ID, second.ID, bare.ID})
	require.NoError(t, err)

	assert.Len(t, byClient[first.ID], 2)
	assert.Len(t, byClient[second.ID], 1)
	assert.NotContains(t, byClient, bare.ID)

	empty, err := svc.VINsForClients(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestUpdateVINLabel(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	client := newTestClient(t, store, "Zoya", "+500000005")
	svc := ledger.NewVINService(store)

	vin, err := svc.AddVIN(ctx, client.ID, "1HGCM82633A004352", "old label")
	require.NoError(t, err)

	updated, err := svc.UpdateLabel(ctx, vin.ID, "new label")
	require.NoError(t, err)
	assert.Equal(t, "new label", updated.MachineLabel)
	assert.Equal(t, vin.VIN, updated.VIN)

	_, err = svc.UpdateLabel(ctx, "ghost", "label")
	assert.True(t, ledger.IsNotFound(err), "expected not-found, got %v", err)
}

func TestDeleteVIN(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	client := newTestClient(t, store, "Ava", "+500000006")
	svc := ledger.NewVINService(store)

	vin, err := svc.AddVIN(ctx, client.ID, "1HGCM82633A004352", "")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteVIN(ctx, vin.ID))

	listed, err := svc.VINsForClient(ctx, client.ID)
	require.NoError(t, err)
	assert.Empty(t, listed)
}
