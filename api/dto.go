/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  JSON shapes exposed to UI collaborators, kept separate from the domain
  types. Monetary fields are serialized as numbers already rounded to 2
  places; timestamps are RFC3339 with timezone.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/loyalty-ledger/ledger"
)

// =============================================================================
// CLIENT DTOs
// =============================================================================

// ClientDTO is a client account with its cached totals. AvailableBonus is
// the derived redeemable subset; on the list view it is filled best-effort
// and may be zero when the balance read failed.
type ClientDTO struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Phone             string   `json:"phone,omitempty"`
	Role              string   `json:"role"`
	BonusBalance      float64  `json:"bonus_balance"`
	AvailableBonus    float64  `json:"available_bonus"`
	TotalPurchasesSum float64  `json:"total_purchases_sum"`
	TotalOrdersCount  int      `json:"total_orders_count"`
	CreatedAt         string   `json:"created_at"`
	VINs              []VINDTO `json:"vins"`
}

// CreateClientRequest registers a new client account.
type CreateClientRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Role  string `json:"role,omitempty"`
}

// UpdateClientRequest carries partial updates; omitted fields are unchanged.
type UpdateClientRequest struct {
	Name  *string `json:"name,omitempty"`
	Phone *string `json:"phone,omitempty"`
	Role  *string `json:"role,omitempty"`
}

// VINDTO is one registered vehicle identifier.
type VINDTO struct {
	ID           string `json:"id"`
	ClientID     string `json:"client_id"`
	VIN          string `json:"vin"`
	MachineLabel string `json:"machine_label,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// AddVINRequest registers a VIN for a client.
type AddVINRequest struct {
	VIN          string `json:"vin"`
	MachineLabel string `json:"machine_label,omitempty"`
}

// UpdateVINRequest replaces a VIN's machine label.
type UpdateVINRequest struct {
	MachineLabel string `json:"machine_label"`
}

// =============================================================================
// PURCHASE / REFUND DTOs
// =============================================================================

// CreatePurchaseRequest records a sale. AccrueBonus defaults to true; set
// it to false for redeem-only purchases that must not earn new bonus.
type CreatePurchaseRequest struct {
	ClientID       string  `json:"client_id"`
	PurchaseAmount float64 `json:"purchase_amount"`
	BonusUsed      float64 `json:"bonus_used"`
	AccrueBonus    *bool   `json:"accrue_bonus,omitempty"`
}

// TransactionDTO is one ledger row.
type TransactionDTO struct {
	ID             string  `json:"id"`
	ClientID       string  `json:"client_id"`
	PurchaseAmount float64 `json:"purchase_amount"`
	BonusUsed      float64 `json:"bonus_used"`
	BonusEarned    float64 `json:"bonus_earned"`
	FinalPaid      float64 `json:"final_paid"`
	CreatedAt      string  `json:"created_at"`
	IsRefund       bool    `json:"is_refund"`
	RefundFor      string  `json:"refund_for,omitempty"`
}

// AnnotatedTransactionDTO adds the derived refunded flag for sales views.
type AnnotatedTransactionDTO struct {
	TransactionDTO
	IsRefunded bool `json:"is_refunded"`
}

// PurchaseSummaryDTO is one row of a client's purchase history.
type PurchaseSummaryDTO struct {
	ID             string  `json:"id"`
	CreatedAt      string  `json:"created_at"`
	PurchaseAmount float64 `json:"purchase_amount"`
}

// =============================================================================
// BALANCE DTOs
// =============================================================================

// AvailableBalanceDTO is the redeemable bonus for one client.
type AvailableBalanceDTO struct {
	ClientID       string  `json:"client_id"`
	AvailableBonus float64 `json:"available_bonus"`
	MaxRedeemable  float64 `json:"max_redeemable,omitempty"`
}

// BatchBalancesRequest asks for redeemable balances of several clients.
type BatchBalancesRequest struct {
	ClientIDs []string `json:"client_ids"`
}

// =============================================================================
// SALES DTOs
// =============================================================================

// DailySummaryDTO is one UTC day of aggregated sales.
type DailySummaryDTO struct {
	Date                string  `json:"date"`
	OrdersCount         int     `json:"orders_count"`
	TotalPurchaseAmount float64 `json:"total_purchase_amount"`
	TotalFinalPaid      float64 `json:"total_final_paid"`
	TotalBonusUsed      float64 `json:"total_bonus_used"`
	TotalBonusEarned    float64 `json:"total_bonus_earned"`
}

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func toClientDTO(c ledger.Client, available decimal.Decimal, vins []ledger.VIN) ClientDTO {
	dto := ClientDTO{
		ID:                c.ID,
		Name:              c.Name,
		Phone:             c.Phone,
		Role:              string(c.Role),
		BonusBalance:      toFloat(c.BonusBalance),
		AvailableBonus:    toFloat(available),
		TotalPurchasesSum: toFloat(c.TotalPurchasesSum),
		TotalOrdersCount:  c.TotalOrdersCount,
		CreatedAt:         c.CreatedAt.Format(time.RFC3339),
		VINs:              make([]VINDTO, 0, len(vins)),
	}
	for _, v := range vins {
		dto.VINs = append(dto.VINs, toVINDTO(v))
	}
	return dto
}

func toVINDTO(v ledger.VIN) VINDTO {
	return VINDTO{
		ID:           v.ID,
		ClientID:     v.ClientID,
		VIN:          v.VIN,
		MachineLabel: v.MachineLabel,
		CreatedAt:    v.CreatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTO(t ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:             t.ID,
		ClientID:       t.ClientID,
		PurchaseAmount: toFloat(t.PurchaseAmount),
		BonusUsed:      toFloat(t.BonusUsed),
		BonusEarned:    toFloat(t.BonusEarned),
		FinalPaid:      toFloat(t.FinalPaid),
		CreatedAt:      t.CreatedAt.Format(time.RFC3339),
		IsRefund:       t.IsRefund,
		RefundFor:      t.RefundFor,
	}
}

func toDailySummaryDTO(s ledger.DailySummary) DailySummaryDTO {
	return DailySummaryDTO{
		Date:                s.Date,
		OrdersCount:         s.OrdersCount,
		TotalPurchaseAmount: toFloat(s.TotalPurchaseAmount),
		TotalFinalPaid:      toFloat(s.TotalFinalPaid),
		TotalBonusUsed:      toFloat(s.TotalBonusUsed),
		TotalBonusEarned:    toFloat(s.TotalBonusEarned),
	}
}
