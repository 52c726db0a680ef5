// Package masterdata manages branches and items, the reference data the
// costing and ledger engines resolve against.
package masterdata

import (
	"errors"
	"time"

	"github.com/meridian-retail/meridian/internal/shared"
)

// Branch is one retail location. The short code appears in every voucher
// and transfer number minted for the branch.
type Branch struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Item is one sellable product.
type Item struct {
	ID              int64        `json:"id"`
	SKU             string       `json:"sku"`
	Name            string       `json:"name"`
	Unit            string       `json:"unit"`
	DefaultUnitCost shared.Money `json:"default_unit_cost"`
	DefaultPrice    shared.Money `json:"default_price"`
	IsActive        bool         `json:"is_active"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// CreateBranchInput carries a new branch.
type CreateBranchInput struct {
	Code    string `json:"code" validate:"required,max=10,alphanum"`
	Name    string `json:"name" validate:"required,max=200"`
	Address string `json:"address" validate:"max=500"`
	Phone   string `json:"phone" validate:"max=50"`
}

// CreateItemInput carries a new item.
type CreateItemInput struct {
	SKU             string `json:"sku" validate:"required,max=50"`
	Name            string `json:"name" validate:"required,max=200"`
	Unit            string `json:"unit" validate:"max=20"`
	DefaultUnitCost int64  `json:"default_unit_cost" validate:"gte=0"`
	DefaultPrice    int64  `json:"default_price" validate:"gte=0"`
}

var (
	// ErrBranchNotFound indicates a missing branch.
	ErrBranchNotFound = errors.New("masterdata: branch not found")
	// ErrItemNotFound indicates a missing item.
	ErrItemNotFound = errors.New("masterdata: item not found")
	// ErrDuplicateCode indicates a branch code or item SKU collision.
	ErrDuplicateCode = errors.New("masterdata: code already exists")
)
