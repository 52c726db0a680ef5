package accounts

import (
	"errors"
	"time"
)

// AccountType enumerates chart-of-accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Role is the logical subtype application code resolves accounts by.
// Postings never reference raw account codes.
type Role string

const (
	RoleCash              Role = "CASH"
	RoleBank              Role = "BANK"
	RoleInventory         Role = "INVENTORY"
	RoleReceivable        Role = "RECEIVABLE"
	RolePayable           Role = "PAYABLE"
	RoleSales             Role = "SALES"
	RoleSalesReturn       Role = "SALES_RETURN"
	RoleCOGS              Role = "COGS"
	RolePayrollExpense    Role = "PAYROLL_EXPENSE"
	RolePayrollPayable    Role = "PAYROLL_PAYABLE"
	RoleCommissionExpense Role = "COMMISSION_EXPENSE"
	RoleAdjustmentExpense Role = "ADJUSTMENT_EXPENSE"
	RoleOpeningEquity     Role = "OPENING_EQUITY"
)

// RequiredRoles lists every role postings depend on. Resolution fails fast
// when any of these is missing from the seeded system accounts.
var RequiredRoles = []Role{
	RoleCash,
	RoleBank,
	RoleInventory,
	RoleReceivable,
	RolePayable,
	RoleSales,
	RoleSalesReturn,
	RoleCOGS,
	RolePayrollExpense,
	RolePayrollPayable,
	RoleCommissionExpense,
	RoleAdjustmentExpense,
	RoleOpeningEquity,
}

// Account models a chart of accounts node.
type Account struct {
	ID        int64       `json:"id"`
	Code      string      `json:"code"`
	Name      string      `json:"name"`
	Type      AccountType `json:"type"`
	Role      Role        `json:"role,omitempty"`
	IsSystem  bool        `json:"is_system"`
	IsActive  bool        `json:"is_active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

var (
	// ErrMissingSystemAccount signals a seeding/configuration problem,
	// not recoverable at request time.
	ErrMissingSystemAccount = errors.New("accounts: required system account missing")
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = errors.New("accounts: account not found")
	// ErrDuplicateCode indicates a code collision on create.
	ErrDuplicateCode = errors.New("accounts: account code already exists")
)
