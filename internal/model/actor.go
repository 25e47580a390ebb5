package model

import "github.com/google/uuid"

// Capabilities carried in the caller's permission set.
const (
	CapOperateCashRegister = "cash_register.operate"
	CapManageCashRegister  = "cash_register.manage"
	CapManageCommissions   = "commissions.manage"
)

// Actor is the authenticated caller of an operation. It is always passed
// explicitly; nothing in the service layer reads a "current user".
type Actor struct {
	UserID      uuid.UUID
	Permissions []string
}

// Can reports whether the actor holds capability.
func (a Actor) Can(capability string) bool {
	for _, p := range a.Permissions {
		if p == capability {
			return true
		}
	}
	return false
}
