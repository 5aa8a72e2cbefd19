// Package service implements the business operations of the bank: user
// registration, account management, money movement, loans and fixed
// deposits. All balance mutations go through the ledger store contract;
// no service touches a balance outside an atomic unit.
package service

import (
	"github.com/avolkov/bankcore/internal/apperr"
	"github.com/avolkov/bankcore/internal/models"
)

// requireOwner rejects customers acting on another user's resource.
// Staff and admins pass.
func requireOwner(actor models.Actor, ownerID int64, message string) error {
	if actor.Role == models.RoleCustomer && actor.UserID != ownerID {
		return apperr.New(apperr.KindForbidden, message)
	}
	return nil
}

// requireStaff rejects actors without staff or admin rights.
func requireStaff(actor models.Actor, message string) error {
	if !actor.Role.Staff() {
		return apperr.New(apperr.KindForbidden, message)
	}
	return nil
}
