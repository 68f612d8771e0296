package service

import (
	"github.com/volunhub/volunhub-api/internal/models"
	appErrors "github.com/volunhub/volunhub-api/pkg/errors"
)

// Gate is the stateless authorization predicate set consulted before
// every mutating enrollment or ledger call. Authorization failures are
// surfaced as UNAUTHORIZED, distinct from domain invariant failures, so
// callers can tell "you can't do this" apart from "this can't be done".
type Gate struct {
	allowAdminRemoval bool
}

// NewGate constructs the gate with the portal's review policies.
func NewGate(allowAdminRemoval bool) *Gate {
	return &Gate{allowAdminRemoval: allowAdminRemoval}
}

// CanSubmit requires the actor to be the enrolling volunteer. No
// administrator may submit on a volunteer's behalf.
func (g *Gate) CanSubmit(actor models.Actor, volunteerID string) error {
	if actor.ID == "" {
		return appErrors.ErrUnauthorized
	}
	if actor.ID != volunteerID {
		return appErrors.Clone(appErrors.ErrUnauthorized, "enrollments can only be submitted by the volunteer themselves")
	}
	return nil
}

// CanReview requires an administrator role.
func (g *Gate) CanReview(actor models.Actor) error {
	if actor.ID == "" {
		return appErrors.ErrUnauthorized
	}
	if !actor.IsAdmin() {
		return appErrors.Clone(appErrors.ErrUnauthorized, "only administrators may review enrollments")
	}
	return nil
}

// CanWithdraw requires the actor to own the enrollment. Administrators
// may withdraw on a volunteer's behalf only when the removal policy is
// enabled.
func (g *Gate) CanWithdraw(actor models.Actor, ownerVolunteerID string) error {
	if actor.ID == "" {
		return appErrors.ErrUnauthorized
	}
	if actor.ID == ownerVolunteerID {
		return nil
	}
	if g.allowAdminRemoval && actor.IsAdmin() {
		return nil
	}
	return appErrors.Clone(appErrors.ErrUnauthorized, "only the enrolled volunteer may withdraw")
}

// CanManageProjects requires an administrator role for project mutations.
func (g *Gate) CanManageProjects(actor models.Actor) error {
	if actor.ID == "" {
		return appErrors.ErrUnauthorized
	}
	if !actor.IsAdmin() {
		return appErrors.Clone(appErrors.ErrUnauthorized, "only administrators may manage projects")
	}
	return nil
}

// CanManageLedger requires an administrator role for activity mutations.
func (g *Gate) CanManageLedger(actor models.Actor) error {
	if actor.ID == "" {
		return appErrors.ErrUnauthorized
	}
	if !actor.IsAdmin() {
		return appErrors.Clone(appErrors.ErrUnauthorized, "only administrators may manage project activities")
	}
	return nil
}
