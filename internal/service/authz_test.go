package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/volunhub/volunhub-api/internal/models"
)

func TestCanSubmitOnlyBySelf(t *testing.T) {
	gate := NewGate(false)

	assert.NoError(t, gate.CanSubmit(models.Actor{ID: "v1", Role: models.RoleVolunteer}, "v1"))
	assert.Error(t, gate.CanSubmit(models.Actor{ID: "v2", Role: models.RoleVolunteer}, "v1"))
	// Administrators get no exemption from the self-only rule.
	assert.Error(t, gate.CanSubmit(models.Actor{ID: "a1", Role: models.RoleAdmin}, "v1"))
	assert.Error(t, gate.CanSubmit(models.Actor{}, "v1"))
}

func TestCanReviewRequiresAdminRole(t *testing.T) {
	gate := NewGate(false)

	assert.NoError(t, gate.CanReview(models.Actor{ID: "a1", Role: models.RoleAdmin}))
	assert.NoError(t, gate.CanReview(models.Actor{ID: "s1", Role: models.RoleSuperAdmin}))
	assert.Error(t, gate.CanReview(models.Actor{ID: "v1", Role: models.RoleVolunteer}))
	assert.Error(t, gate.CanReview(models.Actor{}))
}

func TestCanWithdrawRespectsRemovalPolicy(t *testing.T) {
	owner := models.Actor{ID: "v1", Role: models.RoleVolunteer}
	admin := models.Actor{ID: "a1", Role: models.RoleAdmin}

	strict := NewGate(false)
	assert.NoError(t, strict.CanWithdraw(owner, "v1"))
	assert.Error(t, strict.CanWithdraw(admin, "v1"))

	permissive := NewGate(true)
	assert.NoError(t, permissive.CanWithdraw(admin, "v1"))
	assert.Error(t, permissive.CanWithdraw(models.Actor{ID: "v2", Role: models.RoleVolunteer}, "v1"))
}

func TestCanManageProjectsAndLedger(t *testing.T) {
	gate := NewGate(false)
	admin := models.Actor{ID: "a1", Role: models.RoleAdmin}
	volunteer := models.Actor{ID: "v1", Role: models.RoleVolunteer}

	assert.NoError(t, gate.CanManageProjects(admin))
	assert.Error(t, gate.CanManageProjects(volunteer))
	assert.NoError(t, gate.CanManageLedger(admin))
	assert.Error(t, gate.CanManageLedger(volunteer))
}
