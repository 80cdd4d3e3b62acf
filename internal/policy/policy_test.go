package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"opexhub/internal/domain"
)

func user(email, role string) domain.User {
	return domain.User{Email: email, Role: role}
}

func strp(s string) *string { return &s }

func TestMonitoringPredicates(t *testing.T) {
	entry := domain.MonitoringEntry{EnteredBy: "owner@example.com"}

	owner := user("Owner@example.com", RoleSiteLead)
	otherLead := user("other@example.com", RoleSiteLead)
	finance := user("fa@example.com", RoleFinance)
	admin := user("admin@example.com", RoleAdmin)
	head := user("owner@example.com", RoleSiteHead)

	assert.True(t, CanEditMonitoring(owner, entry))
	assert.False(t, CanEditMonitoring(otherLead, entry))
	assert.True(t, CanEditMonitoring(finance, entry))
	assert.True(t, CanEditMonitoring(admin, entry))
	assert.False(t, CanEditMonitoring(head, entry), "matching email without STLD role")

	assert.True(t, CanFinalizeMonitoring(owner, entry))
	assert.False(t, CanFinalizeMonitoring(finance, entry))
	assert.True(t, CanFinalizeMonitoring(admin, entry))

	assert.True(t, CanApproveMonitoring(finance))
	assert.True(t, CanApproveMonitoring(admin))
	assert.False(t, CanApproveMonitoring(owner))

	assert.True(t, CanCreateMonitoring(owner))
	assert.False(t, CanCreateMonitoring(finance))
}

func TestTimelinePredicates(t *testing.T) {
	lead := "lead@example.com"
	assert.True(t, CanManageTimeline(user("LEAD@example.com", RoleSiteHead), lead))
	assert.True(t, CanManageTimeline(user("x@example.com", RoleInitiativeLead), lead))
	assert.True(t, CanManageTimeline(user("x@example.com", RoleAdmin), lead))
	assert.False(t, CanManageTimeline(user("x@example.com", RoleSiteLead), lead))
	assert.False(t, CanManageTimeline(user("", RoleSiteLead), ""), "empty emails never match")

	assert.True(t, CanApproveSiteLead(user("x@example.com", RoleSiteLead)))
	assert.False(t, CanApproveSiteLead(user("x@example.com", RoleInitiativeLead)))
	assert.True(t, CanApproveInitiativeLead(user("x@example.com", RoleInitiativeLead), lead))
}

func TestCanProcessStage(t *testing.T) {
	tx := domain.WorkflowTransaction{RequiredRole: RoleSiteHead, ApproveStatus: domain.StagePending}
	assert.True(t, CanProcessStage(user("sh@example.com", RoleSiteHead), tx))
	assert.False(t, CanProcessStage(user("sh@example.com", RoleEngHead), tx))

	tx.AssignedUserEmail = strp("priya@example.com")
	assert.False(t, CanProcessStage(user("sh@example.com", RoleSiteHead), tx))
	assert.True(t, CanProcessStage(user("Priya@example.com", RoleSiteHead), tx))
	assert.True(t, CanProcessStage(user("root@example.com", RoleAdmin), tx))

	tx.ApproveStatus = domain.StageApproved
	assert.False(t, CanProcessStage(user("priya@example.com", RoleSiteHead), tx))
	assert.False(t, CanProcessStage(user("root@example.com", RoleAdmin), tx))
}

func TestCanCreateInitiative(t *testing.T) {
	assert.True(t, CanCreateInitiative(user("a@example.com", RoleSiteLead), RoleSiteLead))
	assert.False(t, CanCreateInitiative(user("a@example.com", RoleAdmin), RoleSiteLead))
	assert.True(t, HasPermission([]string{"a", "b"}, "b"))
	assert.False(t, HasPermission(nil, "b"))
}
