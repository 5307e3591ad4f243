package authorization

import (
	"context"
	"testing"

	"github.com/smallbiznis/loyalty/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) *ServiceImpl {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer}).(*ServiceImpl)
}

func TestAuthorizeRoles(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		actor  string
		role   string
		object string
		action string
		want   error
	}{
		{"user claims", "user:u-1", RoleUser, ObjectClaim, ActionClaimCreate, nil},
		{"user cannot adjust", "user:u-1", RoleUser, ObjectBalance, ActionBalanceAdjust, ErrForbidden},
		{"checkout completes order", "api_key:pos", RoleCheckout, ObjectHooks, ActionOrderComplete, nil},
		{"checkout cannot bind guests", "api_key:pos", RoleCheckout, ObjectHooks, ActionUserAuthenticated, ErrForbidden},
		{"auth binds guests", "api_key:idp", RoleAuth, ObjectHooks, ActionUserAuthenticated, nil},
		{"admin wildcard", "api_key:ops", RoleAdmin, ObjectBalance, ActionBalanceReconcile, nil},
		{"unknown role", "api_key:x", "guest", ObjectReward, ActionRewardView, ErrForbidden},
		{"bad actor", "svc:x", RoleAdmin, ObjectReward, ActionRewardView, ErrInvalidActor},
		{"missing action", "user:u-1", RoleUser, ObjectReward, "", ErrInvalidAction},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Authorize(ctx, tc.actor, tc.role, tc.object, tc.action)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestAuthorizeRebindsRole(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, "api_key:ops", RoleAdmin, ObjectReward, ActionRewardManage))
	err := svc.Authorize(ctx, "api_key:ops", RoleCheckout, ObjectReward, ActionRewardManage)
	assert.ErrorIs(t, err, ErrForbidden)

	roles, err := svc.enforcer.GetRolesForUser("api_key:ops")
	require.NoError(t, err)
	assert.Equal(t, []string{"role:checkout"}, roles)
}

func TestNewEnforcerIsIdempotent(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)

	_, err = NewEnforcer(conn)
	require.NoError(t, err)
	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)

	policies, err := enforcer.GetPolicy()
	require.NoError(t, err)
	assert.Len(t, policies, 13)
}
