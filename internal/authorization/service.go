package authorization

import (
	"context"
	"errors"
)

const (
	ObjectHooks   = "hooks"
	ObjectBalance = "balance"
	ObjectHistory = "history"
	ObjectReward  = "reward"
	ObjectClaim   = "claim"
)

const (
	ActionOrderComplete     = "order.complete"
	ActionUserAuthenticated = "user.authenticated"

	ActionBalanceView      = "balance.view"
	ActionBalanceAdjust    = "balance.adjust"
	ActionBalanceReconcile = "balance.reconcile"
	ActionBalanceVerify    = "balance.verify"

	ActionHistoryView = "history.view"

	ActionRewardView   = "reward.view"
	ActionRewardManage = "reward.manage"

	ActionClaimCreate = "claim.create"
	ActionClaimView   = "claim.view"
	ActionClaimRedeem = "claim.redeem"
)

const (
	RoleUser     = "user"
	RoleCheckout = "checkout"
	RoleAuth     = "auth"
	RoleAdmin    = "admin"
)

// Service decides whether an actor may perform action on object. Actors are
// "user:<id>" for storefront customers and "api_key:<name>" for services.
type Service interface {
	Authorize(ctx context.Context, actor, role, object, action string) error
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidRole   = errors.New("invalid_role")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)
