// Package admin is the owner-restricted surface: role management on the
// shared access registry and live updates to the engine parameters.
package admin

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"dataledger/internal/accesscontrol"
	"dataledger/internal/params"
	"dataledger/pkg/platform/audit"
	"dataledger/pkg/requestcontext"
)

type Service struct {
	access  *accesscontrol.Registry
	params  *params.Registry
	auditor audit.Publisher
	logger  *slog.Logger
}

func NewService(access *accesscontrol.Registry, registry *params.Registry, auditor audit.Publisher, logger *slog.Logger) *Service {
	if auditor == nil {
		auditor = audit.NopPublisher{}
	}
	return &Service{access: access, params: registry, auditor: auditor, logger: logger}
}

// GrantRole puts grantee on a role's allow-list. Admin-only.
func (s *Service) GrantRole(ctx context.Context, caller uuid.UUID, role accesscontrol.Role, grantee uuid.UUID) error {
	if err := s.access.Require(ctx, accesscontrol.RoleAdmin, caller); err != nil {
		return err
	}
	if err := s.access.Grant(ctx, role, grantee); err != nil {
		return err
	}
	return s.auditor.Emit(ctx, audit.Event{
		Action:    audit.ActionRoleGranted,
		ActorID:   caller.String(),
		Decision:  string(role),
		Reason:    grantee.String(),
		RequestID: requestcontext.RequestID(ctx),
	})
}

// RevokeRole removes grantee from a role's allow-list. Admin-only.
func (s *Service) RevokeRole(ctx context.Context, caller uuid.UUID, role accesscontrol.Role, grantee uuid.UUID) error {
	if err := s.access.Require(ctx, accesscontrol.RoleAdmin, caller); err != nil {
		return err
	}
	if err := s.access.Revoke(ctx, role, grantee); err != nil {
		return err
	}
	return s.auditor.Emit(ctx, audit.Event{
		Action:    audit.ActionRoleRevoked,
		ActorID:   caller.String(),
		Decision:  string(role),
		Reason:    grantee.String(),
		RequestID: requestcontext.RequestID(ctx),
	})
}

// Members lists a role's current holders. Admin-only.
func (s *Service) Members(ctx context.Context, caller uuid.UUID, role accesscontrol.Role) ([]uuid.UUID, error) {
	if err := s.access.Require(ctx, accesscontrol.RoleAdmin, caller); err != nil {
		return nil, err
	}
	return s.access.Members(ctx, role), nil
}

// GetParams returns the current engine parameters. Admin-only: the fee
// schedule is public through behavior, not through this endpoint.
func (s *Service) GetParams(ctx context.Context, caller uuid.UUID) (params.Params, error) {
	if err := s.access.Require(ctx, accesscontrol.RoleAdmin, caller); err != nil {
		return params.Params{}, err
	}
	return s.params.Get(ctx), nil
}

// UpdateParams swaps in a validated parameter snapshot. Admin-only.
func (s *Service) UpdateParams(ctx context.Context, caller uuid.UUID, next params.Params) error {
	if err := s.access.Require(ctx, accesscontrol.RoleAdmin, caller); err != nil {
		return err
	}
	if err := s.params.Update(ctx, next); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "engine parameters updated",
		"aggregate_fee", uint64(next.AggregateFee),
		"individual_fee", uint64(next.IndividualFee),
		"platform_bps", next.PlatformBPS,
		"k_anonymity", next.KAnonymity,
	)
	return s.auditor.Emit(ctx, audit.Event{
		Action:    audit.ActionParamsUpdated,
		ActorID:   caller.String(),
		RequestID: requestcontext.RequestID(ctx),
	})
}
