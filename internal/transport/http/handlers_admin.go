package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"dataledger/internal/accesscontrol"
	"dataledger/internal/params"
	"dataledger/pkg/domain"
	dErrors "dataledger/pkg/domain-errors"
	"dataledger/pkg/platform/httputil"
	"dataledger/pkg/requestcontext"
)

type roleChangeRequest struct {
	Role     string `json:"role"`
	CallerID string `json:"caller_id"`
}

func (h *handler) parseRoleChange(w http.ResponseWriter, r *http.Request) (accesscontrol.Role, uuid.UUID, bool) {
	req, ok := httputil.Decode[roleChangeRequest](w, r, h.logger)
	if !ok {
		return "", uuid.Nil, false
	}
	role, err := accesscontrol.ParseRole(req.Role)
	if err != nil {
		httputil.WriteError(w, err)
		return "", uuid.Nil, false
	}
	grantee, err := uuid.Parse(req.CallerID)
	if err != nil || grantee == uuid.Nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "caller_id must be a valid UUID"))
		return "", uuid.Nil, false
	}
	return role, grantee, true
}

func (h *handler) handleGrantRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	role, grantee, ok := h.parseRoleChange(w, r)
	if !ok {
		return
	}
	if err := h.svc.Admin.GrantRole(ctx, requestcontext.CallerID(ctx), role, grantee); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "granted"})
}

func (h *handler) handleRevokeRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	role, grantee, ok := h.parseRoleChange(w, r)
	if !ok {
		return
	}
	if err := h.svc.Admin.RevokeRole(ctx, requestcontext.CallerID(ctx), role, grantee); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

type roleMembersResponse struct {
	Role    string   `json:"role"`
	Members []string `json:"members"`
}

func (h *handler) handleListRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	role, err := accesscontrol.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	members, err := h.svc.Admin.Members(ctx, requestcontext.CallerID(ctx), role)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.String()
	}
	httputil.WriteJSON(w, http.StatusOK, roleMembersResponse{Role: string(role), Members: out})
}

func (h *handler) handleGetParams(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg, err := h.svc.Admin.GetParams(ctx, requestcontext.CallerID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cfg)
}

type updateParamsRequest struct {
	AggregateFeeWei     uint64 `json:"aggregate_fee_wei"`
	IndividualFeeWei    uint64 `json:"individual_fee_wei"`
	PlatformBPS         uint64 `json:"platform_bps"`
	KAnonymity          int    `json:"k_anonymity"`
	MaxBatch            int    `json:"max_batch"`
	MinStakeWei         uint64 `json:"min_stake_wei"`
	MaxStakeWei         uint64 `json:"max_stake_wei"`
	ConfidenceThreshold int    `json:"confidence_threshold"`
	DisputeWindowHours  int    `json:"dispute_window_hours"`
}

func (h *handler) handleUpdateParams(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[updateParamsRequest](w, r, h.logger)
	if !ok {
		return
	}

	next := params.Params{
		AggregateFee:        domain.Wei(req.AggregateFeeWei),
		IndividualFee:       domain.Wei(req.IndividualFeeWei),
		PlatformBPS:         req.PlatformBPS,
		KAnonymity:          req.KAnonymity,
		MaxBatch:            req.MaxBatch,
		MinStake:            domain.Wei(req.MinStakeWei),
		MaxStake:            domain.Wei(req.MaxStakeWei),
		ConfidenceThreshold: req.ConfidenceThreshold,
		DisputeWindow:       time.Duration(req.DisputeWindowHours) * time.Hour,
	}
	if err := h.svc.Admin.UpdateParams(ctx, requestcontext.CallerID(ctx), next); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
