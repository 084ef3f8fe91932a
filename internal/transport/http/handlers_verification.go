package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"dataledger/pkg/domain"
	"dataledger/pkg/platform/httputil"
	"dataledger/pkg/requestcontext"
)

func recordIDFromPath(r *http.Request) (domain.RecordID, error) {
	return domain.ParseRecordID(chi.URLParam(r, "recordID"))
}

type depositStakeRequest struct {
	RecordID  uint64 `json:"record_id"`
	AmountWei uint64 `json:"amount_wei"`
}

func (h *handler) handleDepositStake(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[depositStakeRequest](w, r, h.logger)
	if !ok {
		return
	}

	owner := domain.OwnerID(requestcontext.CallerID(ctx))
	stake, err := h.svc.Verification.DepositStake(ctx, owner, domain.RecordID(req.RecordID), domain.Wei(req.AmountWei))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, stake)
}

func (h *handler) handleGetStake(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := recordIDFromPath(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	stake, err := h.svc.Verification.GetStake(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stake)
}

type submitScoreRequest struct {
	Score  int      `json:"score"`
	Claims []string `json:"claims"`
}

func (h *handler) handleSubmitScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := recordIDFromPath(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[submitScoreRequest](w, r, h.logger)
	if !ok {
		return
	}

	stake, err := h.svc.Verification.SubmitConfidenceScore(ctx, requestcontext.CallerID(ctx), id, req.Score, req.Claims)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stake)
}

func (h *handler) handleOpenDispute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := recordIDFromPath(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	stake, err := h.svc.Verification.OpenDispute(ctx, requestcontext.CallerID(ctx), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stake)
}

type resolveDisputeRequest struct {
	Confirmed bool `json:"confirmed"`
}

func (h *handler) handleResolveDispute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := recordIDFromPath(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[resolveDisputeRequest](w, r, h.logger)
	if !ok {
		return
	}

	stake, err := h.svc.Verification.ResolveDispute(ctx, requestcontext.CallerID(ctx), id, req.Confirmed)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stake)
}

func (h *handler) handleWithdrawStake(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := recordIDFromPath(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	owner := domain.OwnerID(requestcontext.CallerID(ctx))
	amount, err := h.svc.Verification.WithdrawStake(ctx, owner, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, withdrawalResponse{AmountWei: uint64(amount)})
}

type reputationResponse struct {
	OwnerID string `json:"owner_id"`
	Score   int    `json:"score"`
}

func (h *handler) handleGetReputation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, err := domain.ParseOwnerID(chi.URLParam(r, "ownerID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	score, err := h.svc.Verification.GetReputation(ctx, owner)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reputationResponse{OwnerID: owner.String(), Score: score})
}
