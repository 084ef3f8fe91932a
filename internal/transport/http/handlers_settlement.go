package httptransport

import (
	"net/http"

	"dataledger/pkg/domain"
	"dataledger/pkg/platform/httputil"
	"dataledger/pkg/requestcontext"
)

type withdrawalResponse struct {
	AmountWei uint64 `json:"amount_wei"`
}

func (h *handler) handleWithdrawEarnings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := domain.OwnerID(requestcontext.CallerID(ctx))

	amount, err := h.svc.Settlement.WithdrawEarnings(ctx, owner)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, withdrawalResponse{AmountWei: uint64(amount)})
}

type balanceResponse struct {
	BalanceWei uint64 `json:"balance_wei"`
}

func (h *handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := domain.OwnerID(requestcontext.CallerID(ctx))

	balance, err := h.svc.Settlement.Balance(ctx, owner)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, balanceResponse{BalanceWei: uint64(balance)})
}

type spentResponse struct {
	SpentWei uint64 `json:"spent_wei"`
}

func (h *handler) handleSpent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requester := domain.RequesterID(requestcontext.CallerID(ctx))

	spent, err := h.svc.Settlement.Spent(ctx, requester)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, spentResponse{SpentWei: uint64(spent)})
}

func (h *handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Settlement.GetStats(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}
