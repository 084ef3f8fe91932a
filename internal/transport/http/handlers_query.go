package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"dataledger/internal/oracle"
	"dataledger/pkg/domain"
	"dataledger/pkg/platform/httputil"
	"dataledger/pkg/requestcontext"
)

type aggregateQueryRequest struct {
	MinAge     int    `json:"min_age"`
	MaxAge     int    `json:"max_age"`
	Category   string `json:"category"`
	StartIndex uint64 `json:"start_index"`
	BatchSize  int    `json:"batch_size"`
	PaymentWei uint64 `json:"payment_wei"`
}

type queryAcceptedResponse struct {
	QueryID domain.QueryID `json:"query_id"`
}

func (h *handler) handleComputeAggregate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[aggregateQueryRequest](w, r, h.logger)
	if !ok {
		return
	}

	requester := domain.RequesterID(requestcontext.CallerID(ctx))
	queryID, err := h.svc.Oracle.ComputeAggregate(ctx, requester, oracle.AggregateRequest{
		MinAge:     req.MinAge,
		MaxAge:     req.MaxAge,
		Category:   req.Category,
		StartIndex: domain.RecordID(req.StartIndex),
		BatchSize:  req.BatchSize,
		Payment:    domain.Wei(req.PaymentWei),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, queryAcceptedResponse{QueryID: queryID})
}

type individualQueryRequest struct {
	MinAge     int    `json:"min_age"`
	MaxAge     int    `json:"max_age"`
	Category   string `json:"category"`
	MaxResults int    `json:"max_results"`
	PaymentWei uint64 `json:"payment_wei"`
}

func (h *handler) handleComputeIndividual(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[individualQueryRequest](w, r, h.logger)
	if !ok {
		return
	}

	requester := domain.RequesterID(requestcontext.CallerID(ctx))
	queryID, err := h.svc.Oracle.ComputeIndividual(ctx, requester, oracle.IndividualRequest{
		MinAge:     req.MinAge,
		MaxAge:     req.MaxAge,
		Category:   req.Category,
		MaxResults: req.MaxResults,
		Payment:    domain.Wei(req.PaymentWei),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, queryAcceptedResponse{QueryID: queryID})
}

func queryIDFromPath(r *http.Request) (domain.QueryID, error) {
	return domain.ParseQueryID(chi.URLParam(r, "queryID"))
}

func (h *handler) handleGetAggregate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	queryID, err := queryIDFromPath(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	requester := domain.RequesterID(requestcontext.CallerID(ctx))
	result, err := h.svc.Oracle.GetQueryResult(ctx, requester, queryID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *handler) handleGetIndividual(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	queryID, err := queryIDFromPath(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	requester := domain.RequesterID(requestcontext.CallerID(ctx))
	result, err := h.svc.Oracle.GetIndividualResult(ctx, requester, queryID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

type requestDecryptionResponse struct {
	QueryID domain.QueryID `json:"query_id"`
	// Proof is handed to the relayer and must accompany the decrypted
	// submission. It is returned once and never stored.
	Proof string `json:"proof"`
}

func (h *handler) handleRequestDecryption(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	queryID, err := queryIDFromPath(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	requester := domain.RequesterID(requestcontext.CallerID(ctx))
	proof, err := h.svc.Oracle.RequestDecryption(ctx, requester, queryID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, requestDecryptionResponse{QueryID: queryID, Proof: proof})
}

type submitDecryptedRequest struct {
	Sum   uint64 `json:"sum"`
	Count uint64 `json:"count"`
	Proof string `json:"proof"`
}

func (h *handler) handleSubmitDecrypted(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	queryID, err := queryIDFromPath(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[submitDecryptedRequest](w, r, h.logger)
	if !ok {
		return
	}

	caller := requestcontext.CallerID(ctx)
	if err := h.svc.Oracle.SubmitDecrypted(ctx, caller, queryID, req.Sum, req.Count, req.Proof); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "decrypted"})
}
