package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"dataledger/internal/encryption"
	"dataledger/internal/records"
	"dataledger/pkg/domain"
	"dataledger/pkg/platform/httputil"
	"dataledger/pkg/requestcontext"
)

type submitRecordRequest struct {
	Category     string   `json:"category"`
	Age          int      `json:"age"`
	ConsentLevel string   `json:"consent_level"`
	FieldHandles []string `json:"field_handles"`
}

type submitRecordResponse struct {
	RecordID domain.RecordID `json:"record_id"`
}

func (h *handler) handleSubmitRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[submitRecordRequest](w, r, h.logger)
	if !ok {
		return
	}

	level, err := domain.ParseConsentLevel(req.ConsentLevel)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	handles := make([]encryption.Ciphertext, len(req.FieldHandles))
	for i, raw := range req.FieldHandles {
		handles[i] = encryption.Ciphertext(raw)
	}

	id, err := h.svc.Records.Submit(ctx, records.SubmitRequest{
		Owner:        domain.OwnerID(requestcontext.CallerID(ctx)),
		Category:     req.Category,
		Age:          req.Age,
		ConsentLevel: level,
		FieldHandles: handles,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, submitRecordResponse{RecordID: id})
}

func (h *handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.svc.Records.Get(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

type setConsentRequest struct {
	ConsentLevel string `json:"consent_level"`
}

func (h *handler) handleSetConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[setConsentRequest](w, r, h.logger)
	if !ok {
		return
	}
	level, err := domain.ParseConsentLevel(req.ConsentLevel)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	caller := domain.OwnerID(requestcontext.CallerID(ctx))
	if err := h.svc.Records.SetConsent(ctx, id, caller, level); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *handler) handleRevokeRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	caller := domain.OwnerID(requestcontext.CallerID(ctx))
	if err := h.svc.Records.Revoke(ctx, id, caller); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}
