package httptransport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"presence/internal/imaging"
	jsonio "presence/internal/transport/http/json"
	"presence/internal/transport/http/shared"
	dErrors "presence/pkg/domain-errors"
)

type enrollRequest struct {
	SubjectID string `json:"subject_id"`
	// Image is the base64 (optionally data-URL) encoded enrolment photo.
	Image string `json:"image"`
}

func (h *Handler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	image, err := imaging.FromBase64(req.Image)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	enrolled, err := h.enrol.Enroll(r.Context(), req.SubjectID, image)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.EnrollmentsTotal.Inc()
	}
	jsonio.WriteJSON(w, http.StatusCreated, enrolled)
}

func (h *Handler) handleSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.enrol.Subjects(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if subjects == nil {
		subjects = []string{}
	}
	jsonio.WriteJSON(w, http.StatusOK, map[string]any{"subjects": subjects})
}

type referenceSummary struct {
	ID        string    `json:"id"`
	Dimension int       `json:"dimension"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) handleReferences(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")

	refs, err := h.enrol.References(r.Context(), subjectID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	// Embeddings are biometric data; only metadata leaves this endpoint.
	summaries := make([]referenceSummary, len(refs))
	for i, ref := range refs {
		summaries[i] = referenceSummary{
			ID:        ref.ID.String(),
			Dimension: len(ref.Embedding),
			CreatedAt: ref.CreatedAt,
		}
	}
	jsonio.WriteJSON(w, http.StatusOK, map[string]any{
		"subject_id": subjectID,
		"references": summaries,
	})
}

func (h *Handler) handleUnenroll(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")

	removed, err := h.enrol.Remove(r.Context(), subjectID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	jsonio.WriteJSON(w, http.StatusOK, map[string]any{
		"subject_id": subjectID,
		"removed":    removed,
	})
}
