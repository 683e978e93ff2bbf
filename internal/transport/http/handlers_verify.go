package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"presence/internal/audit"
	"presence/internal/imaging"
	livestore "presence/internal/liveness/store"
	jsonio "presence/internal/transport/http/json"
	"presence/internal/transport/http/shared"
	"presence/internal/verify"
	dErrors "presence/pkg/domain-errors"
)

type verifyRequest struct {
	SubjectID string  `json:"subject_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	// Frame is the base64 (optionally data-URL) encoded primary image.
	Frame string `json:"frame"`
	// ChallengeFrames switches the liveness gate to batch mode.
	ChallengeFrames []string `json:"challenge_frames,omitempty"`
	// ChallengeDuration shortens the streaming blink window, in seconds.
	// It cannot extend the configured window.
	ChallengeDuration float64 `json:"challenge_duration,omitempty"`
}

type verifyResponse struct {
	Verified bool `json:"verified"`
	// Confidence is 1 - embedding distance, clamped to [0, 1]. It is an
	// uncalibrated approximation, not a probability.
	Confidence            float64        `json:"confidence"`
	GatePassed            int            `json:"gate_passed"`
	RejectionReason       *string        `json:"rejection_reason"`
	ProcessingTimeSeconds float64        `json:"processing_time_seconds"`
	BlinkDetected         bool           `json:"blink_detected"`
	EARValues             []float64      `json:"ear_values,omitempty"`
	DebugInfo             map[string]any `json:"debug_info,omitempty"`
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	frame, err := imaging.FromBase64(req.Frame)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var liveness verify.LivenessInput = verify.SingleFrame{}
	if len(req.ChallengeFrames) > 0 {
		frames := make([][]byte, len(req.ChallengeFrames))
		for i, encoded := range req.ChallengeFrames {
			frames[i], err = imaging.FromBase64(encoded)
			if err != nil {
				shared.WriteError(w, err)
				return
			}
		}
		liveness = verify.BatchFrames{Frames: frames}
	}

	result, err := h.pipeline.Evaluate(r.Context(), &verify.Request{
		Subject:          req.SubjectID,
		Latitude:         req.Latitude,
		Longitude:        req.Longitude,
		Frame:            frame,
		Liveness:         liveness,
		ChallengeTimeout: time.Duration(req.ChallengeDuration * float64(time.Second)),
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	resp := verifyResponse{
		Verified:              result.Verified,
		Confidence:            result.Confidence,
		GatePassed:            result.GatePassed,
		ProcessingTimeSeconds: result.ProcessingTime.Seconds(),
		BlinkDetected:         result.BlinkDetected,
		EARValues:             result.EARValues,
		DebugInfo:             result.Debug,
	}
	if result.RejectionReason != "" {
		resp.RejectionReason = &result.RejectionReason
	}
	jsonio.WriteJSON(w, http.StatusOK, resp)
}

type sessionResponse struct {
	SubjectID      string    `json:"subject_id"`
	Phase          string    `json:"phase"`
	BlinkDetected  bool      `json:"blink_detected"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	EARHistory     []float64 `json:"ear_history"`
	CreatedAt      time.Time `json:"created_at"`
}

func (h *Handler) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")

	session, err := h.sessions.Get(r.Context(), subjectID)
	if errors.Is(err, livestore.ErrNotFound) {
		shared.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no blink session for subject"))
		return
	}
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load blink session"))
		return
	}

	history := make([]float64, len(session.History))
	for i, sample := range session.History {
		history[i] = sample.EAR
	}

	jsonio.WriteJSON(w, http.StatusOK, sessionResponse{
		SubjectID:      subjectID,
		Phase:          string(session.Phase),
		BlinkDetected:  session.BlinkDetected,
		ElapsedSeconds: session.Elapsed(time.Now()).Seconds(),
		EARHistory:     history,
		CreatedAt:      session.CreatedAt,
	})
}

func (h *Handler) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")

	err := h.sessions.Delete(r.Context(), subjectID)
	if errors.Is(err, livestore.ErrNotFound) {
		shared.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no blink session for subject"))
		return
	}
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete blink session"))
		return
	}

	if h.auditor != nil {
		event := audit.NewEvent(audit.ActionSessionDeleted, subjectID)
		event.Outcome = "reset"
		if err := h.auditor.Publish(r.Context(), event); err != nil {
			h.logger.WarnContext(r.Context(), "failed to publish audit event", "error", err)
		}
	}

	jsonio.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
