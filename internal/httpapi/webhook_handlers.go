package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/lukasbauer/apriori/internal/followup"
	"github.com/lukasbauer/apriori/internal/webhook"
)

// handleElevenLabsWebhook receives post-call deliveries from the voice provider.
// Only repository failures answer 5xx, so the provider retries exactly those.
func (r *Router) handleElevenLabsWebhook(w http.ResponseWriter, req *http.Request) {
	if !r.svc.Registry.Add() {
		http.Error(w, `{"error": "shutting down"}`, http.StatusServiceUnavailable)
		return
	}
	defer r.svc.Registry.Done()

	log := requestLogger(req, r.logger)

	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, r.cfg.MaxWebhookBytes))
	if err != nil {
		http.Error(w, `{"error": "failed to read body"}`, http.StatusBadRequest)
		return
	}

	if !r.svc.Verifier.Verify(body, req.Header.Get(webhook.SignatureHeader)) {
		r.svc.Metrics.SignatureFailures.Inc()
		log.Warn().Msg("Webhook: signature verification failed")
		http.Error(w, `{"error": "invalid signature"}`, http.StatusUnauthorized)
		return
	}

	ev, err := webhook.Parse(body)
	if errors.Is(err, webhook.ErrMissingConversationID) && !webhook.IsPostCall(webhook.PeekType(body)) {
		r.svc.Metrics.WebhooksReceived.WithLabelValues(string(followup.OutcomeIgnored)).Inc()
		writeJSON(w, http.StatusOK, followup.Interpretation{Outcome: followup.OutcomeIgnored})
		return
	}
	if errors.Is(err, webhook.ErrMissingConversationID) {
		http.Error(w, `{"error": "missing conversation_id"}`, http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Warn().Err(err).Msg("Webhook: malformed payload")
		http.Error(w, `{"error": "invalid JSON payload"}`, http.StatusBadRequest)
		return
	}

	result, err := r.svc.Interpreter.Interpret(req.Context(), ev)
	if err != nil {
		log.Error().Err(err).Str("conversation_id", ev.Data.ConversationID).Msg("Webhook: failed to process delivery")
		captureError(req, err, "webhook interpretation failed")
		http.Error(w, `{"error": "failed to process webhook"}`, http.StatusInternalServerError)
		return
	}

	log.Info().
		Str("conversation_id", ev.Data.ConversationID).
		Str("outcome", string(result.Outcome)).
		Int64("call_id", result.CallID).
		Bool("needs_human_followup", result.NeedsHumanFollowup).
		Msg("Webhook: delivery handled")
	writeJSON(w, http.StatusOK, result)
}
