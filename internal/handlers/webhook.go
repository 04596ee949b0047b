package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	applog "avatarbot/internal/log"
	"avatarbot/internal/telegram"
)

// SecretHeader carries the secret registered with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const maxUpdateSize = 1 << 20

// UpdateDispatcher handles one inbound update.
type UpdateDispatcher interface {
	Dispatch(ctx context.Context, update telegram.Update) error
}

var (
	dispatcher    UpdateDispatcher
	webhookSecret string
)

// ConfigureWebhook sets where webhook updates are sent and the secret they
// must carry. An empty secret disables the check.
func ConfigureWebhook(d UpdateDispatcher, secret string) {
	dispatcher = d
	webhookSecret = secret
}

// Webhook accepts Bot API updates. A failed update answers 500 so Telegram
// redelivers it.
func Webhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if webhookSecret != "" {
		got := r.Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(webhookSecret)) != 1 {
			applog.Warn(r.Context(), "rejecting webhook call with bad secret", "remote", r.RemoteAddr)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	if dispatcher == nil {
		applog.Error(r.Context(), "webhook called before a dispatcher was configured")
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	var update telegram.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpdateSize)).Decode(&update); err != nil {
		applog.Warn(r.Context(), "failed to decode webhook update", "error", err)
		http.Error(w, "invalid update", http.StatusBadRequest)
		return
	}

	if err := dispatcher.Dispatch(r.Context(), update); err != nil {
		applog.Error(r.Context(), "failed to handle update", "updateID", update.UpdateID, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
