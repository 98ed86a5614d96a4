package livekit

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/imtaco/stream-coordinator/internal/errors"
	"github.com/imtaco/stream-coordinator/internal/jwt"
)

const maxWebhookBody = 1 << 20

type webhookReceiverImpl struct {
	auth jwt.Auth
}

func NewWebhookReceiver(auth jwt.Auth) WebhookReceiver {
	return &webhookReceiverImpl{auth: auth}
}

// Receive verifies the Authorization token against the raw body before decoding it.
func (w *webhookReceiverImpl) Receive(r *http.Request) (*WebhookEvent, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		return nil, errors.Wrap(ErrInvalidWebhook, err, "read body")
	}
	if len(body) > maxWebhookBody {
		return nil, errors.New(ErrInvalidWebhook, "body too large")
	}

	if err := w.auth.VerifyBody(r.Header.Get("Authorization"), body); err != nil {
		return nil, errors.Wrap(ErrInvalidWebhook, err, "authenticate")
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, errors.Wrap(ErrInvalidWebhook, err, "decode event")
	}
	return &event, nil
}
