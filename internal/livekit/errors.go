package livekit

import "github.com/imtaco/stream-coordinator/internal/errors"

const (
	ErrFailedRequest   errors.Code = "fail to make request"
	ErrInvalidResponse errors.Code = "invalid response"
	ErrNotFound        errors.Code = "not found"
	ErrUnauthorized    errors.Code = "unauthorized"
	ErrInvalidWebhook  errors.Code = "invalid webhook"
)
