package execution

import (
	"errors"
)

// KindWebhookScriptFailure is the kind of every error returned by Execute.
const KindWebhookScriptFailure = "webhook_script_failure"

// ErrWebhookScriptFailure matches any *Error of kind webhook_script_failure.
var ErrWebhookScriptFailure = errors.New(KindWebhookScriptFailure)

var (
	ErrAccountNotFound        = errors.New("account and environment not found")
	ErrProviderConfigNotFound = errors.New("provider config not found")
	ErrSyncNotFound           = errors.New("sync not found")
	ErrSyncConfigNotFound     = errors.New("webhook config not found")
	ErrSyncConfigDisabled     = errors.New("webhook is disabled")
	ErrJobNotCreated          = errors.New("failed to create sync job")
	ErrJobNotUpdated          = errors.New("failed to update sync job status")
)

// Error is the uniform error reported to the task's caller.
type Error struct {
	Kind    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Kind + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == ErrWebhookScriptFailure && e.Kind == KindWebhookScriptFailure
}

// scriptFailure wraps err into a webhook_script_failure, keeping existing ones.
func scriptFailure(err error) *Error {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindWebhookScriptFailure {
		return e
	}
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &Error{Kind: KindWebhookScriptFailure, Message: msg, Err: err}
}
