package moderation

import "net/http"

// Resolution describes how an acknowledged event was handled.
type Resolution string

const (
	ResolutionIgnored         Resolution = "ignored"
	ResolutionRejected        Resolution = "rejected"
	ResolutionApproved        Resolution = "approved"
	ResolutionAlreadyResolved Resolution = "already_resolved"
)

// Outcome is the result of handling one event: either acknowledged or to be
// redelivered.
type Outcome struct {
	Resolution Resolution
	Retry      bool
	Reason     error
}

// Ack acknowledges the event.
func Ack(resolution Resolution) Outcome {
	return Outcome{Resolution: resolution}
}

// Retry asks the delivery system to redeliver the event.
func Retry(reason error) Outcome {
	return Outcome{Retry: true, Reason: reason}
}

// StatusCode maps the outcome to the delivery contract.
func (o Outcome) StatusCode() int {
	if o.Retry {
		return http.StatusInternalServerError
	}
	return http.StatusOK
}
