package provisioning

import "github.com/classytest/dispatcher/internal/progression"

// Failure is a user-visible rejection. Message never leaks internal
// details (spec §7): it points to course staff.
type Failure struct {
	ShouldLogout bool
	Message      string
}

// StatusPayload is what provision() returns: either a fresh status on
// success, or a Failure on rejection, matching spec §4.E's
// `{failure:{shouldLogout, message}}` shape.
type StatusPayload struct {
	Status  progression.Status
	Failure *Failure
}

func rejected(message string) StatusPayload {
	return StatusPayload{Failure: &Failure{ShouldLogout: false, Message: message}}
}

const genericStaffMessage = "Something went wrong processing this request. Please contact course staff."
