package notify

import "fmt"

// ValidationError reports the first request field that failed validation.
// The message names the field class only, never raw user input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AuthorizationError signals a failed household-membership check. The
// message is deliberately generic: it never reveals which side of the check
// failed.
type AuthorizationError struct {
	// Detail is for logs only and must not be echoed to callers.
	Detail string
}

func (e *AuthorizationError) Error() string {
	return "not authorized for this household"
}

// CredentialError signals that assertion signing or the token exchange
// failed. ResponseBody holds the token endpoint's reply and is logged, never
// returned to callers.
type CredentialError struct {
	Stage        string
	ResponseBody string
	Err          error
}

func (e *CredentialError) Error() string {
	if e.ResponseBody != "" {
		return fmt.Sprintf("credential minting failed at %s: %s", e.Stage, e.ResponseBody)
	}
	return fmt.Sprintf("credential minting failed at %s: %v", e.Stage, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// DirectoryError wraps a device-directory read or write failure.
type DirectoryError struct {
	Op  string
	Err error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("device directory %s failed: %v", e.Op, e.Err)
}

func (e *DirectoryError) Unwrap() error { return e.Err }
