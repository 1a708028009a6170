package moderation

import (
	"emperror.dev/errors"
	"github.com/bwmarrin/discordgo"
)

// Kind classifies a failed moderation request so the caller can decide how
// to surface it.
type Kind int

const (
	// KindPermission means the actor may not perform the action. Nothing was
	// written.
	KindPermission Kind = iota + 1
	// KindValidation means the input was rejected. Nothing was written.
	KindValidation
	// KindExternal means the platform refused the action. The case row was
	// removed again.
	KindExternal
	// KindUnexpected is any other failure. The case row was removed again
	// and the error should be reported.
	KindUnexpected
)

func (k Kind) String() string {
	switch k {
	case KindPermission:
		return "permission"
	case KindValidation:
		return "validation"
	case KindExternal:
		return "external"
	case KindUnexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}

var (
	ErrDeclined     = errors.New("action declined")
	ErrCaseNotFound = errors.New("case not found")
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func permissionError(msg string) error {
	return &Error{Kind: KindPermission, Message: msg}
}

func validationError(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

// KindOf returns the kind of err, or 0 when err is not a moderation error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// classify turns an error from the platform client into an Error. REST
// failures are the platform refusing the action; everything else is
// unexpected and keeps its stack.
func classify(action string, err error) *Error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		msg := "request rejected"
		if restErr.Message != nil && restErr.Message.Message != "" {
			msg = restErr.Message.Message
		} else if restErr.Response != nil {
			msg = restErr.Response.Status
		}
		return &Error{Kind: KindExternal, Message: "Failed to " + action + " user: " + msg, Err: err}
	}
	return &Error{Kind: KindUnexpected, Message: "failed to " + action + " user", Err: errors.WithStack(err)}
}
