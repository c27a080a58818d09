package adapters

import (
	"fmt"

	"github.com/samvad-hq/samvad-publisher/internal/domain"
)

// Failure is a destination-level error whose message is recorded verbatim.
type Failure struct {
	msg   string
	cause error
}

func (f *Failure) Error() string { return f.msg }

func (f *Failure) Unwrap() []error {
	if f.cause == nil {
		return []error{domain.ErrDestinationFailure}
	}
	return []error{domain.ErrDestinationFailure, f.cause}
}

func failure(format string, args ...any) error {
	return &Failure{msg: fmt.Sprintf(format, args...)}
}

func failureCause(cause error, format string, args ...any) error {
	return &Failure{msg: fmt.Sprintf(format, args...) + ": " + cause.Error(), cause: cause}
}

// Unsupported is returned by adapters for operations their platform does not offer.
type Unsupported struct {
	Destination string
	Operation   domain.Operation
}

func (u *Unsupported) Error() string {
	return fmt.Sprintf("%s is not supported by %s", u.Operation, u.Destination)
}

func (u *Unsupported) Unwrap() error { return domain.ErrUnsupportedOperation }

func unsupported(destination string, op domain.Operation) error {
	return &Unsupported{Destination: destination, Operation: op}
}

func notPublishedYet(destination string) error {
	return &Failure{msg: fmt.Sprintf("not published to %s yet", destination), cause: domain.ErrNotFound}
}
