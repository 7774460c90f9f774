package customerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Fatal marks an error that must propagate to the top level and terminate
// the run, as opposed to errors the reconciliation phase demotes to
// logged-and-skipped. Reference-resolution failures during import are the
// main producer, since they signal the Users->Rooms->Messages order was
// violated by the input.
type Fatal struct {
	Cause error
}

func NewFatal(err error) error {
	return &Fatal{
		Cause: err,
	}
}

func (err *Fatal) Error() string {
	return fmt.Sprintf("fatal error: %v", err.Cause)
}

func IsFatal(err error) bool {
	if _, ok := errors.Cause(err).(*Fatal); ok {
		return true
	} else {
		return false
	}
}
