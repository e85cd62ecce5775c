package mirror

import (
	"errors"

	"github.com/monomirror/monomirror/pkg/proc"
)

// StatusKind is the outcome of a status check.
type StatusKind int

const (
	StatusOK StatusKind = iota
	StatusProcNotFound
	StatusError
)

func (k StatusKind) String() string {
	switch k {
	case StatusOK:
		return "ok"
	case StatusProcNotFound:
		return "process not found"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// Status reports whether a Mirror can attach to its target.
type Status struct {
	Kind StatusKind
	// Err is set when Kind is StatusError.
	Err error
}

// GetStatus attaches m to its target, if it is not already, and reports
// the outcome. It only opens the process: the PE header of the runtime
// module is not validated and the bootstrap does not run, so StatusOK
// does not guarantee that a later query succeeds.
func GetStatus(m *Mirror) Status {
	_, err := m.View()
	var pnf *proc.ProcessNotFoundError
	switch {
	case err == nil:
		return Status{Kind: StatusOK}
	case errors.As(err, &pnf):
		return Status{Kind: StatusProcNotFound}
	default:
		return Status{Kind: StatusError, Err: err}
	}
}
