// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: debug.go - cold-path logging and the fatal contract path
//
// Purpose:
//   - Logs infrequent error paths without fmt.
//   - Reports contract violations (self-deadlock, foreign unlock, double
//     boot, ...) as a logged, typed panic that halts the offending core.
//
// ⚠️ Never invoke in hot loops; use only in failure diagnostics.
// ─────────────────────────────────────────────────────────────────────────────

package debug

import (
	"errors"

	"ticketcore/utils"
)

// DropError logs err under prefix. A nil err logs the prefix alone.
//
//go:nosplit
func DropError(prefix string, err error) {
	if err != nil {
		utils.PrintWarning(prefix + ": " + err.Error() + "\n")
		return
	}
	utils.PrintWarning(prefix + "\n")
}

// DropMessage logs a tagged diagnostic line.
//
//go:nosplit
func DropMessage(prefix, message string) {
	utils.PrintWarning(prefix + ": " + message + "\n")
}

// ============================================================================
// FATAL PATH
// ============================================================================

// Fault is the panic value of a contract violation. Code is stable and
// meant for matching; Message is for humans.
type Fault struct {
	Code    string
	Message string
}

func (f *Fault) Error() string {
	return "[" + f.Code + "] " + f.Message
}

// Fatal logs the violation and stops the calling core by panicking with a
// *Fault. Nothing in the lock core recovers it; only the core runner does,
// to report which core died.
func Fatal(code, message string) {
	DropMessage("FATAL "+code, message)
	panic(&Fault{Code: code, Message: message})
}

// Assert calls Fatal when cond is false.
//
//go:nosplit
func Assert(cond bool, code, message string) {
	if !cond {
		Fatal(code, message)
	}
}

// AsFault extracts a *Fault from a recovered panic value or an error chain.
func AsFault(v any) (*Fault, bool) {
	switch x := v.(type) {
	case *Fault:
		return x, true
	case error:
		var f *Fault
		if errors.As(x, &f) {
			return f, true
		}
	}
	return nil, false
}

// Catch runs fn and returns the Fault it raised, or nil. Panics that are not
// faults propagate.
func Catch(fn func()) (fault *Fault) {
	defer func() {
		if r := recover(); r != nil {
			f, ok := AsFault(r)
			if !ok {
				panic(r)
			}
			fault = f
		}
	}()
	fn()
	return nil
}
