package cli

import (
	"errors"

	"github.com/elviscgn/UkweliDB/internal/ledger"
)

// exitCodeFor maps a ledger.Error's taxonomy Kind onto the three non-zero
// exit codes §6 defines. input_error and workflow_rejection are both the
// caller's fault, not the database's: a rejected append (missing role,
// illegal transition) never touched the chain, the same as any other
// malformed request. io_error is the only Kind that is the environment's
// fault. The remaining Kinds (chain_break, signature_error, workflow_break,
// integrity_error) are what verify() finds wrong with content already on
// the chain, so they collapse onto "integrity failure": the CLI surface
// names only four codes, not ledger's seven-way taxonomy.
func exitCodeFor(err error) int {
	var lerr *ledger.Error
	if !errors.As(err, &lerr) {
		return ExitInputError
	}
	switch lerr.Kind {
	case ledger.KindInputError, ledger.KindWorkflowRejection:
		return ExitInputError
	case ledger.KindIOError:
		return ExitIOError
	default:
		return ExitIntegrityFailure
	}
}

// toExitError wraps err (expected to be a *ledger.Error, or nil) as an
// *ExitError carrying the mapped exit code, for commands to return directly
// from RunE.
func toExitError(message string, err error) error {
	if err == nil {
		return nil
	}
	return WrapExitError(exitCodeFor(err), message, err)
}
