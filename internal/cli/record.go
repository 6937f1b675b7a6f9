package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/elviscgn/UkweliDB/internal/ledger"
	"github.com/elviscgn/UkweliDB/internal/record"
)

// NewRecordCommand groups the append-only record operations (§6 "record
// append <payload> --signers <n1,n2> [--workflow W --action A --entity E],
// record list, record show <id>, record verify").
func NewRecordCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "append to and inspect the chain",
	}
	cmd.AddCommand(newRecordAppendCommand(opts))
	cmd.AddCommand(newRecordListCommand(opts))
	cmd.AddCommand(newRecordShowCommand(opts))
	cmd.AddCommand(newRecordVerifyCommand(opts))
	return cmd
}

func newRecordAppendCommand(opts *RootOptions) *cobra.Command {
	var signers string
	var workflowName, actionName, entityID, version string

	cmd := &cobra.Command{
		Use:   "append <payload>",
		Short: "append a record, optionally gated by a workflow transition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireDB(opts); err != nil {
				return err
			}
			if signers == "" {
				return NewExitError(ExitInputError, "--signers is required")
			}

			l, closeFn, err := openLedger(opts.DBDir, opts.Logger)
			if err != nil {
				return WrapExitError(ExitIOError, "open database", err)
			}
			defer closeFn()

			req := ledger.AppendRequest{
				Timestamp: time.Now().UnixMilli(),
				EntityID:  entityID,
				Payload:   []byte(args[0]),
				Signers:   splitSigners(signers),
			}
			if workflowName != "" || actionName != "" {
				if version == "" {
					version = "1"
				}
				req.Workflow = record.WorkflowRef{WorkflowName: workflowName, ActionName: actionName}
				req.Version = version
			}

			r, err := l.Append(req)
			if err != nil {
				return toExitError("append record", err)
			}

			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
			return formatter.Success(fmt.Sprintf("appended record %d", r.ID))
		},
	}

	cmd.Flags().StringVar(&signers, "signers", "", "comma-separated list of signer identities")
	cmd.Flags().StringVar(&workflowName, "workflow", "", "workflow name, if this append is workflow-gated")
	cmd.Flags().StringVar(&actionName, "action", "", "workflow action name")
	cmd.Flags().StringVar(&entityID, "entity", "", "entity id the workflow transition applies to")
	cmd.Flags().StringVar(&version, "version", "", "workflow version this record targets (default \"1\")")
	return cmd
}

func splitSigners(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func newRecordListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list every record in chain order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireDB(opts); err != nil {
				return err
			}
			l, closeFn, err := openLedger(opts.DBDir, opts.Logger)
			if err != nil {
				return WrapExitError(ExitIOError, "open database", err)
			}
			defer closeFn()

			records := l.RecordList()
			summaries := make([]recordSummary, 0, len(records))
			for _, r := range records {
				summaries = append(summaries, summarize(r))
			}

			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
			return formatter.Success(summaries)
		},
	}
}

func newRecordShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "show a single record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireDB(opts); err != nil {
				return err
			}
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return NewExitError(ExitInputError, fmt.Sprintf("invalid record id %q", args[0]))
			}

			l, closeFn, err := openLedger(opts.DBDir, opts.Logger)
			if err != nil {
				return WrapExitError(ExitIOError, "open database", err)
			}
			defer closeFn()

			r, err := l.RecordShow(id)
			if err != nil {
				return toExitError("show record", err)
			}

			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
			return formatter.Success(summarize(r))
		},
	}
}

func newRecordVerifyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "recompute every chain link and signature, and replay workflow admission",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireDB(opts); err != nil {
				return err
			}
			l, closeFn, err := openLedger(opts.DBDir, opts.Logger)
			if err != nil {
				return WrapExitError(ExitIOError, "open database", err)
			}
			defer closeFn()

			report, err := l.Verify()
			if err != nil {
				return toExitError("verify", err)
			}

			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
			if err := formatter.Success(report); err != nil {
				return err
			}
			if !report.OK {
				return NewExitError(ExitIntegrityFailure, fmt.Sprintf("verify found %d break(s)", len(report.Breaks)))
			}
			return nil
		},
	}
}

// recordSummary is the CLI-facing view of a record.Record: the canonical
// digest fields rendered as hex instead of the raw crypto.Digest arrays, for
// readable text/JSON output.
type recordSummary struct {
	ID           uint64   `json:"id"`
	Timestamp    int64    `json:"timestamp"`
	PreviousHash string   `json:"previous_hash"`
	EntityID     string   `json:"entity_id,omitempty"`
	WorkflowName string   `json:"workflow_name,omitempty"`
	ActionName   string   `json:"action_name,omitempty"`
	Signers      []string `json:"signers"`
	Hash         string   `json:"hash"`
}

func summarize(r record.Record) recordSummary {
	signers := make([]string, 0, len(r.Signatures))
	for _, sig := range r.Signatures {
		signers = append(signers, sig.Signer)
	}
	return recordSummary{
		ID:           r.ID,
		Timestamp:    r.Timestamp,
		PreviousHash: fmt.Sprintf("%x", r.PreviousHash.Bytes()),
		EntityID:     r.EntityID,
		WorkflowName: r.Workflow.WorkflowName,
		ActionName:   r.Workflow.ActionName,
		Signers:      signers,
		Hash:         fmt.Sprintf("%x", r.Hash.Bytes()),
	}
}
