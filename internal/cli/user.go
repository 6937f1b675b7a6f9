package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/elviscgn/UkweliDB/internal/ledger"
)

// NewUserCommand groups the identity-administration subcommands (§6
// "user create <name>, user add-role <name> <role>, user list, user show
// <name>").
func NewUserCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "manage identities and their roles",
	}
	cmd.AddCommand(newUserCreateCommand(opts))
	cmd.AddCommand(newUserAddRoleCommand(opts))
	cmd.AddCommand(newUserListCommand(opts))
	cmd.AddCommand(newUserShowCommand(opts))
	return cmd
}

func newUserCreateCommand(opts *RootOptions) *cobra.Command {
	var signer string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "provision a new identity and record it as a user_create administrative record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireDB(opts); err != nil {
				return err
			}
			l, closeFn, err := openLedger(opts.DBDir, opts.Logger)
			if err != nil {
				return WrapExitError(ExitIOError, "open database", err)
			}
			defer closeFn()

			if signer == "" {
				signer = ledger.SystemSigner
			}
			r, err := l.UserCreate(args[0], signer, time.Now().UnixMilli())
			if err != nil {
				return toExitError("create user", err)
			}

			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
			return formatter.Success(fmt.Sprintf("created user %q (record %d)", args[0], r.ID))
		},
	}
	cmd.Flags().StringVar(&signer, "signer", "", "identity authorizing this grant (default: the system signer)")
	return cmd
}

func newUserAddRoleCommand(opts *RootOptions) *cobra.Command {
	var signer string

	cmd := &cobra.Command{
		Use:   "add-role <name> <role>",
		Short: "grant a role to an existing identity, recorded as a user_add_role administrative record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireDB(opts); err != nil {
				return err
			}
			l, closeFn, err := openLedger(opts.DBDir, opts.Logger)
			if err != nil {
				return WrapExitError(ExitIOError, "open database", err)
			}
			defer closeFn()

			if signer == "" {
				signer = ledger.SystemSigner
			}
			r, err := l.UserAddRole(args[0], args[1], signer, time.Now().UnixMilli())
			if err != nil {
				return toExitError("add role", err)
			}

			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
			return formatter.Success(fmt.Sprintf("granted role %q to %q (record %d)", args[1], args[0], r.ID))
		},
	}
	cmd.Flags().StringVar(&signer, "signer", "", "identity authorizing this grant (default: the system signer)")
	return cmd
}

func newUserListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list every identity the registry has derived from the chain",
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

			names := l.UserNames()
			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
			return formatter.Success(names)
		},
	}
}

func newUserShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "show an identity's derived roles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireDB(opts); err != nil {
				return err
			}
			l, closeFn, err := openLedger(opts.DBDir, opts.Logger)
			if err != nil {
				return WrapExitError(ExitIOError, "open database", err)
			}
			defer closeFn()

			roles, err := l.UserRoles(args[0])
			if err != nil {
				return toExitError("show user", err)
			}

			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
			return formatter.Success(map[string]any{"name": args[0], "roles": roles})
		},
	}
}
