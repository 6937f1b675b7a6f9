package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/elviscgn/UkweliDB/internal/config"
	"github.com/elviscgn/UkweliDB/internal/keystore"
	"github.com/elviscgn/UkweliDB/internal/ledger"
	"github.com/elviscgn/UkweliDB/internal/store/sqlite"
)

// genesisPayload is what the genesis record's payload encodes: enough of
// the configuration document to make the very first record distinguishable
// from another database's, without duplicating the config file's content
// verbatim.
type genesisPayload struct {
	DatabaseName   string `json:"database_name"`
	InstallationID string `json:"installation_id"`
}

// NewInitCommand creates a fresh database directory: config.yaml, a keys/
// directory holding the system identity's key, an empty workflows/
// directory, and the chain's genesis record, signed by
// the conventional system identity (§5 "lifecycle is open(dir) -> operate
// -> close").
func NewInitCommand(opts *RootOptions) *cobra.Command {
	var databaseName string

	cmd := &cobra.Command{
		Use:   "init <dir>",
		Short: "initialize a new database directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dbDir := args[0]
			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

			if err := os.MkdirAll(dbDir, 0o755); err != nil {
				return WrapExitError(ExitIOError, "create database directory", err)
			}
			if err := os.MkdirAll(workflowsDir(dbDir), 0o755); err != nil {
				return WrapExitError(ExitIOError, "create workflows directory", err)
			}

			if databaseName == "" {
				databaseName = "ukweli"
			}
			cfg := config.NewAtInit(databaseName, ledger.SystemSigner)
			if err := config.Save(cfg, configPath(dbDir)); err != nil {
				return WrapExitError(ExitIOError, "write configuration", err)
			}

			store, err := sqlite.Open(chainPath(dbDir))
			if err != nil {
				return WrapExitError(ExitIOError, "open chain file", err)
			}
			defer store.Close()

			ks, err := keystore.Open(keysDir(dbDir))
			if err != nil {
				return WrapExitError(ExitIOError, "open keystore", err)
			}

			payload, err := json.Marshal(genesisPayload{DatabaseName: cfg.DatabaseName, InstallationID: cfg.InstallationID})
			if err != nil {
				return WrapExitError(ExitInputError, "encode genesis payload", err)
			}

			l, err := ledger.Init(store, ks, payload, time.Now().UnixMilli(), nil)
			if err != nil {
				return toExitError("initialize database", err)
			}
			defer l.Close()
			opts.Logger.Info("initialized database", "name", cfg.DatabaseName, "dir", dbDir, "installation_id", cfg.InstallationID)

			return formatter.Success(fmt.Sprintf("initialized database %q at %s", cfg.DatabaseName, dbDir))
		},
	}

	cmd.Flags().StringVar(&databaseName, "name", "", "database name (default \"ukweli\")")
	return cmd
}
