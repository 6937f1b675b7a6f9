package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/elviscgn/UkweliDB/internal/keystore"
	"github.com/elviscgn/UkweliDB/internal/ledger"
	"github.com/elviscgn/UkweliDB/internal/store/sqlite"
	"github.com/elviscgn/UkweliDB/internal/workflow"
)

// Persisted layout (§6): one chain file, one configuration document, one
// per-user key directory, one workflows directory of definitions, all under
// the database directory a command is pointed at with --db.
const (
	chainFileName     = "chain.db"
	configFileName    = "config.yaml"
	keysDirName       = "keys"
	workflowsDirName  = "workflows"
)

func chainPath(dbDir string) string     { return filepath.Join(dbDir, chainFileName) }
func configPath(dbDir string) string    { return filepath.Join(dbDir, configFileName) }
func keysDir(dbDir string) string       { return filepath.Join(dbDir, keysDirName) }
func workflowsDir(dbDir string) string  { return filepath.Join(dbDir, workflowsDirName) }

// loadWorkflowDefinitions reads every *.cue file in a database's workflows
// directory. A database with no workflows directory yet has none loaded,
// which is not an error: freeform records never need one.
func loadWorkflowDefinitions(dbDir string) ([]*workflow.Definition, error) {
	dir := workflowsDir(dbDir)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read workflows dir: %w", err)
	}

	var defs []*workflow.Definition
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".cue" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		def, err := workflow.ParseDefinition(raw, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// openLedger opens an existing database directory for operate-mode commands
// (everything except init).
func openLedger(dbDir string, logger *slog.Logger) (*ledger.Ledger, func() error, error) {
	if _, err := os.Stat(configPath(dbDir)); err != nil {
		return nil, nil, fmt.Errorf("%s does not look like a database directory: %w", dbDir, err)
	}

	store, err := sqlite.Open(chainPath(dbDir))
	if err != nil {
		return nil, nil, fmt.Errorf("open chain file: %w", err)
	}
	logger.Debug("opened chain file", "path", chainPath(dbDir))

	ks, err := keystore.Open(keysDir(dbDir))
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("open keystore: %w", err)
	}

	defs, err := loadWorkflowDefinitions(dbDir)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	logger.Debug("loaded workflow definitions", "count", len(defs))

	l, err := ledger.Open(store, ks, defs)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	logger.Debug("replayed chain into identity and workflow indices", "length", len(l.RecordList()))

	return l, l.Close, nil
}
