package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/petal-labs/pez/store"
)

// NewSchemaCmd creates the "schema" command group.
func NewSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Create or drop the counter store schema",
	}
	cmd.AddCommand(newSchemaCreateCmd())
	cmd.AddCommand(newSchemaDropCmd())
	return cmd
}

func newSchemaCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create the counter table and any missing sequence records",
		Args:  cobra.NoArgs,
		RunE:  runSchemaCreate,
	}
	addConfigFlag(cmd)
	return cmd
}

func newSchemaDropCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop the counter table (refused for production targets)",
		Args:  cobra.NoArgs,
		RunE:  runSchemaDrop,
	}
	addConfigFlag(cmd)
	return cmd
}

func runSchemaCreate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd)
	ctx := commandContext(cmd)

	st, err := connectStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	if err := st.Provision(ctx, builtinSeeds()); err != nil {
		return exitError(exitStore, "creating schema on %s: %v", st.Target(), err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Schema ready on %s\n", st.Target())
	return nil
}

func runSchemaDrop(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd)
	ctx := commandContext(cmd)

	st, err := openStore(cfg)
	if err != nil {
		return exitError(exitStore, "opening counter store: %v", err)
	}
	defer closeStore(st, logger)

	// Checked before connecting so a production target is never contacted.
	if err := store.CheckTeardown(st.Target()); err != nil {
		return exitError(exitStore, "%v", err)
	}
	if err := store.WaitReady(ctx, st, cfg.ConnectTimeout, logger); err != nil {
		return exitError(exitStore, "counter store %s not reachable: %v", st.Target(), err)
	}
	if err := st.Drop(ctx); err != nil {
		if errors.Is(err, store.ErrProductionStore) {
			return exitError(exitStore, "%v", err)
		}
		return exitError(exitStore, "dropping schema on %s: %v", st.Target(), err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Schema dropped on %s\n", st.Target())
	return nil
}
