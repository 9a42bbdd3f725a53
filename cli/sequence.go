package cli

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/petal-labs/pez/sequence"
	"github.com/petal-labs/pez/store"
)

// NewSequenceCmd creates the "sequence" command group.
func NewSequenceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sequence",
		Short: "Inspect or reposition the built-in sequences",
	}
	cmd.AddCommand(newSequenceShowCmd())
	cmd.AddCommand(newSequenceSetCmd())
	return cmd
}

func newSequenceShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [forward|reverse]",
		Short: "Show the stored state of one or all sequences",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSequenceShow,
	}
	addConfigFlag(cmd)
	return cmd
}

func newSequenceSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <forward|reverse> <value>",
		Short: "Make the next advance of a sequence issue value",
		Args:  cobra.ExactArgs(2),
		RunE:  runSequenceSet,
	}
	addConfigFlag(cmd)
	return cmd
}

func resolveDefinitions(args []string) ([]sequence.Definition, error) {
	if len(args) == 0 {
		return sequence.Builtins(), nil
	}
	def, ok := sequence.Lookup(args[0])
	if !ok {
		return nil, exitError(exitConfig, "unknown sequence %q (want forward or reverse)", args[0])
	}
	return []sequence.Definition{def}, nil
}

func runSequenceShow(cmd *cobra.Command, args []string) error {
	defs, err := resolveDefinitions(args)
	if err != nil {
		return err
	}
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

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tVALUE\tCALLED\tNEXT")
	for _, def := range defs {
		c, err := st.Peek(ctx, def.Name)
		if err != nil {
			if errors.Is(err, store.ErrUnknownCounter) {
				return exitError(exitStore, "sequence %s not provisioned; run pez schema create", def.Name)
			}
			return exitError(exitStore, "reading %s: %v", def.Name, err)
		}
		next := "-"
		if n, err := def.Next(c); err == nil {
			next = strconv.FormatUint(n.Value, 10)
		}
		fmt.Fprintf(writer, "%s\t%d\t%t\t%s\n", def.Name, c.Value, c.Called, next)
	}
	return writer.Flush()
}

func runSequenceSet(cmd *cobra.Command, args []string) error {
	defs, err := resolveDefinitions(args[:1])
	if err != nil {
		return err
	}
	def := defs[0]
	value, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return exitError(exitConfig, "invalid value %q: %v", args[1], err)
	}
	if value < def.Min || value > def.Max {
		return exitError(exitConfig, "value %d outside [%d, %d]", value, def.Min, def.Max)
	}

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

	if err := st.Set(ctx, def.Name, store.Counter{Value: value}); err != nil {
		if errors.Is(err, store.ErrUnknownCounter) {
			return exitError(exitStore, "sequence %s not provisioned; run pez schema create", def.Name)
		}
		return exitError(exitStore, "setting %s: %v", def.Name, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s will issue %d next\n", def.Name, value)
	return nil
}
