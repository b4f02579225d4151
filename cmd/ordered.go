package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"rblxcloud/internal"
	"rblxcloud/opencloud"
)

var (
	odsScope           string
	odsLimit           int
	odsDescending      bool
	odsMin             int64
	odsMax             int64
	odsExclusiveCreate bool
	odsExclusiveUpdate bool
)

var orderedCmd = &cobra.Command{
	Use:   "ordered",
	Short: "Read and write ordered data stores",
}

func openOrderedDataStore(args []string) (*opencloud.OrderedDataStore, error) {
	universeID, err := parseID("universe", args[0])
	if err != nil {
		return nil, err
	}
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	return client.Experience(universeID).OrderedDataStore(args[1], odsScope), nil
}

func parseInt64Arg(field, value string) (int64, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, internal.NewValidationErrorWithValue(field, "must be an integer", value)
	}
	return n, nil
}

type orderedOutput struct {
	Key   string `json:"key"`
	Value int64  `json:"value"`
}

var orderedListCmd = &cobra.Command{
	Use:   "list <universe> <store>",
	Short: "List entries sorted by value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := openOrderedDataStore(args)
		if err != nil {
			return err
		}

		opts := opencloud.SortKeysOptions{Descending: odsDescending, Limit: odsLimit}
		if cmd.Flags().Changed("min") {
			opts.Min = &odsMin
		}
		if cmd.Flags().Changed("max") {
			opts.Max = &odsMax
		}

		entries, err := collect("Entries ", ds.SortKeys(cmd.Context(), opts))
		if err != nil {
			return err
		}
		return printResult(cmd, entries)
	},
}

var orderedGetCmd = &cobra.Command{
	Use:   "get <universe> <store> <key>",
	Short: "Get the value of an entry",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := openOrderedDataStore(args)
		if err != nil {
			return err
		}
		value, err := ds.GetEntry(cmd.Context(), args[2])
		if err != nil {
			return err
		}
		return printResult(cmd, orderedOutput{Key: args[2], Value: value})
	},
}

var orderedSetCmd = &cobra.Command{
	Use:   "set <universe> <store> <key> <value>",
	Short: "Set the value of an entry",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := openOrderedDataStore(args)
		if err != nil {
			return err
		}
		value, err := parseInt64Arg("value", args[3])
		if err != nil {
			return err
		}

		value, err = ds.SetEntry(cmd.Context(), args[2], value, odsExclusiveCreate, odsExclusiveUpdate)
		if err != nil {
			return err
		}
		return printResult(cmd, orderedOutput{Key: args[2], Value: value})
	},
}

var orderedIncrementCmd = &cobra.Command{
	Use:   "increment <universe> <store> <key> <delta>",
	Short: "Increment the value of an entry",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := openOrderedDataStore(args)
		if err != nil {
			return err
		}
		delta, err := parseInt64Arg("delta", args[3])
		if err != nil {
			return err
		}

		value, err := ds.IncrementEntry(cmd.Context(), args[2], delta)
		if err != nil {
			return err
		}
		return printResult(cmd, orderedOutput{Key: args[2], Value: value})
	},
}

var orderedRemoveCmd = &cobra.Command{
	Use:     "remove <universe> <store> <key>",
	Aliases: []string{"rm"},
	Short:   "Remove an entry",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := openOrderedDataStore(args)
		if err != nil {
			return err
		}
		if err := ds.RemoveEntry(cmd.Context(), args[2]); err != nil {
			return err
		}
		status("🗑️  Removed %q from %s", args[2], ds)
		return nil
	},
}

func init() {
	orderedCmd.PersistentFlags().StringVar(&odsScope, "scope", "global", "Ordered data store scope")

	listFlags := orderedListCmd.Flags()
	listFlags.IntVar(&odsLimit, "limit", 0, "Maximum number of entries, 0 for all")
	listFlags.BoolVar(&odsDescending, "desc", false, "Highest values first")
	listFlags.Int64Var(&odsMin, "min", 0, "Inclusive lower bound on values")
	listFlags.Int64Var(&odsMax, "max", 0, "Inclusive upper bound on values")

	orderedSetCmd.Flags().BoolVar(&odsExclusiveCreate, "exclusive-create", false, "Fail if the key already exists")
	orderedSetCmd.Flags().BoolVar(&odsExclusiveUpdate, "exclusive-update", false, "Fail if the key does not exist")

	orderedCmd.AddCommand(orderedListCmd, orderedGetCmd, orderedSetCmd, orderedIncrementCmd, orderedRemoveCmd)
}
