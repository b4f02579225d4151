package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/araddon/dateparse"
	"github.com/spf13/cobra"

	"rblxcloud/internal"
	"rblxcloud/opencloud"
)

var (
	dsScope           string
	dsAllScopes       bool
	dsPrefix          string
	dsLimit           int
	dsVersion         string
	dsExclusiveCreate bool
	dsMatchVersion    string
	dsUsers           []string
	dsMetadata        string
	dsDescending      bool
	dsAfter           string
	dsBefore          string
)

var datastoreCmd = &cobra.Command{
	Use:     "datastore",
	Aliases: []string{"ds"},
	Short:   "Read and write standard data stores",
}

// openDataStore resolves the <universe> <store> arguments shared by every
// datastore subcommand
func openDataStore(args []string) (*opencloud.DataStore, error) {
	universeID, err := parseID("universe", args[0])
	if err != nil {
		return nil, err
	}
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	scope := dsScope
	if dsAllScopes {
		scope = ""
		if len(args) > 2 {
			if err := checkScopedKey(args[2]); err != nil {
				return nil, err
			}
		}
	}
	return client.Experience(universeID).DataStore(args[1], scope), nil
}

// checkScopedKey rejects keys that do not name their scope
func checkScopedKey(key string) error {
	if scope, k, ok := strings.Cut(key, "/"); !ok || scope == "" || k == "" {
		return internal.ScopedKeyError(key)
	}
	return nil
}

type entryOutput struct {
	Key   string               `json:"key"`
	Value json.RawMessage      `json:"value"`
	Info  *opencloud.EntryInfo `json:"info"`
}

var datastoreStoresCmd = &cobra.Command{
	Use:   "stores <universe>",
	Short: "List the data stores of an experience",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		universeID, err := parseID("universe", args[0])
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}

		stores, err := collect("Data stores ", client.Experience(universeID).ListDataStores(cmd.Context(), dsPrefix, dsLimit, dsScope))
		if err != nil {
			return err
		}
		return printResult(cmd, stores)
	},
}

var datastoreListCmd = &cobra.Command{
	Use:   "list <universe> <store>",
	Short: "List the keys of a data store",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := openDataStore(args)
		if err != nil {
			return err
		}

		internal.LogDebug("Listing keys of %s with prefix %q", ds, dsPrefix)
		keys, err := collect("Keys ", ds.ListKeys(cmd.Context(), dsPrefix, dsLimit))
		if err != nil {
			return err
		}
		return printResult(cmd, keys)
	},
}

var datastoreGetCmd = &cobra.Command{
	Use:   "get <universe> <store> <key>",
	Short: "Get the value of an entry, optionally at a version",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := openDataStore(args)
		if err != nil {
			return err
		}

		var (
			value json.RawMessage
			info  *opencloud.EntryInfo
		)
		if dsVersion != "" {
			value, info, err = ds.GetVersion(cmd.Context(), args[2], dsVersion)
		} else {
			value, info, err = ds.GetEntry(cmd.Context(), args[2])
		}
		if err != nil {
			return err
		}
		return printResult(cmd, entryOutput{Key: args[2], Value: value, Info: info})
	},
}

var datastoreSetCmd = &cobra.Command{
	Use:   "set <universe> <store> <key> <value>",
	Short: "Write an entry. The value is parsed as JSON when possible.",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := openDataStore(args)
		if err != nil {
			return err
		}

		users, err := parseIDs("users", dsUsers)
		if err != nil {
			return err
		}
		opts := opencloud.SetEntryOptions{
			Users:           users,
			ExclusiveCreate: dsExclusiveCreate,
			PreviousVersion: dsMatchVersion,
		}
		if dsMetadata != "" {
			if err := json.Unmarshal([]byte(dsMetadata), &opts.Metadata); err != nil {
				return internal.NewValidationErrorWithValue("metadata", "must be a JSON object", dsMetadata)
			}
		}

		version, err := ds.SetEntry(cmd.Context(), args[2], parseValue(args[3]), opts)
		var precondition *opencloud.PreconditionFailedError
		if errors.As(err, &precondition) {
			internal.LogWarn("Write to %q rejected: %s", args[2], precondition.Message)
			return printResult(cmd, map[string]any{
				"error":   "precondition failed",
				"current": entryOutput{Key: args[2], Value: precondition.Value, Info: precondition.Info},
			})
		}
		if err != nil {
			return err
		}

		status("✅ Wrote %q (version %s)", args[2], version.Version)
		return printResult(cmd, version)
	},
}

var datastoreIncrementCmd = &cobra.Command{
	Use:   "increment <universe> <store> <key> <delta>",
	Short: "Increment a numeric entry",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := openDataStore(args)
		if err != nil {
			return err
		}
		delta, err := strconv.ParseFloat(args[3], 64)
		if err != nil {
			return internal.NewValidationErrorWithValue("delta", "must be a number", args[3])
		}
		users, err := parseIDs("users", dsUsers)
		if err != nil {
			return err
		}

		value, info, err := ds.IncrementEntry(cmd.Context(), args[2], delta, users, nil)
		if err != nil {
			return err
		}
		return printResult(cmd, entryOutput{Key: args[2], Value: value, Info: info})
	},
}

var datastoreRemoveCmd = &cobra.Command{
	Use:     "remove <universe> <store> <key>",
	Aliases: []string{"rm"},
	Short:   "Remove an entry",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := openDataStore(args)
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

var datastoreVersionsCmd = &cobra.Command{
	Use:   "versions <universe> <store> <key>",
	Short: "List the versions of an entry",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := openDataStore(args)
		if err != nil {
			return err
		}

		opts := opencloud.ListVersionsOptions{Limit: dsLimit, Descending: dsDescending}
		if dsAfter != "" {
			if opts.After, err = dateparse.ParseAny(dsAfter); err != nil {
				return internal.NewValidationErrorWithValue("after", fmt.Sprintf("unrecognized time: %v", err), dsAfter)
			}
		}
		if dsBefore != "" {
			if opts.Before, err = dateparse.ParseAny(dsBefore); err != nil {
				return internal.NewValidationErrorWithValue("before", fmt.Sprintf("unrecognized time: %v", err), dsBefore)
			}
		}

		versions, err := collect("Versions ", ds.ListVersions(cmd.Context(), args[2], opts))
		if err != nil {
			return err
		}
		return printResult(cmd, versions)
	},
}

func init() {
	flags := datastoreCmd.PersistentFlags()
	flags.StringVar(&dsScope, "scope", "global", "Data store scope")
	flags.BoolVar(&dsAllScopes, "all-scopes", false, "Span every scope; keys are given as scope/key")
	flags.IntVar(&dsLimit, "limit", 0, "Maximum number of results, 0 for all")

	datastoreStoresCmd.Flags().StringVar(&dsPrefix, "prefix", "", "Only list data stores with this name prefix")
	datastoreListCmd.Flags().StringVar(&dsPrefix, "prefix", "", "Only list keys with this prefix")
	datastoreGetCmd.Flags().StringVar(&dsVersion, "version", "", "Read this version instead of the latest")

	setFlags := datastoreSetCmd.Flags()
	setFlags.BoolVar(&dsExclusiveCreate, "exclusive-create", false, "Fail if the key already exists")
	setFlags.StringVar(&dsMatchVersion, "match-version", "", "Fail unless the current version matches")
	setFlags.StringSliceVar(&dsUsers, "users", nil, "Comma separated user ids associated with the entry")
	setFlags.StringVar(&dsMetadata, "metadata", "", "JSON object stored as entry metadata")
	datastoreIncrementCmd.Flags().StringSliceVar(&dsUsers, "users", nil, "Comma separated user ids associated with the entry")

	versionFlags := datastoreVersionsCmd.Flags()
	versionFlags.BoolVar(&dsDescending, "desc", false, "Newest versions first")
	versionFlags.StringVar(&dsAfter, "after", "", "Only versions created after this time")
	versionFlags.StringVar(&dsBefore, "before", "", "Only versions created before this time")

	datastoreCmd.AddCommand(
		datastoreStoresCmd,
		datastoreListCmd,
		datastoreGetCmd,
		datastoreSetCmd,
		datastoreIncrementCmd,
		datastoreRemoveCmd,
		datastoreVersionsCmd,
	)
}
