package cmd

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"rblxcloud/internal"
	"rblxcloud/opencloud"
)

var (
	msLimit           int
	msDescending      bool
	msAfterKey        string
	msBeforeKey       string
	msTTL             time.Duration
	msSortKey         string
	msExclusiveCreate bool
	msExclusiveUpdate bool
	msEtag            string
	msPriority        float64
	msCount           int
	msAllOrNothing    bool
	msInvisibility    time.Duration
)

var memorystoreCmd = &cobra.Command{
	Use:     "memorystore",
	Aliases: []string{"ms"},
	Short:   "Work with memory store sorted maps and queues",
}

var sortedMapCmd = &cobra.Command{
	Use:   "sorted-map",
	Short: "Read and write memory store sorted maps",
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Push, read and discard memory store queue items",
}

func openExperience(arg string) (*opencloud.Experience, error) {
	universeID, err := parseID("universe", arg)
	if err != nil {
		return nil, err
	}
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	return client.Experience(universeID), nil
}

// sortKeyArg reads a sort key as a number when it parses as one
func sortKeyArg(raw string) any {
	if raw == "" {
		return nil
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}
	return raw
}

var sortedMapListCmd = &cobra.Command{
	Use:   "list <universe> <map>",
	Short: "List sorted map items",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		experience, err := openExperience(args[0])
		if err != nil {
			return err
		}

		opts := opencloud.ListSortedMapOptions{Descending: msDescending, Limit: msLimit}
		if msAfterKey != "" {
			opts.LowerBoundKey = msAfterKey
		}
		if msBeforeKey != "" {
			opts.UpperBoundKey = msBeforeKey
		}

		items, err := collect("Items ", experience.SortedMap(args[1]).ListKeys(cmd.Context(), opts))
		if err != nil {
			return err
		}
		return printResult(cmd, items)
	},
}

var sortedMapGetCmd = &cobra.Command{
	Use:   "get <universe> <map> <key>",
	Short: "Get a sorted map item",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		experience, err := openExperience(args[0])
		if err != nil {
			return err
		}
		item, err := experience.SortedMap(args[1]).GetKey(cmd.Context(), args[2])
		if err != nil {
			return err
		}
		return printResult(cmd, item)
	},
}

var sortedMapSetCmd = &cobra.Command{
	Use:   "set <universe> <map> <key> <value>",
	Short: "Write a sorted map item",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		experience, err := openExperience(args[0])
		if err != nil {
			return err
		}

		item, err := experience.SortedMap(args[1]).SetKey(cmd.Context(), args[2], parseValue(args[3]), opencloud.SetKeyOptions{
			Expiration:      msTTL,
			SortKey:         sortKeyArg(msSortKey),
			ExclusiveCreate: msExclusiveCreate,
			ExclusiveUpdate: msExclusiveUpdate,
		})
		if err != nil {
			return err
		}
		return printResult(cmd, item)
	},
}

var sortedMapRemoveCmd = &cobra.Command{
	Use:     "remove <universe> <map> <key>",
	Aliases: []string{"rm"},
	Short:   "Remove a sorted map item",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		experience, err := openExperience(args[0])
		if err != nil {
			return err
		}
		if err := experience.SortedMap(args[1]).RemoveKey(cmd.Context(), args[2], msEtag); err != nil {
			return err
		}
		status("🗑️  Removed %q", args[2])
		return nil
	},
}

var queueAddCmd = &cobra.Command{
	Use:   "add <universe> <queue> <value>",
	Short: "Push an item onto a queue",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		experience, err := openExperience(args[0])
		if err != nil {
			return err
		}
		queue := experience.MemoryStoreQueue(args[1])
		if err := queue.AddItem(cmd.Context(), parseValue(args[2]), opencloud.QueueAddOptions{
			Expiration: msTTL,
			Priority:   msPriority,
		}); err != nil {
			return err
		}
		status("✅ Added item to %s", queue)
		return nil
	},
}

type queueReadOutput struct {
	ReadID string            `json:"read_id"`
	Items  []json.RawMessage `json:"items"`
}

var queueReadCmd = &cobra.Command{
	Use:   "read <universe> <queue>",
	Short: "Read items from a queue, hiding them until discarded or timed out",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		experience, err := openExperience(args[0])
		if err != nil {
			return err
		}
		items, readID, err := experience.MemoryStoreQueue(args[1]).ReadItems(cmd.Context(), msCount, msAllOrNothing, msInvisibility)
		if err != nil {
			return err
		}
		internal.LogDebug("Read %d items (read id %q)", len(items), readID)
		return printResult(cmd, queueReadOutput{ReadID: readID, Items: items})
	},
}

var queueDiscardCmd = &cobra.Command{
	Use:   "discard <universe> <queue> <read-id>",
	Short: "Discard the items returned by a read",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		experience, err := openExperience(args[0])
		if err != nil {
			return err
		}
		if err := experience.MemoryStoreQueue(args[1]).RemoveItems(cmd.Context(), args[2]); err != nil {
			return err
		}
		status("🗑️  Discarded read %s", args[2])
		return nil
	},
}

var messagingCmd = &cobra.Command{
	Use:   "messaging",
	Short: "Publish messages to live servers",
}

var messagingPublishCmd = &cobra.Command{
	Use:   "publish <universe> <topic> <message>",
	Short: "Publish a message to a topic",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		experience, err := openExperience(args[0])
		if err != nil {
			return err
		}
		if err := experience.PublishMessage(cmd.Context(), args[1], args[2]); err != nil {
			return err
		}
		status("📨 Published to %q", args[1])
		return nil
	},
}

func init() {
	listFlags := sortedMapListCmd.Flags()
	listFlags.IntVar(&msLimit, "limit", 0, "Maximum number of items, 0 for all")
	listFlags.BoolVar(&msDescending, "desc", false, "Reverse order")
	listFlags.StringVar(&msAfterKey, "after-key", "", "Only keys after this key")
	listFlags.StringVar(&msBeforeKey, "before-key", "", "Only keys before this key")

	setFlags := sortedMapSetCmd.Flags()
	setFlags.DurationVar(&msTTL, "ttl", time.Hour, "Time until the item expires")
	setFlags.StringVar(&msSortKey, "sort-key", "", "Sort key; numbers are sent as numeric sort keys")
	setFlags.BoolVar(&msExclusiveCreate, "exclusive-create", false, "Fail if the key already exists")
	setFlags.BoolVar(&msExclusiveUpdate, "exclusive-update", false, "Fail if the key does not exist")

	sortedMapRemoveCmd.Flags().StringVar(&msEtag, "etag", "", "Only remove the item if its etag matches")

	queueAddCmd.Flags().DurationVar(&msTTL, "ttl", 30*time.Second, "Time until the item expires")
	queueAddCmd.Flags().Float64Var(&msPriority, "priority", 0, "Item priority")

	readFlags := queueReadCmd.Flags()
	readFlags.IntVar(&msCount, "count", 1, "Number of items to read")
	readFlags.BoolVar(&msAllOrNothing, "all-or-nothing", false, "Return nothing unless count items are available")
	readFlags.DurationVar(&msInvisibility, "invisibility", 30*time.Second, "How long read items stay hidden")

	sortedMapCmd.AddCommand(sortedMapListCmd, sortedMapGetCmd, sortedMapSetCmd, sortedMapRemoveCmd)
	queueCmd.AddCommand(queueAddCmd, queueReadCmd, queueDiscardCmd)
	memorystoreCmd.AddCommand(sortedMapCmd, queueCmd)
	messagingCmd.AddCommand(messagingPublishCmd)
}
