package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rblxcloud/internal"
	"rblxcloud/opencloud"
)

var (
	expWait          bool
	expPlace         int64
	expUser          int64
	expLimit         int
	banDuration      string
	banReason        string
	banPrivateReason string
	banExcludeAlts   bool
	notifyMessageID  string
	notifyLaunchData string
	notifyCategory   string
	notifyParams     map[string]string
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Show the permissions of the configured API key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		info, err := client.FetchInfo(cmd.Context())
		if err != nil {
			return err
		}
		return printResult(cmd, info)
	},
}

var experienceCmd = &cobra.Command{
	Use:     "experience",
	Aliases: []string{"universe"},
	Short:   "Manage experiences, bans and live servers",
}

var experienceInfoCmd = &cobra.Command{
	Use:   "info <universe>",
	Short: "Show experience details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		experience, err := openExperience(args[0])
		if err != nil {
			return err
		}
		if _, err := experience.FetchInfo(cmd.Context()); err != nil {
			return err
		}
		return printResult(cmd, experience)
	},
}

var experienceRestartCmd = &cobra.Command{
	Use:   "restart <universe>",
	Short: "Shut down every server running the latest place versions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		experience, err := openExperience(args[0])
		if err != nil {
			return err
		}
		if err := experience.RestartServers(cmd.Context()); err != nil {
			return err
		}
		status("🔄 Restarting servers of %s", experience)
		return nil
	},
}

var experienceFlushCmd = &cobra.Command{
	Use:   "flush <universe>",
	Short: "Delete all memory store data of an experience",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		experience, err := openExperience(args[0])
		if err != nil {
			return err
		}
		op, err := experience.FlushMemoryStore(cmd.Context())
		if err != nil {
			return err
		}
		if !expWait {
			status("Flush started: %s", op.Path())
			return nil
		}

		status("⏳ Waiting for flush to finish...")
		if _, err := op.Wait(cmd.Context(), opencloud.DefaultWaitOptions()); err != nil {
			return err
		}
		status("✅ Memory store flushed")
		return nil
	},
}

var experienceBanCmd = &cobra.Command{
	Use:   "ban <universe> <user>",
	Short: "Ban a user from an experience or one of its places",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		experience, err := openExperience(args[0])
		if err != nil {
			return err
		}
		userID, err := parseID("user", args[1])
		if err != nil {
			return err
		}

		opts := opencloud.BanOptions{
			DisplayReason:      banReason,
			PrivateReason:      banPrivateReason,
			ExcludeAltAccounts: banExcludeAlts,
		}
		if banDuration != "" {
			if opts.Duration, err = parseDuration(banDuration); err != nil {
				return internal.NewValidationErrorWithValue("duration", err.Error(), banDuration).
					WithSuggestion("Use a duration such as 36h or 7d, or omit it for a permanent ban")
			}
		}

		var restriction *opencloud.UserRestriction
		if expPlace != 0 {
			restriction, err = experience.Place(expPlace).BanUser(cmd.Context(), userID, opts)
		} else {
			restriction, err = experience.BanUser(cmd.Context(), userID, opts)
		}
		if err != nil {
			return err
		}
		return printResult(cmd, restriction)
	},
}

var experienceUnbanCmd = &cobra.Command{
	Use:   "unban <universe> <user>",
	Short: "Lift a ban",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		experience, err := openExperience(args[0])
		if err != nil {
			return err
		}
		userID, err := parseID("user", args[1])
		if err != nil {
			return err
		}

		var restriction *opencloud.UserRestriction
		if expPlace != 0 {
			restriction, err = experience.Place(expPlace).UnbanUser(cmd.Context(), userID)
		} else {
			restriction, err = experience.UnbanUser(cmd.Context(), userID)
		}
		if err != nil {
			return err
		}
		return printResult(cmd, restriction)
	},
}

var experienceRestrictionCmd = &cobra.Command{
	Use:   "restriction <universe> <user>",
	Short: "Show the current restriction of a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		experience, err := openExperience(args[0])
		if err != nil {
			return err
		}
		userID, err := parseID("user", args[1])
		if err != nil {
			return err
		}

		var restriction *opencloud.UserRestriction
		if expPlace != 0 {
			restriction, err = experience.Place(expPlace).FetchUserRestriction(cmd.Context(), userID)
		} else {
			restriction, err = experience.FetchUserRestriction(cmd.Context(), userID)
		}
		if err != nil {
			return err
		}
		return printResult(cmd, restriction)
	},
}

var experienceBansCmd = &cobra.Command{
	Use:   "bans <universe>",
	Short: "List the ban log, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		experience, err := openExperience(args[0])
		if err != nil {
			return err
		}
		logs, err := collect("Log entries ", experience.ListBanLogs(cmd.Context(), expUser, expPlace, expLimit))
		if err != nil {
			return err
		}
		return printResult(cmd, logs)
	},
}

var experienceNotifyCmd = &cobra.Command{
	Use:   "notify <universe> <user>",
	Short: "Send an experience notification to a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		experience, err := openExperience(args[0])
		if err != nil {
			return err
		}
		userID, err := parseID("user", args[1])
		if err != nil {
			return err
		}

		params := make(map[string]any, len(notifyParams))
		for k, v := range notifyParams {
			if n, err := parseInt64Arg(k, v); err == nil {
				params[k] = n
			} else {
				params[k] = v
			}
		}

		if err := experience.SendNotification(cmd.Context(), userID, opencloud.NotificationOptions{
			MessageID:         notifyMessageID,
			LaunchData:        notifyLaunchData,
			AnalyticsCategory: notifyCategory,
			Parameters:        params,
		}); err != nil {
			return err
		}
		status("🔔 Notification sent to user %d", userID)
		return nil
	},
}

var experienceSubscriptionCmd = &cobra.Command{
	Use:   "subscription <universe> <product> <user>",
	Short: "Show a user's subscription to a subscription product",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		experience, err := openExperience(args[0])
		if err != nil {
			return err
		}
		userID, err := parseID("user", args[2])
		if err != nil {
			return err
		}
		subscription, err := experience.FetchSubscription(cmd.Context(), args[1], userID)
		if err != nil {
			return err
		}
		return printResult(cmd, subscription)
	},
}

func init() {
	experienceFlushCmd.Flags().BoolVar(&expWait, "wait", false, "Wait for the flush to complete")

	for _, c := range []*cobra.Command{experienceBanCmd, experienceUnbanCmd, experienceRestrictionCmd, experienceBansCmd} {
		c.Flags().Int64Var(&expPlace, "place", 0, "Restrict to one place of the experience")
	}

	banFlags := experienceBanCmd.Flags()
	banFlags.StringVar(&banDuration, "duration", "", "Ban length such as 36h or 7d; permanent when omitted")
	banFlags.StringVar(&banReason, "reason", "", "Reason shown to the user")
	banFlags.StringVar(&banPrivateReason, "private-reason", "", "Reason kept for moderators")
	banFlags.BoolVar(&banExcludeAlts, "exclude-alts", false, "Do not ban alternate accounts")

	experienceBansCmd.Flags().Int64Var(&expUser, "user", 0, "Only log entries for this user")
	experienceBansCmd.Flags().IntVar(&expLimit, "limit", 0, "Maximum number of entries, 0 for all")

	notifyFlags := experienceNotifyCmd.Flags()
	notifyFlags.StringVar(&notifyMessageID, "message", "", "Notification string id (required)")
	notifyFlags.StringVar(&notifyLaunchData, "launch-data", "", "Data passed to the experience on join")
	notifyFlags.StringVar(&notifyCategory, "category", "", "Analytics category")
	notifyFlags.StringToStringVar(&notifyParams, "param", nil, "Message parameter as key=value, repeatable")
	_ = experienceNotifyCmd.MarkFlagRequired("message")

	experienceCmd.AddCommand(
		experienceInfoCmd,
		experienceRestartCmd,
		experienceFlushCmd,
		experienceBanCmd,
		experienceUnbanCmd,
		experienceRestrictionCmd,
		experienceBansCmd,
		experienceNotifyCmd,
		experienceSubscriptionCmd,
	)
}

// parseDuration accepts time.ParseDuration syntax plus a trailing d for days
func parseDuration(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.ParseFloat(days, 64)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n * float64(24*time.Hour)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive: %q", s)
	}
	return d, nil
}
