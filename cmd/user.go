package cmd

import (
	"github.com/iancoleman/strcase"
	"github.com/spf13/cobra"

	"rblxcloud/opencloud"
)

var (
	userLimit          int
	invAssetTypes      []string
	invAssetIDs        []string
	invBadges          bool
	invGamePasses      bool
	invPrivateServers  bool
	invCollectibles    bool
	headshotSize       int
	headshotFormat     string
	headshotCircular   bool
	groupRole          int64
	groupUser          int64
	groupSkipRoleCache bool
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Look up users, their groups and inventories",
}

func openUser(arg string) (*opencloud.User, error) {
	userID, err := parseID("user", arg)
	if err != nil {
		return nil, err
	}
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	return client.User(userID), nil
}

var userInfoCmd = &cobra.Command{
	Use:   "info <user>",
	Short: "Show user details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := openUser(args[0])
		if err != nil {
			return err
		}
		if _, err := user.FetchInfo(cmd.Context()); err != nil {
			return err
		}
		return printResult(cmd, user)
	},
}

var userGroupsCmd = &cobra.Command{
	Use:   "groups <user>",
	Short: "List the groups a user is in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := openUser(args[0])
		if err != nil {
			return err
		}
		memberships, err := collect("Groups ", user.ListGroups(cmd.Context(), userLimit))
		if err != nil {
			return err
		}
		return printResult(cmd, memberships)
	},
}

// inventoryFilter builds the filter from the inventory flags. Asset types may
// be written in any case, such as classic-tshirt or ClassicTShirt.
func inventoryFilter() (opencloud.InventoryFilter, error) {
	filter := opencloud.InventoryFilter{
		OnlyCollectibles:  invCollectibles,
		AllBadges:         invBadges,
		AllGamePasses:     invGamePasses,
		AllPrivateServers: invPrivateServers,
	}
	for _, t := range invAssetTypes {
		filter.AssetTypes = append(filter.AssetTypes, opencloud.InventoryAssetType(strcase.ToScreamingSnake(t)))
	}
	ids, err := parseIDs("asset-ids", invAssetIDs)
	if err != nil {
		return filter, err
	}
	filter.AssetIDs = ids
	return filter, nil
}

var userInventoryCmd = &cobra.Command{
	Use:   "inventory <user>",
	Short: "List items in a user's inventory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := openUser(args[0])
		if err != nil {
			return err
		}
		filter, err := inventoryFilter()
		if err != nil {
			return err
		}
		items, err := collect("Items ", user.ListInventory(cmd.Context(), filter, userLimit))
		if err != nil {
			return err
		}
		return printResult(cmd, items)
	},
}

var userHeadshotCmd = &cobra.Command{
	Use:   "headshot <user>",
	Short: "Generate a headshot thumbnail and print its URI",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := openUser(args[0])
		if err != nil {
			return err
		}
		op, err := user.GenerateHeadshot(cmd.Context(), opencloud.HeadshotOptions{
			Size:     headshotSize,
			Format:   headshotFormat,
			Circular: headshotCircular,
		})
		if err != nil {
			return err
		}
		uri, err := op.Wait(cmd.Context(), opencloud.DefaultWaitOptions())
		if err != nil {
			return err
		}
		return printResult(cmd, map[string]string{"image_uri": uri})
	},
}

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Look up groups, members, roles and join requests",
}

func openGroup(arg string) (*opencloud.Group, error) {
	groupID, err := parseID("group", arg)
	if err != nil {
		return nil, err
	}
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	return client.Group(groupID), nil
}

var groupInfoCmd = &cobra.Command{
	Use:   "info <group>",
	Short: "Show group details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		group, err := openGroup(args[0])
		if err != nil {
			return err
		}
		if _, err := group.FetchInfo(cmd.Context()); err != nil {
			return err
		}
		return printResult(cmd, group)
	},
}

var groupShoutCmd = &cobra.Command{
	Use:   "shout <group>",
	Short: "Show the group shout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		group, err := openGroup(args[0])
		if err != nil {
			return err
		}
		shout, err := group.FetchShout(cmd.Context())
		if err != nil {
			return err
		}
		return printResult(cmd, shout)
	},
}

var groupRolesCmd = &cobra.Command{
	Use:   "roles <group>",
	Short: "List the roles of a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		group, err := openGroup(args[0])
		if err != nil {
			return err
		}
		roles, err := collect("Roles ", group.ListRoles(cmd.Context(), userLimit))
		if err != nil {
			return err
		}
		return printResult(cmd, roles)
	},
}

var groupMembersCmd = &cobra.Command{
	Use:   "members <group>",
	Short: "List group members, or look up one with --user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		group, err := openGroup(args[0])
		if err != nil {
			return err
		}
		if groupUser != 0 {
			member, err := group.FetchMember(cmd.Context(), groupUser)
			if err != nil {
				return err
			}
			return printResult(cmd, member)
		}
		members, err := collect("Members ", group.ListMembers(cmd.Context(), userLimit, groupRole))
		if err != nil {
			return err
		}
		return printResult(cmd, members)
	},
}

var groupSetRoleCmd = &cobra.Command{
	Use:   "set-role <group> <user> <role>",
	Short: "Change a member's role",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		group, err := openGroup(args[0])
		if err != nil {
			return err
		}
		userID, err := parseID("user", args[1])
		if err != nil {
			return err
		}
		roleID, err := parseID("role", args[2])
		if err != nil {
			return err
		}
		member, err := group.UpdateMember(cmd.Context(), userID, roleID)
		if err != nil {
			return err
		}
		role, err := member.FetchRole(cmd.Context(), groupSkipRoleCache)
		if err != nil {
			return err
		}
		status("✅ User %d is now %q", userID, role.Name)
		return printResult(cmd, member)
	},
}

var groupJoinRequestsCmd = &cobra.Command{
	Use:   "join-requests <group>",
	Short: "List pending join requests",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		group, err := openGroup(args[0])
		if err != nil {
			return err
		}
		requests, err := collect("Requests ", group.ListJoinRequests(cmd.Context(), userLimit, groupUser))
		if err != nil {
			return err
		}
		return printResult(cmd, requests)
	},
}

func joinRequestCommand(use, short string, accept bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <group> <user>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			group, err := openGroup(args[0])
			if err != nil {
				return err
			}
			userID, err := parseID("user", args[1])
			if err != nil {
				return err
			}
			if accept {
				err = group.AcceptJoinRequest(cmd.Context(), userID)
			} else {
				err = group.DeclineJoinRequest(cmd.Context(), userID)
			}
			if err != nil {
				return err
			}
			status("✅ %s join request of user %d", short, userID)
			return nil
		},
	}
}

func init() {
	for _, c := range []*cobra.Command{userGroupsCmd, userInventoryCmd, groupRolesCmd, groupMembersCmd, groupJoinRequestsCmd} {
		c.Flags().IntVar(&userLimit, "limit", 0, "Maximum number of results, 0 for all")
	}

	invFlags := userInventoryCmd.Flags()
	invFlags.StringSliceVar(&invAssetTypes, "asset-types", nil, "Only these asset types, such as hat or classic-tshirt")
	invFlags.StringSliceVar(&invAssetIDs, "asset-ids", nil, "Only these asset ids")
	invFlags.BoolVar(&invBadges, "badges", false, "Include badges")
	invFlags.BoolVar(&invGamePasses, "game-passes", false, "Include game passes")
	invFlags.BoolVar(&invPrivateServers, "private-servers", false, "Include private servers")
	invFlags.BoolVar(&invCollectibles, "collectibles", false, "Only collectible assets")

	headshotFlags := userHeadshotCmd.Flags()
	headshotFlags.IntVar(&headshotSize, "size", 420, "Size in pixels")
	headshotFlags.StringVar(&headshotFormat, "format", "png", "Image format: png or jpeg")
	headshotFlags.BoolVar(&headshotCircular, "circular", false, "Crop to a circle")

	groupMembersCmd.Flags().Int64Var(&groupRole, "role", 0, "Only members with this role id")
	groupMembersCmd.Flags().Int64Var(&groupUser, "user", 0, "Show only this user's membership")
	groupJoinRequestsCmd.Flags().Int64Var(&groupUser, "user", 0, "Only the request from this user")
	groupSetRoleCmd.Flags().BoolVar(&groupSkipRoleCache, "skip-cache", false, "Refetch group roles")

	userCmd.AddCommand(userInfoCmd, userGroupsCmd, userInventoryCmd, userHeadshotCmd)
	groupCmd.AddCommand(
		groupInfoCmd,
		groupShoutCmd,
		groupRolesCmd,
		groupMembersCmd,
		groupSetRoleCmd,
		groupJoinRequestsCmd,
		joinRequestCommand("accept", "Accepted", true),
		joinRequestCommand("decline", "Declined", false),
	)
}
