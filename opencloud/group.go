package opencloud

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"strconv"
	"sync"
	"time"

	"rblxcloud/utils"
)

// Group is a Roblox group. It embeds Creator so assets can be uploaded to the
// group.
type Group struct {
	Creator

	Name        string
	Description string
	Created     time.Time
	Updated     time.Time
	Owner       *User
	MemberCount int64
	PublicEntry bool
	Locked      bool
	Verified    bool

	mu    sync.Mutex
	roles map[int64]*GroupRole
}

func newGroup(id int64, c *Client) *Group {
	return &Group{Creator: Creator{ID: id, Type: CreatorTypeGroup, client: c}}
}

func (g *Group) String() string {
	return fmt.Sprintf("Group(%d)", g.ID)
}

// FetchInfo fills in the group's details and returns the group
func (g *Group) FetchInfo(ctx context.Context) (*Group, error) {
	resp, err := g.client.Do(ctx, &Request{
		Method:         http.MethodGet,
		Path:           fmt.Sprintf("/groups/%d", g.ID),
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}

	var data struct {
		DisplayName        string  `json:"displayName"`
		Description        string  `json:"description"`
		CreateTime         string  `json:"createTime"`
		UpdateTime         string  `json:"updateTime"`
		Owner              string  `json:"owner"`
		MemberCount        flexInt `json:"memberCount"`
		PublicEntryAllowed bool    `json:"publicEntryAllowed"`
		Locked             bool    `json:"locked"`
		Verified           bool    `json:"verified"`
	}
	if err := resp.Decode(&data); err != nil {
		return nil, err
	}

	g.Name = data.DisplayName
	g.Description = data.Description
	g.Created = parseTime(data.CreateTime)
	g.Updated = parseTime(data.UpdateTime)
	g.Owner = nil
	if id := idFromPath(data.Owner); id != 0 {
		g.Owner = newUser(id, g.client)
	}
	g.MemberCount = int64(data.MemberCount)
	g.PublicEntry = data.PublicEntryAllowed
	g.Locked = data.Locked
	g.Verified = data.Verified
	return g, nil
}

// GroupShout is the message pinned to the top of a group
type GroupShout struct {
	Content string
	Poster  *User
	// Updated is when this shout was posted, Created when the group's
	// first shout was.
	Updated time.Time
	Created time.Time
}

// FetchShout fetches the group's current shout
func (g *Group) FetchShout(ctx context.Context) (*GroupShout, error) {
	resp, err := g.client.Do(ctx, &Request{
		Method:         http.MethodGet,
		Path:           fmt.Sprintf("/groups/%d/shout", g.ID),
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}

	var data struct {
		Content    string `json:"content"`
		Poster     string `json:"poster"`
		CreateTime string `json:"createTime"`
		UpdateTime string `json:"updateTime"`
	}
	if err := resp.Decode(&data); err != nil {
		return nil, err
	}

	shout := &GroupShout{
		Content: data.Content,
		Updated: parseTime(data.UpdateTime),
		Created: parseTime(data.CreateTime),
	}
	if id := idFromPath(data.Poster); id != 0 {
		shout.Poster = newUser(id, g.client)
	}
	return shout, nil
}

// GroupRolePermissions are the permissions granted to a role
type GroupRolePermissions struct {
	ViewWallPosts           bool `json:"viewWallPosts"`
	CreateWallPosts         bool `json:"createWallPosts"`
	DeleteWallPosts         bool `json:"deleteWallPosts"`
	ViewGroupShout          bool `json:"viewGroupShout"`
	CreateGroupShout        bool `json:"createGroupShout"`
	ChangeMemberRanks       bool `json:"changeRank"`
	AcceptJoinRequests      bool `json:"acceptRequests"`
	ExileMembers            bool `json:"exileMembers"`
	ManageRelationships     bool `json:"manageRelationships"`
	ViewAuditLog            bool `json:"viewAuditLog"`
	SpendGroupFunds         bool `json:"spendGroupFunds"`
	AdvertiseGroup          bool `json:"advertiseGroup"`
	CreateAvatarItems       bool `json:"createAvatarItems"`
	ManageAvatarItems       bool `json:"manageAvatarItems"`
	ManageExperiences       bool `json:"manageGroupUniverses"`
	ViewExperienceAnalytics bool `json:"viewUniverseAnalytics"`
	CreateAPIKeys           bool `json:"createApiKeys"`
	ManageAPIKeys           bool `json:"manageApiKeys"`
}

// GroupRole is a rank in a group. Description, MemberCount and Permissions
// are only returned when the credential may see them.
type GroupRole struct {
	ID          int64
	Name        string
	Rank        int
	Description string
	MemberCount *int64
	Permissions *GroupRolePermissions
}

func (r *GroupRole) String() string {
	return fmt.Sprintf("GroupRole(%d, %q, rank=%d)", r.ID, r.Name, r.Rank)
}

func decodeGroupRole(raw json.RawMessage) (*GroupRole, error) {
	var data struct {
		ID          flexInt               `json:"id"`
		DisplayName string                `json:"displayName"`
		Rank        int                   `json:"rank"`
		Description string                `json:"description"`
		MemberCount *int64                `json:"memberCount"`
		Permissions *GroupRolePermissions `json:"permissions"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode group role: %w", err)
	}
	return &GroupRole{
		ID:          int64(data.ID),
		Name:        data.DisplayName,
		Rank:        data.Rank,
		Description: data.Description,
		MemberCount: data.MemberCount,
		Permissions: data.Permissions,
	}, nil
}

// ListRoles iterates the group's roles, caching each for FetchRole
func (g *Group) ListRoles(ctx context.Context, limit int) iter.Seq2[*GroupRole, error] {
	return paginate(ctx, g.client, pageRequest{
		req: Request{
			Path:  fmt.Sprintf("/groups/%d/roles", g.ID),
			Query: Params{"maxPageSize": pageSize(limit, 20)},
		},
		cursorKey: "pageToken",
		dataKey:   "groupRoles",
		limit:     limit,
	}, func(raw json.RawMessage) (*GroupRole, error) {
		role, err := decodeGroupRole(raw)
		if err != nil {
			return nil, err
		}
		g.mu.Lock()
		if g.roles == nil {
			g.roles = make(map[int64]*GroupRole)
		}
		g.roles[role.ID] = role
		g.mu.Unlock()
		return role, nil
	})
}

// FetchRole returns the role with roleID, or nil if the group has no such
// role. Roles are served from the cache filled by ListRoles unless skipCache
// is set or the cache is empty.
func (g *Group) FetchRole(ctx context.Context, roleID int64, skipCache bool) (*GroupRole, error) {
	g.mu.Lock()
	cached := len(g.roles) > 0
	g.mu.Unlock()

	if skipCache || !cached {
		if _, err := Collect(g.ListRoles(ctx, 0)); err != nil {
			return nil, err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.roles[roleID], nil
}

// GroupMember is a user's membership of a group
type GroupMember struct {
	*User

	Group   *Group
	RoleID  int64
	Joined  time.Time
	Updated time.Time
}

func (m *GroupMember) String() string {
	return fmt.Sprintf("GroupMember(user=%d, group=%d)", m.ID, m.Group.ID)
}

// decodeGroupMember decodes a membership. When group is nil the group is
// taken from the membership's role path.
func (c *Client) decodeGroupMember(raw json.RawMessage, group *Group) (*GroupMember, error) {
	var data struct {
		User       string `json:"user"`
		Role       string `json:"role"`
		CreateTime string `json:"createTime"`
		UpdateTime string `json:"updateTime"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode group member: %w", err)
	}

	member := &GroupMember{
		User:    newUser(idFromPath(data.User), c),
		Group:   group,
		RoleID:  idFromPath(data.Role),
		Joined:  parseTime(data.CreateTime),
		Updated: parseTime(data.UpdateTime),
	}
	if member.Group == nil {
		member.Group = newGroup(utils.ResourceID(data.Role, "groups"), c)
	}
	return member, nil
}

// FetchRole fetches the member's current role
func (m *GroupMember) FetchRole(ctx context.Context, skipCache bool) (*GroupRole, error) {
	return m.Group.FetchRole(ctx, m.RoleID, skipCache)
}

// Update changes the member's role and refreshes the member
func (m *GroupMember) Update(ctx context.Context, roleID int64) (*GroupMember, error) {
	updated, err := m.Group.UpdateMember(ctx, m.ID, roleID)
	if err != nil {
		return nil, err
	}
	m.RoleID = updated.RoleID
	m.Updated = updated.Updated
	return m, nil
}

// FetchMember returns the user's membership, or nil if they aren't in the
// group.
func (g *Group) FetchMember(ctx context.Context, userID int64) (*GroupMember, error) {
	for member, err := range paginate(ctx, g.client, pageRequest{
		req: Request{
			Path: fmt.Sprintf("/groups/%d/memberships", g.ID),
			Query: Params{
				"maxPageSize": 1,
				"filter":      fmt.Sprintf("user == 'users/%d'", userID),
			},
		},
		cursorKey: "pageToken",
		dataKey:   "groupMemberships",
		limit:     1,
	}, func(raw json.RawMessage) (*GroupMember, error) {
		return g.client.decodeGroupMember(raw, g)
	}) {
		return member, err
	}
	return nil, nil
}

// membershipID is the identifier of a user's membership
func membershipID(userID int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(userID, 10)))
}

// UpdateMember changes a member's role. roleID must not be the owner or
// guest role and must rank below the credential's own role.
func (g *Group) UpdateMember(ctx context.Context, userID, roleID int64) (*GroupMember, error) {
	path := fmt.Sprintf("groups/%d/memberships/%s", g.ID, membershipID(userID))
	payload := map[string]any{
		"path": path,
		"user": fmt.Sprintf("users/%d", userID),
		"role": nil,
	}
	if roleID != 0 {
		payload["role"] = fmt.Sprintf("groups/%d/roles/%d", g.ID, roleID)
	}

	resp, err := g.client.Do(ctx, &Request{
		Method:         http.MethodPatch,
		Path:           "/" + path,
		JSON:           payload,
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}
	return g.client.decodeGroupMember(resp.Body, g)
}

// ListMembers iterates the group's members, optionally only those with
// roleID.
func (g *Group) ListMembers(ctx context.Context, limit int, roleID int64) iter.Seq2[*GroupMember, error] {
	query := Params{"maxPageSize": pageSize(limit, 99)}
	if roleID != 0 {
		query["filter"] = fmt.Sprintf("role == 'groups/%d/roles/%d'", g.ID, roleID)
	}

	return paginate(ctx, g.client, pageRequest{
		req: Request{
			Path:  fmt.Sprintf("/groups/%d/memberships", g.ID),
			Query: query,
		},
		cursorKey: "pageToken",
		dataKey:   "groupMemberships",
		limit:     limit,
	}, func(raw json.RawMessage) (*GroupMember, error) {
		return g.client.decodeGroupMember(raw, g)
	})
}

// GroupJoinRequest is a pending request to join a private group
type GroupJoinRequest struct {
	*User

	Group     *Group
	Requested time.Time
}

func (r *GroupJoinRequest) String() string {
	return fmt.Sprintf("GroupJoinRequest(user=%d, group=%d)", r.ID, r.Group.ID)
}

// Accept accepts the request
func (r *GroupJoinRequest) Accept(ctx context.Context) error {
	return r.Group.AcceptJoinRequest(ctx, r.ID)
}

// Decline declines the request
func (r *GroupJoinRequest) Decline(ctx context.Context) error {
	return r.Group.DeclineJoinRequest(ctx, r.ID)
}

// ListJoinRequests iterates pending join requests, optionally only the one
// from userID.
func (g *Group) ListJoinRequests(ctx context.Context, limit int, userID int64) iter.Seq2[*GroupJoinRequest, error] {
	query := Params{"maxPageSize": pageSize(limit, defaultPageSize)}
	if userID != 0 {
		query["filter"] = fmt.Sprintf("user == 'users/%d'", userID)
	}

	return paginate(ctx, g.client, pageRequest{
		req: Request{
			Path:  fmt.Sprintf("/groups/%d/join-requests", g.ID),
			Query: query,
		},
		cursorKey: "pageToken",
		dataKey:   "groupJoinRequests",
		limit:     limit,
	}, func(raw json.RawMessage) (*GroupJoinRequest, error) {
		var data struct {
			User       string `json:"user"`
			CreateTime string `json:"createTime"`
		}
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("failed to decode join request: %w", err)
		}
		return &GroupJoinRequest{
			User:      newUser(idFromPath(data.User), g.client),
			Group:     g,
			Requested: parseTime(data.CreateTime),
		}, nil
	})
}

func (g *Group) resolveJoinRequest(ctx context.Context, userID int64, action string) error {
	_, err := g.client.Do(ctx, &Request{
		Method:         http.MethodPost,
		Path:           fmt.Sprintf("/groups/%d/join-requests/%d:%s", g.ID, userID, action),
		JSON:           map[string]any{},
		ExpectedStatus: []int{http.StatusOK},
	})
	return err
}

// AcceptJoinRequest accepts userID's request to join
func (g *Group) AcceptJoinRequest(ctx context.Context, userID int64) error {
	return g.resolveJoinRequest(ctx, userID, "accept")
}

// DeclineJoinRequest declines userID's request to join
func (g *Group) DeclineJoinRequest(ctx context.Context, userID int64) error {
	return g.resolveJoinRequest(ctx, userID, "decline")
}
