package opencloud

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// UserVisibility controls who can see a user's social profiles
type UserVisibility int

const (
	VisibilityUnknown UserVisibility = iota
	VisibilityNoOne
	VisibilityFriends
	VisibilityFriendsAndFollowing
	VisibilityFriendsFollowingAndFollowers
	VisibilityEveryone
)

var visibilityStrings = map[string]UserVisibility{
	"NO_ONE":                          VisibilityNoOne,
	"FRIENDS":                         VisibilityFriends,
	"FRIENDS_AND_FOLLOWING":           VisibilityFriendsAndFollowing,
	"FRIENDS_FOLLOWING_AND_FOLLOWERS": VisibilityFriendsFollowingAndFollowers,
	"EVERYONE":                        VisibilityEveryone,
}

func (v UserVisibility) String() string {
	for name, value := range visibilityStrings {
		if value == v {
			return name
		}
	}
	return "UNKNOWN"
}

// UserSocialLinks are the social profiles listed on a user's profile. Unset
// profiles are empty strings.
type UserSocialLinks struct {
	Facebook   string         `json:"facebook"`
	Guilded    string         `json:"guilded"`
	Twitch     string         `json:"twitch"`
	Twitter    string         `json:"twitter"`
	YouTube    string         `json:"youtube"`
	Visibility UserVisibility `json:"-"`
}

// User is a Roblox user. It embeds Creator so assets can be uploaded to the
// user's inventory.
type User struct {
	Creator

	Username    string
	DisplayName string
	Created     time.Time
	About       string
	Locale      string
	Premium     *bool
	IDVerified  *bool
	SocialLinks *UserSocialLinks
	// HeadshotURI is set from OAuth2 userinfo responses
	HeadshotURI string
}

func newUser(id int64, c *Client) *User {
	return &User{Creator: Creator{ID: id, Type: CreatorTypeUser, client: c}}
}

func (u *User) String() string {
	return fmt.Sprintf("User(%d)", u.ID)
}

// ProfileURI returns the user's profile page
func (u *User) ProfileURI() string {
	return fmt.Sprintf("https://roblox.com/users/%d/profile", u.ID)
}

// FetchInfo fills in the user's profile and returns the user
func (u *User) FetchInfo(ctx context.Context) (*User, error) {
	resp, err := u.client.Do(ctx, &Request{
		Method:         http.MethodGet,
		Path:           fmt.Sprintf("/users/%d", u.ID),
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}

	var data struct {
		Name                  string `json:"name"`
		DisplayName           string `json:"displayName"`
		CreateTime            string `json:"createTime"`
		About                 string `json:"about"`
		Locale                string `json:"locale"`
		Premium               *bool  `json:"premium"`
		IDVerified            *bool  `json:"idVerified"`
		SocialNetworkProfiles *struct {
			UserSocialLinks
			Visibility string `json:"visibility"`
		} `json:"socialNetworkProfiles"`
	}
	if err := resp.Decode(&data); err != nil {
		return nil, err
	}

	u.Username = data.Name
	u.DisplayName = data.DisplayName
	u.Created = parseTime(data.CreateTime)
	u.About = data.About
	u.Locale = data.Locale
	u.Premium = data.Premium
	u.IDVerified = data.IDVerified
	u.SocialLinks = nil
	if profiles := data.SocialNetworkProfiles; profiles != nil {
		links := profiles.UserSocialLinks
		links.Visibility = visibilityStrings[profiles.Visibility]
		u.SocialLinks = &links
	}
	return u, nil
}

// HeadshotOptions selects the generated thumbnail
type HeadshotOptions struct {
	// Size in pixels, defaulting to 420
	Size int
	// Format is "png" (default) or "jpeg"
	Format   string
	Circular bool
}

var headshotSizes = []any{48, 50, 60, 75, 100, 110, 150, 180, 352, 420, 720}

// GenerateHeadshot requests a headshot thumbnail of the user. The operation
// resolves to the image URI and is usually already complete.
func (u *User) GenerateHeadshot(ctx context.Context, opts HeadshotOptions) (*Operation[string], error) {
	if opts.Size == 0 {
		opts.Size = 420
	}
	if opts.Format == "" {
		opts.Format = "png"
	}
	if err := validation.ValidateStruct(&opts,
		validation.Field(&opts.Size, validation.In(headshotSizes...)),
		validation.Field(&opts.Format, validation.In("png", "jpeg")),
	); err != nil {
		return nil, err
	}

	query := Params{
		"size":   opts.Size,
		"format": strings.ToUpper(opts.Format),
	}
	if !opts.Circular {
		query["shape"] = "SQUARE"
	}

	resp, err := u.client.Do(ctx, &Request{
		Method:         http.MethodGet,
		Path:           fmt.Sprintf("/users/%d:generateThumbnail", u.ID),
		Query:          query,
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}

	var data struct {
		Path     string          `json:"path"`
		Done     bool            `json:"done"`
		Response json.RawMessage `json:"response"`
	}
	if err := resp.Decode(&data); err != nil {
		return nil, err
	}

	path := "/" + data.Path
	if len(data.Response) > 0 && string(data.Response) != "null" {
		uri, err := decodeImageURI(data.Response)
		if err != nil {
			return nil, err
		}
		u.HeadshotURI = uri
		return completedOperation(u.client, path, uri), nil
	}
	return newOperation(u.client, path, decodeImageURI), nil
}

func decodeImageURI(raw json.RawMessage) (string, error) {
	var data struct {
		ImageURI string `json:"imageUri"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", fmt.Errorf("failed to decode thumbnail: %w", err)
	}
	return data.ImageURI, nil
}

// ListGroups iterates the user's memberships of every group they're in. The
// member's Group field identifies the group.
func (u *User) ListGroups(ctx context.Context, limit int) iter.Seq2[*GroupMember, error] {
	return paginate(ctx, u.client, pageRequest{
		req: Request{
			Path: "/groups/-/memberships",
			Query: Params{
				"maxPageSize": pageSize(limit, 99),
				"filter":      fmt.Sprintf("user == 'users/%d'", u.ID),
			},
		},
		cursorKey: "pageToken",
		dataKey:   "groupMemberships",
		limit:     limit,
	}, func(raw json.RawMessage) (*GroupMember, error) {
		return u.client.decodeGroupMember(raw, nil)
	})
}
