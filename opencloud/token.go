package opencloud

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// PartialAccessToken is an access token without the refresh token and scope
// details, such as one restored from storage.
type PartialAccessToken struct {
	App   *OAuth2App
	Token string
}

func (t *PartialAccessToken) String() string {
	token := t.Token
	if len(token) > 15 {
		token = token[:15] + "..."
	}
	return fmt.Sprintf("PartialAccessToken(%s)", token)
}

// Client returns a client authorised by the token. It shares the app's
// transport settings.
func (t *PartialAccessToken) Client() *Client {
	return t.App.client.withCredential("Bearer " + t.Token)
}

// FetchUserinfo fetches the authorizing user's profile. The user's client is
// authorised by the token.
func (t *PartialAccessToken) FetchUserinfo(ctx context.Context) (*User, error) {
	client := t.Client()
	resp, err := client.Do(ctx, &Request{
		Method:         http.MethodGet,
		Path:           "oauth/v1/userinfo",
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}

	var claims userClaims
	if err := resp.Decode(&claims); err != nil {
		return nil, err
	}
	return claims.user(client), nil
}

// Resources are the accounts and experiences the user authorized the app for
type Resources struct {
	Experiences []*Experience
	Users       []*User
	Groups      []*Group
}

// FetchResources fetches the experiences, users and groups the token grants
// access to.
func (t *PartialAccessToken) FetchResources(ctx context.Context) (*Resources, error) {
	resp, err := t.App.client.Do(ctx, &Request{
		Method:         http.MethodPost,
		Path:           "oauth/v1/token/resources",
		Form:           t.App.credentialForm(t.Token),
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}

	var data struct {
		ResourceInfos []struct {
			Owner struct {
				ID   flexInt `json:"id"`
				Type string  `json:"type"`
			} `json:"owner"`
			Resources struct {
				Universe *struct {
					IDs []flexInt `json:"ids"`
				} `json:"universe"`
				Creator *struct {
					IDs []string `json:"ids"`
				} `json:"creator"`
			} `json:"resources"`
		} `json:"resource_infos"`
	}
	if err := resp.Decode(&data); err != nil {
		return nil, err
	}

	client := t.Client()
	resources := &Resources{}
	for _, info := range data.ResourceInfos {
		ownerID := int64(info.Owner.ID)

		if info.Resources.Universe != nil {
			for _, id := range info.Resources.Universe.IDs {
				experience := client.Experience(int64(id))
				switch info.Owner.Type {
				case "User":
					experience.OwnerUser = client.User(ownerID)
				case "Group":
					experience.OwnerGroup = client.Group(ownerID)
				}
				resources.Experiences = append(resources.Experiences, experience)
			}
		}

		if info.Resources.Creator != nil {
			for _, creatorID := range info.Resources.Creator.IDs {
				switch {
				case creatorID == "U":
					resources.Users = append(resources.Users, client.User(ownerID))
				case strings.HasPrefix(creatorID, "U"):
					if id, err := strconv.ParseInt(creatorID[1:], 10, 64); err == nil {
						resources.Users = append(resources.Users, client.User(id))
					}
				case strings.HasPrefix(creatorID, "G"):
					if id, err := strconv.ParseInt(creatorID[1:], 10, 64); err == nil {
						resources.Groups = append(resources.Groups, client.Group(id))
					}
				}
			}
		}
	}
	return resources, nil
}

// AccessTokenInfo is the result of token introspection
type AccessTokenInfo struct {
	// Active is false once the token expired or was revoked
	Active    bool
	ID        string
	ClientID  int64
	UserID    int64
	Scope     []string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// FetchTokenInfo introspects the token
func (t *PartialAccessToken) FetchTokenInfo(ctx context.Context) (*AccessTokenInfo, error) {
	resp, err := t.App.client.Do(ctx, &Request{
		Method:         http.MethodPost,
		Path:           "oauth/v1/token/introspect",
		Form:           t.App.credentialForm(t.Token),
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}

	var data struct {
		Active   bool    `json:"active"`
		JTI      string  `json:"jti"`
		ClientID flexInt `json:"client_id"`
		Sub      flexInt `json:"sub"`
		Scope    string  `json:"scope"`
		Exp      flexInt `json:"exp"`
		Iat      flexInt `json:"iat"`
	}
	if err := resp.Decode(&data); err != nil {
		return nil, err
	}

	info := &AccessTokenInfo{
		Active:   data.Active,
		ID:       data.JTI,
		ClientID: int64(data.ClientID),
		UserID:   int64(data.Sub),
		Scope:    strings.Fields(data.Scope),
	}
	if data.Exp != 0 {
		info.ExpiresAt = time.Unix(int64(data.Exp), 0).UTC()
	}
	if data.Iat != 0 {
		info.IssuedAt = time.Unix(int64(data.Iat), 0).UTC()
	}
	return info, nil
}

// Revoke revokes the token
func (t *PartialAccessToken) Revoke(ctx context.Context) error {
	return t.App.RevokeToken(ctx, t.Token)
}

// AccessToken is the result of a code exchange or refresh
type AccessToken struct {
	PartialAccessToken

	RefreshToken string
	Scope        []string
	ExpiresAt    time.Time
	IDToken      string
	// User is set when the openid scope was granted
	User *User
}

func (t *AccessToken) String() string {
	return fmt.Sprintf("AccessToken(%s, user=%v)", t.PartialAccessToken.String(), t.User)
}

// RevokeRefreshToken revokes the refresh token
func (t *AccessToken) RevokeRefreshToken(ctx context.Context) error {
	return t.App.RevokeToken(ctx, t.RefreshToken)
}
