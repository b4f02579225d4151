package opencloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"rblxcloud/utils"
)

// AgeRating is an experience's maturity rating
type AgeRating int

const (
	AgeRatingUnknown AgeRating = iota
	AgeRatingUnspecified
	AgeRatingAllAges
	AgeRatingNinePlus
	AgeRatingThirteenPlus
	AgeRatingSeventeenPlus
)

var ageRatingStrings = map[string]AgeRating{
	"AGE_RATING_UNSPECIFIED": AgeRatingUnspecified,
	"AGE_RATING_ALL":         AgeRatingAllAges,
	"AGE_RATING_9_PLUS":      AgeRatingNinePlus,
	"AGE_RATING_13_PLUS":     AgeRatingThirteenPlus,
	"AGE_RATING_17_PLUS":     AgeRatingSeventeenPlus,
}

func (r AgeRating) String() string {
	for s, v := range ageRatingStrings {
		if v == r {
			return s
		}
	}
	return "UNKNOWN"
}

// SocialPlatform names a social link slot on an experience
type SocialPlatform string

const (
	SocialFacebook    SocialPlatform = "facebook"
	SocialTwitter     SocialPlatform = "twitter"
	SocialYouTube     SocialPlatform = "youtube"
	SocialTwitch      SocialPlatform = "twitch"
	SocialDiscord     SocialPlatform = "discord"
	SocialRobloxGroup SocialPlatform = "robloxGroup"
	SocialGuilded     SocialPlatform = "guilded"
)

// SocialPlatforms lists every social link slot
var SocialPlatforms = []SocialPlatform{
	SocialFacebook, SocialTwitter, SocialYouTube, SocialTwitch,
	SocialDiscord, SocialRobloxGroup, SocialGuilded,
}

func (p SocialPlatform) field() string { return string(p) + "SocialLink" }

// SocialLink is a titled link shown on an experience page
type SocialLink struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Experience is a Roblox experience (universe). The informational fields are
// filled by FetchInfo and Update.
type Experience struct {
	ID int64

	Name        string
	Description string
	Created     time.Time
	Updated     time.Time
	// Exactly one of OwnerUser and OwnerGroup is set after a fetch
	OwnerUser          *User
	OwnerGroup         *Group
	Public             bool
	VoiceChatEnabled   bool
	AgeRating          AgeRating
	PrivateServerPrice *int
	DesktopEnabled     bool
	MobileEnabled      bool
	TabletEnabled      bool
	ConsoleEnabled     bool
	VREnabled          bool
	SocialLinks        map[SocialPlatform]SocialLink

	client *Client
}

func (e *Experience) String() string {
	return fmt.Sprintf("Experience(%d)", e.ID)
}

type rawExperience struct {
	DisplayName             string `json:"displayName"`
	Description             string `json:"description"`
	CreateTime              string `json:"createTime"`
	UpdateTime              string `json:"updateTime"`
	User                    string `json:"user"`
	Group                   string `json:"group"`
	Visibility              string `json:"visibility"`
	VoiceChatEnabled        bool   `json:"voiceChatEnabled"`
	AgeRating               string `json:"ageRating"`
	PrivateServerPriceRobux *int   `json:"privateServerPriceRobux"`
	DesktopEnabled          bool   `json:"desktopEnabled"`
	MobileEnabled           bool   `json:"mobileEnabled"`
	TabletEnabled           bool   `json:"tabletEnabled"`
	ConsoleEnabled          bool   `json:"consoleEnabled"`
	VREnabled               bool   `json:"vrEnabled"`
}

func (e *Experience) apply(body []byte) error {
	var data rawExperience
	if err := json.Unmarshal(body, &data); err != nil {
		return fmt.Errorf("failed to decode experience: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return fmt.Errorf("failed to decode experience: %w", err)
	}

	e.Name = data.DisplayName
	e.Description = data.Description
	e.Created = parseTime(data.CreateTime)
	e.Updated = parseTime(data.UpdateTime)
	e.OwnerUser, e.OwnerGroup = nil, nil
	switch {
	case data.User != "":
		e.OwnerUser = e.client.User(idFromPath(data.User))
	case data.Group != "":
		e.OwnerGroup = e.client.Group(idFromPath(data.Group))
	}
	e.Public = data.Visibility == "PUBLIC"
	e.VoiceChatEnabled = data.VoiceChatEnabled
	e.AgeRating = ageRatingStrings[data.AgeRating]
	e.PrivateServerPrice = data.PrivateServerPriceRobux
	e.DesktopEnabled = data.DesktopEnabled
	e.MobileEnabled = data.MobileEnabled
	e.TabletEnabled = data.TabletEnabled
	e.ConsoleEnabled = data.ConsoleEnabled
	e.VREnabled = data.VREnabled

	e.SocialLinks = map[SocialPlatform]SocialLink{}
	for _, platform := range SocialPlatforms {
		raw, ok := fields[platform.field()]
		if !ok {
			continue
		}
		var link SocialLink
		if json.Unmarshal(raw, &link) == nil && link.URI != "" {
			e.SocialLinks[platform] = link
		}
	}
	return nil
}

// FetchInfo fills the experience's informational fields
func (e *Experience) FetchInfo(ctx context.Context) (*Experience, error) {
	resp, err := e.client.Do(ctx, &Request{
		Method:         http.MethodGet,
		Path:           fmt.Sprintf("/universes/%d", e.ID),
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}
	if err := e.apply(resp.Body); err != nil {
		return nil, err
	}
	return e, nil
}

// ExperienceUpdate lists the settings Update changes. Nil fields are left
// untouched.
type ExperienceUpdate struct {
	VoiceChatEnabled *bool
	DesktopEnabled   *bool
	MobileEnabled    *bool
	TabletEnabled    *bool
	ConsoleEnabled   *bool
	VREnabled        *bool

	// PrivateServerPrice sets the private server price in Robux
	PrivateServerPrice *int
	// DisablePrivateServers turns private servers off
	DisablePrivateServers bool

	// SocialLinks sets a link for each platform present; a nil link removes it
	SocialLinks map[SocialPlatform]*SocialLink
}

func (u *ExperienceUpdate) build() (map[string]any, []string, error) {
	if u.PrivateServerPrice != nil && u.DisablePrivateServers {
		return nil, nil, errors.New("PrivateServerPrice and DisablePrivateServers are mutually exclusive")
	}

	payload := map[string]any{}
	var mask []string

	flags := []struct {
		field string
		value *bool
	}{
		{"voiceChatEnabled", u.VoiceChatEnabled},
		{"desktopEnabled", u.DesktopEnabled},
		{"mobileEnabled", u.MobileEnabled},
		{"tabletEnabled", u.TabletEnabled},
		{"consoleEnabled", u.ConsoleEnabled},
		{"vrEnabled", u.VREnabled},
	}
	for _, f := range flags {
		if f.value != nil {
			payload[f.field] = *f.value
			mask = append(mask, f.field)
		}
	}

	switch {
	case u.PrivateServerPrice != nil:
		payload["privateServerPriceRobux"] = *u.PrivateServerPrice
		mask = append(mask, "privateServerPriceRobux")
	case u.DisablePrivateServers:
		mask = append(mask, "privateServerPriceRobux")
	}

	for _, platform := range SocialPlatforms {
		link, ok := u.SocialLinks[platform]
		if !ok {
			continue
		}
		field := platform.field()
		if link == nil {
			mask = append(mask, field)
			continue
		}
		payload[field] = link
		mask = append(mask, field+".title", field+".uri")
	}

	return payload, mask, nil
}

// Update changes the experience's settings and refreshes its fields
func (e *Experience) Update(ctx context.Context, update ExperienceUpdate) (*Experience, error) {
	payload, mask, err := update.build()
	if err != nil {
		return nil, err
	}
	resp, err := e.client.Do(ctx, &Request{
		Method:         http.MethodPatch,
		Path:           fmt.Sprintf("/universes/%d", e.ID),
		Query:          Params{"updateMask": strings.Join(mask, ",")},
		JSON:           payload,
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}
	if err := e.apply(resp.Body); err != nil {
		return nil, err
	}
	return e, nil
}

// Place returns a handle for a place in the experience
func (e *Experience) Place(id int64) *Place {
	return &Place{ID: id, Experience: e, client: e.client}
}

// DataStore returns a handle for a standard data store. Pass "global" for the
// default scope, or "" to address keys as "scope/key".
func (e *Experience) DataStore(name, scope string) *DataStore {
	return &DataStore{Name: name, Scope: scope, Experience: e, client: e.client}
}

// OrderedDataStore returns a handle for an ordered data store
func (e *Experience) OrderedDataStore(name, scope string) *OrderedDataStore {
	return &OrderedDataStore{Name: name, Scope: scope, Experience: e, client: e.client}
}

// SortedMap returns a handle for a memory store sorted map
func (e *Experience) SortedMap(name string) *SortedMap {
	return &SortedMap{Name: name, Experience: e, client: e.client}
}

// MemoryStoreQueue returns a handle for a memory store queue
func (e *Experience) MemoryStoreQueue(name string) *MemoryStoreQueue {
	return &MemoryStoreQueue{Name: name, Experience: e, client: e.client}
}

// PublishMessage sends data to live servers subscribed to topic
func (e *Experience) PublishMessage(ctx context.Context, topic, data string) error {
	if err := validation.Validate(topic, validation.Required); err != nil {
		return fmt.Errorf("topic: %w", err)
	}
	_, err := e.client.Do(ctx, &Request{
		Method:         http.MethodPost,
		Path:           fmt.Sprintf("messaging-service/v1/universes/%d/topics/%s", e.ID, url.PathEscape(topic)),
		JSON:           map[string]string{"message": data},
		ExpectedStatus: []int{http.StatusOK},
	})
	return err
}

// NotificationOptions describes an experience notification
type NotificationOptions struct {
	// MessageID is the notification string id from Creator Dashboard
	MessageID string
	// LaunchData is passed to the experience when the user joins from it
	LaunchData        string
	AnalyticsCategory string
	// Parameters fill the message's placeholders. Values must be int, int64
	// or string. Keys starting "userid_" are sent as "userId-".
	Parameters map[string]any
}

// SendNotification sends an experience notification to a user
func (e *Experience) SendNotification(ctx context.Context, userID int64, opts NotificationOptions) error {
	if err := validation.Validate(opts.MessageID, validation.Required); err != nil {
		return fmt.Errorf("MessageID: %w", err)
	}

	parameters := map[string]any{}
	for key, value := range opts.Parameters {
		if rest, ok := strings.CutPrefix(key, "userid_"); ok {
			key = "userId-" + rest
		}
		switch v := value.(type) {
		case int:
			parameters[key] = map[string]int64{"int64_value": int64(v)}
		case int64:
			parameters[key] = map[string]int64{"int64_value": v}
		case string:
			parameters[key] = map[string]string{"string_value": v}
		default:
			return fmt.Errorf("notification parameter %q must be an integer or string, got %T", key, value)
		}
	}

	payload := map[string]any{
		"type":       "MOMENT",
		"messageId":  opts.MessageID,
		"parameters": parameters,
	}
	if opts.LaunchData != "" {
		payload["joinExperience"] = map[string]string{"launchData": opts.LaunchData}
	}
	if opts.AnalyticsCategory != "" {
		payload["analyticsData"] = map[string]string{"category": opts.AnalyticsCategory}
	}

	_, err := e.client.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/users/%d/notifications", userID),
		JSON: map[string]any{
			"source":  map[string]string{"universe": fmt.Sprintf("universes/%d", e.ID)},
			"payload": payload,
		},
		ExpectedStatus: []int{http.StatusOK},
	})
	return err
}

// RestartServers shuts down every server running an old version of the experience
func (e *Experience) RestartServers(ctx context.Context) error {
	_, err := e.client.Do(ctx, &Request{
		Method:         http.MethodPost,
		Path:           fmt.Sprintf("/universes/%d:restartServers", e.ID),
		JSON:           map[string]any{},
		ExpectedStatus: []int{http.StatusOK},
	})
	return err
}

// FlushMemoryStore deletes all memory store data of the experience. The
// returned operation completes with true once the flush is done.
func (e *Experience) FlushMemoryStore(ctx context.Context) (*Operation[bool], error) {
	resp, err := e.client.Do(ctx, &Request{
		Method:         http.MethodPost,
		Path:           fmt.Sprintf("/universes/%d/memory-store:flush", e.ID),
		JSON:           map[string]any{},
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}

	var data struct {
		Path string `json:"path"`
	}
	if err := resp.Decode(&data); err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/universes/%d/memory-store/operations/%s", e.ID, utils.LastSegment(data.Path))
	return newOperation(e.client, path, func(json.RawMessage) (bool, error) { return true, nil }), nil
}
