package opencloud

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rblxcloud/utils"
)

// UserRestriction is a ban of a user from an experience or one of its places,
// or an entry in the ban log.
type UserRestriction struct {
	User *User
	// Place is nil for experience-wide restrictions
	Place              *Place
	Active             bool
	DisplayReason      string
	PrivateReason      string
	Inherited          bool
	ExcludeAltAccounts bool
	// Duration is zero for permanent bans
	Duration  time.Duration
	StartTime time.Time
	// IssuerUserID is the moderator that made a logged change, when known
	IssuerUserID int64
}

type rawRestrictionInfo struct {
	Active             bool   `json:"active"`
	DisplayReason      string `json:"displayReason"`
	PrivateReason      string `json:"privateReason"`
	Inherited          bool   `json:"inherited"`
	ExcludeAltAccounts bool   `json:"excludeAltAccounts"`
	Duration           string `json:"duration"`
	StartTime          string `json:"startTime"`
}

type rawRestriction struct {
	Path                string              `json:"path"`
	User                string              `json:"user"`
	Place               string              `json:"place"`
	GameJoinRestriction *rawRestrictionInfo `json:"gameJoinRestriction"`
	Moderator           struct {
		RobloxUser string `json:"robloxUser"`
	} `json:"moderator"`
	rawRestrictionInfo
}

func (e *Experience) decodeRestriction(body []byte) (*UserRestriction, error) {
	var data rawRestriction
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to decode user restriction: %w", err)
	}

	r := &UserRestriction{User: e.client.User(idFromPath(data.User))}

	info := data.rawRestrictionInfo
	if data.Path != "" {
		if rp, err := utils.ParseResourcePath(data.Path); err == nil {
			if placeID, err := rp.ID("places"); err == nil {
				r.Place = e.Place(placeID)
			}
		}
		if data.GameJoinRestriction != nil {
			info = *data.GameJoinRestriction
		}
	} else {
		if data.Place != "" {
			r.Place = e.Place(idFromPath(data.Place))
		}
		r.IssuerUserID = idFromPath(data.Moderator.RobloxUser)
	}

	r.Active = info.Active
	r.DisplayReason = info.DisplayReason
	r.PrivateReason = info.PrivateReason
	r.Inherited = info.Inherited
	r.ExcludeAltAccounts = info.ExcludeAltAccounts
	r.Duration = parseSecondsDuration(info.Duration)
	r.StartTime = parseTime(info.StartTime)
	return r, nil
}

// parseSecondsDuration reads durations such as "3600s"
func parseSecondsDuration(s string) time.Duration {
	s = strings.TrimSuffix(s, "s")
	if s == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// BanOptions describes a ban. A zero Duration bans permanently.
type BanOptions struct {
	Duration           time.Duration
	DisplayReason      string
	PrivateReason      string
	ExcludeAltAccounts bool
}

func (e *Experience) restrictionsPath(placeID int64) string {
	if placeID != 0 {
		return fmt.Sprintf("/universes/%d/places/%d/user-restrictions", e.ID, placeID)
	}
	return fmt.Sprintf("/universes/%d/user-restrictions", e.ID)
}

func (e *Experience) fetchRestriction(ctx context.Context, placeID, userID int64) (*UserRestriction, error) {
	resp, err := e.client.Do(ctx, &Request{
		Method:         http.MethodGet,
		Path:           fmt.Sprintf("%s/%d", e.restrictionsPath(placeID), userID),
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}
	return e.decodeRestriction(resp.Body)
}

func (e *Experience) patchRestriction(ctx context.Context, placeID, userID int64, restriction map[string]any) (*UserRestriction, error) {
	resp, err := e.client.Do(ctx, &Request{
		Method:         http.MethodPatch,
		Path:           fmt.Sprintf("%s/%d", e.restrictionsPath(placeID), userID),
		JSON:           map[string]any{"gameJoinRestriction": restriction},
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}
	return e.decodeRestriction(resp.Body)
}

func banPayload(opts BanOptions) map[string]any {
	var duration any
	if opts.Duration > 0 {
		duration = fmt.Sprintf("%ds", int64(opts.Duration/time.Second))
	}
	return map[string]any{
		"active":             true,
		"duration":           duration,
		"excludeAltAccounts": opts.ExcludeAltAccounts,
		"displayReason":      opts.DisplayReason,
		"privateReason":      opts.PrivateReason,
	}
}

// FetchUserRestriction fetches a user's experience-wide restriction
func (e *Experience) FetchUserRestriction(ctx context.Context, userID int64) (*UserRestriction, error) {
	return e.fetchRestriction(ctx, 0, userID)
}

// BanUser bans a user from every place in the experience
func (e *Experience) BanUser(ctx context.Context, userID int64, opts BanOptions) (*UserRestriction, error) {
	return e.patchRestriction(ctx, 0, userID, banPayload(opts))
}

// UnbanUser lifts a user's experience-wide ban
func (e *Experience) UnbanUser(ctx context.Context, userID int64) (*UserRestriction, error) {
	return e.patchRestriction(ctx, 0, userID, map[string]any{"active": false})
}

// ListBanLogs iterates changes to user restrictions, newest first. userID and
// placeID narrow the results when non-zero.
func (e *Experience) ListBanLogs(ctx context.Context, userID, placeID int64, limit int) iter.Seq2[*UserRestriction, error] {
	var clauses []string
	if userID != 0 {
		clauses = append(clauses, fmt.Sprintf("user == 'users/%d'", userID))
	}
	if placeID != 0 {
		clauses = append(clauses, fmt.Sprintf("place == 'places/%d'", placeID))
	}
	var filter any
	if len(clauses) > 0 {
		filter = strings.Join(clauses, " && ")
	}

	return paginate(ctx, e.client, pageRequest{
		req: Request{
			Method: http.MethodGet,
			Path:   fmt.Sprintf("/universes/%d/user-restrictions:listLogs", e.ID),
			Query:  Params{"maxPageSize": pageSize(limit, defaultPageSize), "filter": filter},
		},
		cursorKey: "pageToken",
		dataKey:   "logs",
		limit:     limit,
	}, func(raw json.RawMessage) (*UserRestriction, error) {
		return e.decodeRestriction(raw)
	})
}

// FetchUserRestriction fetches a user's restriction for this place
func (p *Place) FetchUserRestriction(ctx context.Context, userID int64) (*UserRestriction, error) {
	return p.Experience.fetchRestriction(ctx, p.ID, userID)
}

// BanUser bans a user from this place
func (p *Place) BanUser(ctx context.Context, userID int64, opts BanOptions) (*UserRestriction, error) {
	return p.Experience.patchRestriction(ctx, p.ID, userID, banPayload(opts))
}

// UnbanUser lifts a user's ban from this place
func (p *Place) UnbanUser(ctx context.Context, userID int64) (*UserRestriction, error) {
	return p.Experience.patchRestriction(ctx, p.ID, userID, map[string]any{"active": false})
}
