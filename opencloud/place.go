package opencloud

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Place is a place within an experience. The informational fields are filled
// by FetchInfo and Update.
type Place struct {
	ID         int64
	Experience *Experience

	Name        string
	Description string
	Created     time.Time
	Updated     time.Time
	ServerSize  int

	client *Client
}

func (p *Place) String() string {
	return fmt.Sprintf("Place(%d, experience=%d)", p.ID, p.Experience.ID)
}

func (p *Place) path() string {
	return fmt.Sprintf("/universes/%d/places/%d", p.Experience.ID, p.ID)
}

func (p *Place) apply(body []byte) error {
	var data struct {
		DisplayName string `json:"displayName"`
		Description string `json:"description"`
		CreateTime  string `json:"createTime"`
		UpdateTime  string `json:"updateTime"`
		ServerSize  int    `json:"serverSize"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return fmt.Errorf("failed to decode place: %w", err)
	}
	p.Name = data.DisplayName
	p.Description = data.Description
	p.Created = parseTime(data.CreateTime)
	p.Updated = parseTime(data.UpdateTime)
	p.ServerSize = data.ServerSize
	return nil
}

// FetchInfo fills the place's informational fields
func (p *Place) FetchInfo(ctx context.Context) (*Place, error) {
	resp, err := p.client.Do(ctx, &Request{
		Method:         http.MethodGet,
		Path:           p.path(),
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}
	if err := p.apply(resp.Body); err != nil {
		return nil, err
	}
	return p, nil
}

// Update changes the place's name, description and maximum server size. Empty
// or zero arguments are left unchanged.
func (p *Place) Update(ctx context.Context, name, description string, serverSize int) (*Place, error) {
	payload := map[string]any{}
	var mask []string
	if name != "" {
		payload["displayName"] = name
		mask = append(mask, "displayName")
	}
	if description != "" {
		payload["description"] = description
		mask = append(mask, "description")
	}
	if serverSize != 0 {
		payload["serverSize"] = serverSize
		mask = append(mask, "serverSize")
	}

	resp, err := p.client.Do(ctx, &Request{
		Method:         http.MethodPatch,
		Path:           p.path(),
		Query:          Params{"updateMask": strings.Join(mask, ",")},
		JSON:           payload,
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}
	if err := p.apply(resp.Body); err != nil {
		return nil, err
	}
	return p, nil
}

// UploadPlaceFile uploads an .rbxl or .rbxlx file as a new version of the
// place and returns its version number. publish makes the version live.
func (p *Place) UploadPlaceFile(ctx context.Context, file io.Reader, publish bool) (int, error) {
	body, err := io.ReadAll(file)
	if err != nil {
		return 0, fmt.Errorf("failed to read place file: %w", err)
	}

	versionType := "Saved"
	if publish {
		versionType = "Published"
	}

	resp, err := p.client.Do(ctx, &Request{
		Method:         http.MethodPost,
		Path:           fmt.Sprintf("universes/v1/%d/places/%d/versions", p.Experience.ID, p.ID),
		Query:          Params{"versionType": versionType},
		Body:           body,
		ContentType:    "application/octet-stream",
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return 0, err
	}

	var data struct {
		VersionNumber int `json:"versionNumber"`
	}
	if err := resp.Decode(&data); err != nil {
		return 0, err
	}
	return data.VersionNumber, nil
}
