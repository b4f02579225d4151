package opencloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"rblxcloud/utils"
)

// AssetType is the type of an asset
type AssetType string

const (
	AssetTypeUnknown    AssetType = ""
	AssetTypeDecal      AssetType = "Decal"
	AssetTypeAudio      AssetType = "Audio"
	AssetTypeModel      AssetType = "Model"
	AssetTypePlugin     AssetType = "Plugin"
	AssetTypeFontFamily AssetType = "FontFamily"
	AssetTypeMeshPart   AssetType = "MeshPart"
	AssetTypeVideo      AssetType = "Video"
	AssetTypeAnimation  AssetType = "Animation"
	AssetTypeImage      AssetType = "Image"
)

var assetTypeStrings = map[string]AssetType{
	"Decal":            AssetTypeDecal,
	"Audio":            AssetTypeAudio,
	"Model":            AssetTypeModel,
	"Plugin":           AssetTypePlugin,
	"FontFamily":       AssetTypeFontFamily,
	"MeshPart":         AssetTypeMeshPart,
	"Video":            AssetTypeVideo,
	"Animation":        AssetTypeAnimation,
	"Image":            AssetTypeImage,
	"ASSET_TYPE_DECAL": AssetTypeDecal,
	"ASSET_TYPE_AUDIO": AssetTypeAudio,
	"ASSET_TYPE_MODEL": AssetTypeModel,
}

// ParseAssetType returns the AssetType named s, or AssetTypeUnknown
func ParseAssetType(s string) AssetType {
	return assetTypeStrings[s]
}

// ModerationStatus is the moderation state of an asset or asset version
type ModerationStatus int

const (
	ModerationUnknown ModerationStatus = iota
	ModerationReviewing
	ModerationRejected
	ModerationApproved
)

var moderationStrings = map[string]ModerationStatus{
	"Reviewing":                  ModerationReviewing,
	"Rejected":                   ModerationRejected,
	"Approved":                   ModerationApproved,
	"MODERATION_STATE_REVIEWING": ModerationReviewing,
	"MODERATION_STATE_REJECTED":  ModerationRejected,
	"MODERATION_STATE_APPROVED":  ModerationApproved,
}

func (m ModerationStatus) String() string {
	switch m {
	case ModerationReviewing:
		return "Reviewing"
	case ModerationRejected:
		return "Rejected"
	case ModerationApproved:
		return "Approved"
	default:
		return "Unknown"
	}
}

// assetMIMETypes maps upload file extensions to content types
var assetMIMETypes = map[string]string{
	"mp3":  "audio/mpeg",
	"ogg":  "audio/ogg",
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"jpg":  "image/jpeg",
	"bmp":  "image/bmp",
	"tga":  "image/tga",
	"fbx":  "model/fbx",
}

// MIMETypeForFile returns the content type uploaded for fileName, or "" when
// the extension is not supported.
func MIMETypeForFile(fileName string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	return assetMIMETypes[ext]
}

// CreatorType says whether a creator is a user or a group
type CreatorType int

const (
	CreatorTypeUser CreatorType = iota
	CreatorTypeGroup
)

// Creator is a user or group that can own assets
type Creator struct {
	ID   int64
	Type CreatorType

	client *Client
}

func (c *Creator) String() string {
	if c.Type == CreatorTypeGroup {
		return fmt.Sprintf("Creator(group %d)", c.ID)
	}
	return fmt.Sprintf("Creator(user %d)", c.ID)
}

// Asset is an asset uploaded to Roblox
type Asset struct {
	ID               int64
	Name             string
	Description      string
	Type             AssetType
	Creator          *Creator
	ModerationStatus ModerationStatus
	// RevisionID and RevisionTime are empty for asset types that can't be updated
	RevisionID   string
	RevisionTime time.Time

	client *Client
}

func (a *Asset) String() string {
	return fmt.Sprintf("Asset(%d, type=%s)", a.ID, a.Type)
}

type rawAsset struct {
	AssetID            flexInt `json:"assetId"`
	DisplayName        string  `json:"displayName"`
	Description        string  `json:"description"`
	AssetType          string  `json:"assetType"`
	RevisionID         string  `json:"revisionId"`
	RevisionCreateTime string  `json:"revisionCreateTime"`
	CreationContext    struct {
		Creator struct {
			UserID  flexInt `json:"userId"`
			GroupID flexInt `json:"groupId"`
		} `json:"creator"`
	} `json:"creationContext"`
	ModerationResult struct {
		ModerationState string `json:"moderationState"`
	} `json:"moderationResult"`
}

func (c *Client) decodeAsset(raw []byte) (*Asset, error) {
	var data rawAsset
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode asset: %w", err)
	}

	asset := &Asset{
		ID:               int64(data.AssetID),
		Name:             data.DisplayName,
		Description:      data.Description,
		Type:             assetTypeStrings[data.AssetType],
		ModerationStatus: moderationStrings[data.ModerationResult.ModerationState],
		RevisionID:       data.RevisionID,
		RevisionTime:     parseTime(data.RevisionCreateTime),
		client:           c,
	}
	if id := int64(data.CreationContext.Creator.UserID); id != 0 {
		asset.Creator = &Creator{ID: id, Type: CreatorTypeUser, client: c}
	} else if id := int64(data.CreationContext.Creator.GroupID); id != 0 {
		asset.Creator = &Creator{ID: id, Type: CreatorTypeGroup, client: c}
	}
	return asset, nil
}

// FetchCreatorStoreProduct fetches the asset's Creator Store listing
func (a *Asset) FetchCreatorStoreProduct(ctx context.Context) (*CreatorStoreProduct, error) {
	return a.client.FetchCreatorStoreProduct(ctx, a.Type, a.ID)
}

var assetReadMask = []string{
	"path", "revisionId", "revisionCreateTime", "assetId", "displayName",
	"assetType", "creationContext", "moderationResult", "state", "description",
	"icon", "previews", "facebookSocialLink", "twitterSocialLink",
	"youtubeSocialLink", "twitchSocialLink", "discordSocialLink",
	"githubSocialLink", "robloxSocialLink", "guildedSocialLink",
	"devForumSocialLink", "tryAssetSocialLink",
}

// FetchAsset fetches an asset by id
func (c *Client) FetchAsset(ctx context.Context, assetID int64) (*Asset, error) {
	resp, err := c.Do(ctx, &Request{
		Method:         http.MethodGet,
		Path:           fmt.Sprintf("assets/v1/assets/%d", assetID),
		Query:          Params{"readMask": assetReadMask},
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}
	return c.decodeAsset(resp.Body)
}

// FetchAsset fetches an asset by id
func (c *Creator) FetchAsset(ctx context.Context, assetID int64) (*Asset, error) {
	return c.client.FetchAsset(ctx, assetID)
}

// FetchCreatorStoreProduct fetches a Creator Store listing
func (c *Creator) FetchCreatorStoreProduct(ctx context.Context, assetType AssetType, productID int64) (*CreatorStoreProduct, error) {
	return c.client.FetchCreatorStoreProduct(ctx, assetType, productID)
}

// AssetUpload describes a new asset
type AssetUpload struct {
	File io.Reader
	// FileName picks the content type by its extension
	FileName      string
	Type          AssetType
	Name          string
	Description   string
	ExpectedPrice int
}

// AssetUpdate describes changes to an existing asset. Empty fields are left
// unchanged; File uploads a new revision.
type AssetUpdate struct {
	File          io.Reader
	FileName      string
	Name          string
	Description   string
	ExpectedPrice int
}

func (c *Creator) creatorContext() map[string]string {
	if c.Type == CreatorTypeGroup {
		return map[string]string{"groupId": strconv.FormatInt(c.ID, 10)}
	}
	return map[string]string{"userId": strconv.FormatInt(c.ID, 10)}
}

// UploadAsset uploads a new asset. The returned operation completes with the
// created asset once Roblox has processed it.
func (c *Creator) UploadAsset(ctx context.Context, upload AssetUpload) (*Operation[*Asset], error) {
	if err := validation.ValidateStruct(&upload,
		validation.Field(&upload.File, validation.Required),
		validation.Field(&upload.FileName, validation.Required),
		validation.Field(&upload.Type, validation.Required),
		validation.Field(&upload.Name, validation.Required),
	); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"assetType": upload.Type,
		"creationContext": map[string]any{
			"creator":       c.creatorContext(),
			"expectedPrice": upload.ExpectedPrice,
		},
		"displayName": upload.Name,
		"description": upload.Description,
	}

	body, contentType, err := encodeAssetForm(payload, upload.File, upload.FileName)
	if err != nil {
		return nil, err
	}

	return c.sendAssetRequest(ctx, &Request{
		Method:      http.MethodPost,
		Path:        "assets/v1/assets",
		Body:        body,
		ContentType: contentType,
	})
}

// UpdateAsset changes an asset's metadata or uploads a new revision
func (c *Creator) UpdateAsset(ctx context.Context, assetID int64, update AssetUpdate) (*Operation[*Asset], error) {
	payload := map[string]any{
		"assetId": assetID,
		"creationContext": map[string]any{
			"expectedPrice": update.ExpectedPrice,
		},
	}
	var mask []string
	if update.Name != "" {
		payload["displayName"] = update.Name
		mask = append(mask, "displayName")
	}
	if update.Description != "" {
		payload["description"] = update.Description
		mask = append(mask, "description")
	}

	body, contentType, err := encodeAssetForm(payload, update.File, update.FileName)
	if err != nil {
		return nil, err
	}

	return c.sendAssetRequest(ctx, &Request{
		Method:      http.MethodPatch,
		Path:        fmt.Sprintf("assets/v1/assets/%d", assetID),
		Query:       Params{"updateMask": strings.Join(mask, ",")},
		Body:        body,
		ContentType: contentType,
	})
}

func (c *Creator) sendAssetRequest(ctx context.Context, req *Request) (*Operation[*Asset], error) {
	req.ExpectedStatus = []int{http.StatusOK, http.StatusBadRequest}
	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusBadRequest {
		httpErr := errorFromResponse(resp)
		switch strings.Trim(httpErr.Message, `"`) {
		case "InvalidImage":
			httpErr.WithType(ErrorTypeInvalidFile)
		case "AssetName is moderated.", "AssetDescription is moderated.":
			httpErr.WithType(ErrorTypeModeratedText)
		}
		return nil, httpErr
	}

	var data struct {
		Path     string          `json:"path"`
		Done     bool            `json:"done"`
		Response json.RawMessage `json:"response"`
	}
	if err := resp.Decode(&data); err != nil {
		return nil, err
	}

	path := "assets/v1/" + data.Path
	if data.Done && len(data.Response) > 0 {
		asset, err := c.client.decodeAsset(data.Response)
		if err != nil {
			return nil, err
		}
		return completedOperation(c.client, path, asset), nil
	}
	return newOperation(c.client, path, func(raw json.RawMessage) (*Asset, error) {
		return c.client.decodeAsset(raw)
	}), nil
}

// encodeAssetForm builds the multipart body with a JSON "request" part and an
// optional "fileContent" part.
func encodeAssetForm(payload map[string]any, file io.Reader, fileName string) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	request, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode asset request: %w", err)
	}
	if err := writer.WriteField("request", string(request)); err != nil {
		return nil, "", err
	}

	if file != nil {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="fileContent"; filename="%s"`, filepath.Base(fileName)))
		if mimeType := MIMETypeForFile(fileName); mimeType != "" {
			header.Set("Content-Type", mimeType)
		} else {
			header.Set("Content-Type", "application/octet-stream")
		}
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, file); err != nil {
			return nil, "", fmt.Errorf("failed to read asset file: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

// AssetVersion is one version of an asset
type AssetVersion struct {
	AssetID          int64
	VersionNumber    int
	ModerationStatus ModerationStatus
	Creator          *Creator
}

func (v *AssetVersion) String() string {
	return fmt.Sprintf("AssetVersion(asset=%d, version=%d)", v.AssetID, v.VersionNumber)
}

func (c *Creator) decodeAssetVersion(raw []byte) (*AssetVersion, error) {
	var data struct {
		Path             string `json:"path"`
		ModerationResult struct {
			ModerationState string `json:"moderationState"`
		} `json:"moderationResult"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode asset version: %w", err)
	}

	version := &AssetVersion{
		ModerationStatus: moderationStrings[data.ModerationResult.ModerationState],
		Creator:          c,
	}
	if rp, err := utils.ParseResourcePath(data.Path); err == nil {
		version.AssetID, _ = rp.ID("assets")
		n, _ := rp.ID("versions")
		version.VersionNumber = int(n)
	}
	return version, nil
}

// ListAssetVersions iterates an asset's versions, newest first
func (c *Creator) ListAssetVersions(ctx context.Context, assetID int64, limit int) iter.Seq2[*AssetVersion, error] {
	return paginate(ctx, c.client, pageRequest{
		req: Request{
			Method: http.MethodGet,
			Path:   fmt.Sprintf("assets/v1/assets/%d/versions", assetID),
			Query:  Params{"maxPageSize": pageSize(limit, 50)},
		},
		cursorKey: "pageToken",
		dataKey:   "assetVersions",
		limit:     limit,
	}, func(raw json.RawMessage) (*AssetVersion, error) {
		return c.decodeAssetVersion(raw)
	})
}

// FetchAssetVersion fetches one version of an asset
func (c *Creator) FetchAssetVersion(ctx context.Context, assetID int64, versionNumber int) (*AssetVersion, error) {
	resp, err := c.client.Do(ctx, &Request{
		Method:         http.MethodGet,
		Path:           fmt.Sprintf("assets/v1/assets/%d/versions/%d", assetID, versionNumber),
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}
	return c.decodeAssetVersion(resp.Body)
}

// RollbackAsset makes an earlier version the asset's current version
func (c *Creator) RollbackAsset(ctx context.Context, assetID int64, versionNumber int) (*AssetVersion, error) {
	resp, err := c.client.Do(ctx, &Request{
		Method:         http.MethodPost,
		Path:           fmt.Sprintf("assets/v1/assets/%d/versions:rollback", assetID),
		JSON:           map[string]string{"assetVersion": fmt.Sprintf("assets/%d/versions/%d", assetID, versionNumber)},
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}
	return c.decodeAssetVersion(resp.Body)
}
