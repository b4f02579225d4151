package opencloud

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type formPart struct {
	FileName    string
	ContentType string
	Content     string
}

func readForm(t *testing.T, r capturedRequest) map[string]formPart {
	t.Helper()
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	require.NoError(t, err)

	parts := map[string]formPart{}
	reader := multipart.NewReader(bytes.NewReader(r.Body), params["boundary"])
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return parts
		}
		require.NoError(t, err)
		content, err := io.ReadAll(part)
		require.NoError(t, err)
		parts[part.FormName()] = formPart{
			FileName:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Content:     string(content),
		}
	}
}

func TestParseAssetType(t *testing.T) {
	assert.Equal(t, AssetTypeDecal, ParseAssetType("Decal"))
	assert.Equal(t, AssetTypeAudio, ParseAssetType("ASSET_TYPE_AUDIO"))
	assert.Equal(t, AssetTypeUnknown, ParseAssetType("Hat"))
}

func TestMIMETypeForFile(t *testing.T) {
	assert.Equal(t, "image/png", MIMETypeForFile("icon.PNG"))
	assert.Equal(t, "audio/mpeg", MIMETypeForFile("/tmp/theme.mp3"))
	assert.Equal(t, "model/fbx", MIMETypeForFile("tree.fbx"))
	assert.Empty(t, MIMETypeForFile("notes.txt"))
}

func TestCreator_FetchAsset(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{
			"assetId":            "555",
			"displayName":        "Tree",
			"assetType":          "Model",
			"revisionId":         "rev",
			"revisionCreateTime": "2024-06-01T00:00:00Z",
			"creationContext":    map[string]any{"creator": map[string]any{"groupId": "7"}},
			"moderationResult":   map[string]string{"moderationState": "MODERATION_STATE_APPROVED"},
		})
	})

	asset, err := client.User(1).FetchAsset(context.Background(), 555)
	require.NoError(t, err)
	assert.Equal(t, int64(555), asset.ID)
	assert.Equal(t, AssetTypeModel, asset.Type)
	assert.Equal(t, ModerationApproved, asset.ModerationStatus)
	require.NotNil(t, asset.Creator)
	assert.Equal(t, CreatorTypeGroup, asset.Creator.Type)
	assert.Equal(t, int64(7), asset.Creator.ID)

	got := rec.last()
	assert.Equal(t, "/assets/v1/assets/555", got.Path)
	assert.Contains(t, got.Query.Get("readMask"), "moderationResult")
}

func TestCreator_UploadAsset(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{"path": "operations/op-9", "done": false})
	})

	op, err := client.Group(7).UploadAsset(context.Background(), AssetUpload{
		File:        strings.NewReader("PNGDATA"),
		FileName:    "images/icon.png",
		Type:        AssetTypeDecal,
		Name:        "Icon",
		Description: "An icon",
	})
	require.NoError(t, err)
	assert.False(t, op.IsDone())
	assert.Equal(t, "assets/v1/operations/op-9", op.Path())

	got := rec.last()
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/assets/v1/assets", got.Path)

	parts := readForm(t, got)
	require.Contains(t, parts, "request")
	assert.JSONEq(t, `{
		"assetType": "Decal",
		"creationContext": {"creator": {"groupId": "7"}, "expectedPrice": 0},
		"displayName": "Icon",
		"description": "An icon"
	}`, parts["request"].Content)

	require.Contains(t, parts, "fileContent")
	assert.Equal(t, "icon.png", parts["fileContent"].FileName)
	assert.Equal(t, "image/png", parts["fileContent"].ContentType)
	assert.Equal(t, "PNGDATA", parts["fileContent"].Content)
}

func TestCreator_UploadAssetCompleted(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{
			"path":     "operations/op-1",
			"done":     true,
			"response": map[string]any{"assetId": "42", "displayName": "Theme", "assetType": "Audio"},
		})
	})

	op, err := client.User(1).UploadAsset(context.Background(), AssetUpload{
		File:     strings.NewReader("ID3"),
		FileName: "theme.mp3",
		Type:     AssetTypeAudio,
		Name:     "Theme",
	})
	require.NoError(t, err)
	require.True(t, op.IsDone())
	asset, err := op.Wait(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(42), asset.ID)
	assert.Len(t, rec.all(), 1)

	parts := readForm(t, rec.last())
	assert.Contains(t, parts["request"].Content, `"userId":"1"`)
}

func TestCreator_UploadAssetValidation(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{})
	})

	_, err := client.User(1).UploadAsset(context.Background(), AssetUpload{FileName: "a.png", Type: AssetTypeDecal, Name: "a"})
	assert.Error(t, err)
	_, err = client.User(1).UploadAsset(context.Background(), AssetUpload{File: strings.NewReader("x"), FileName: "a.png", Type: AssetTypeDecal})
	assert.Error(t, err)
	assert.Empty(t, rec.all())
}

func TestCreator_UploadAssetRejected(t *testing.T) {
	tests := []struct {
		name string
		body any
		want error
	}{
		{"invalid_image", "InvalidImage", ErrInvalidFile},
		{"moderated_name", map[string]string{"message": "AssetName is moderated."}, ErrModeratedText},
		{"moderated_description", map[string]string{"message": "AssetDescription is moderated."}, ErrModeratedText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
				writeJSON(w, http.StatusBadRequest, tt.body)
			})
			_, err := client.User(1).UploadAsset(context.Background(), AssetUpload{
				File:     strings.NewReader("x"),
				FileName: "a.png",
				Type:     AssetTypeDecal,
				Name:     "a",
			})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestCreator_UpdateAsset(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{"path": "operations/op-2"})
	})

	_, err := client.User(1).UpdateAsset(context.Background(), 555, AssetUpdate{Name: "Renamed"})
	require.NoError(t, err)

	got := rec.last()
	assert.Equal(t, http.MethodPatch, got.Method)
	assert.Equal(t, "/assets/v1/assets/555", got.Path)
	assert.Equal(t, "displayName", got.Query.Get("updateMask"))

	parts := readForm(t, got)
	assert.NotContains(t, parts, "fileContent")
	assert.JSONEq(t, `{
		"assetId": 555,
		"creationContext": {"expectedPrice": 0},
		"displayName": "Renamed"
	}`, parts["request"].Content)
}

func TestCreator_AssetVersions(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		switch {
		case strings.HasSuffix(r.Path, "versions:rollback"):
			writeJSON(w, http.StatusOK, map[string]any{"path": "assets/555/versions/4"})
		case strings.HasSuffix(r.Path, "/versions"):
			writeJSON(w, http.StatusOK, map[string]any{
				"assetVersions": []map[string]any{
					{"path": "assets/555/versions/3", "moderationResult": map[string]string{"moderationState": "Reviewing"}},
					{"path": "assets/555/versions/2"},
				},
			})
		default:
			writeJSON(w, http.StatusOK, map[string]any{"path": "assets/555/versions/2"})
		}
	})
	creator := client.User(1)

	versions, err := Collect(creator.ListAssetVersions(context.Background(), 555, 0))
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, int64(555), versions[0].AssetID)
	assert.Equal(t, 3, versions[0].VersionNumber)
	assert.Equal(t, ModerationReviewing, versions[0].ModerationStatus)
	assert.Equal(t, "50", rec.last().Query.Get("maxPageSize"))

	version, err := creator.FetchAssetVersion(context.Background(), 555, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, version.VersionNumber)
	assert.Equal(t, "/assets/v1/assets/555/versions/2", rec.last().Path)

	rolled, err := creator.RollbackAsset(context.Background(), 555, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, rolled.VersionNumber)
	assert.JSONEq(t, `{"assetVersion": "assets/555/versions/2"}`, string(rec.last().Body))
}

func TestMoney_ScientificNotation(t *testing.T) {
	tests := []struct {
		quantity    float64
		significand int64
		exponent    int
	}{
		{1.99, 199, -2},
		{5, 5, 0},
		{0.1 + 0.2, 3, -1},
		{12.5, 125, -1},
	}

	for _, tt := range tests {
		significand, exponent := Money{Currency: "USD", Quantity: tt.quantity}.ScientificNotation()
		assert.Equal(t, tt.significand, significand, "quantity %v", tt.quantity)
		assert.Equal(t, tt.exponent, exponent, "quantity %v", tt.quantity)
	}
}

func TestMoney_Compare(t *testing.T) {
	cheap := Money{Currency: "USD", Quantity: 1}
	dear := Money{Currency: "USD", Quantity: 2.5}

	cmp, err := cheap.Compare(dear)
	require.NoError(t, err)
	assert.Equal(t, -1, cmp)
	cmp, err = dear.Compare(cheap)
	require.NoError(t, err)
	assert.Equal(t, 1, cmp)
	assert.True(t, cheap.Equal(Money{Currency: "USD", Quantity: 1}))

	_, err = cheap.Compare(Money{Currency: "EUR", Quantity: 1})
	assert.Error(t, err)
	assert.False(t, cheap.Equal(Money{Currency: "EUR", Quantity: 1}))
	assert.Equal(t, "2.5 USD", dear.String())
}

func TestClient_FetchCreatorStoreProduct(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{
			"modelAssetId": "555",
			"groupSeller":  "groups/7",
			"purchasable":  true,
			"published":    true,
			"restrictions": []string{"SOLD_ITEM_RESTRICTED"},
			"basePrice": map[string]any{
				"currencyCode": "USD",
				"quantity":     map[string]any{"significand": 199, "exponent": -2},
			},
		})
	})

	product, err := client.FetchCreatorStoreProduct(context.Background(), AssetTypeModel, 555)
	require.NoError(t, err)
	assert.Equal(t, "/cloud/v2/creator-store-products/CreatorMarketplaceAsset-Model-555", rec.last().Path)
	assert.Equal(t, int64(555), product.AssetID)
	require.NotNil(t, product.Seller)
	assert.Equal(t, CreatorTypeGroup, product.Seller.Type)
	assert.Equal(t, int64(7), product.Seller.ID)
	assert.Equal(t, []ProductRestriction{RestrictionSoldItemRestricted}, product.Restrictions)
	assert.Equal(t, "USD", product.BasePrice.Currency)
	assert.InDelta(t, 1.99, product.BasePrice.Quantity, 1e-9)
	assert.Equal(t, Money{}, product.PurchasePrice)
}

func TestClient_UpdateCreatorStoreProduct(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{"pluginAssetId": "9", "userSeller": "users/1", "published": false})
	})
	published := false

	product, err := client.UpdateCreatorStoreProduct(context.Background(), AssetTypePlugin, 9, CreatorStoreProductUpdate{
		Published: &published,
		BasePrice: &Money{Currency: "USD", Quantity: 4.99},
	})
	require.NoError(t, err)
	assert.Equal(t, CreatorTypeUser, product.Seller.Type)

	got := rec.last()
	assert.Equal(t, http.MethodPatch, got.Method)
	assert.Equal(t, "published,basePrice", got.Query.Get("updateMask"))
	assert.JSONEq(t, `{
		"published": false,
		"basePrice": {"currencyCode": "USD", "quantity": {"significand": 499, "exponent": -2}}
	}`, string(got.Body))
}
