package opencloud

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toolboxModel(id int64) map[string]any {
	return map[string]any{
		"voting": map[string]any{
			"showVotes": true, "upVotes": 9, "downVotes": 1, "voteCount": 10, "upVotePercent": 90,
		},
		"creator": map[string]any{
			"creator": "user/287113233", "userId": 287113233, "name": "builder", "verified": true,
		},
		"creatorStoreProduct": map[string]any{
			"purchasePrice": map[string]any{
				"currencyCode": "USD",
				"quantity":     map[string]any{"significand": 199, "exponent": -2},
			},
			"purchasable": true,
		},
		"asset": map[string]any{
			"id":                id,
			"assetTypeId":       10,
			"name":              "firehydrant",
			"description":       "keeps the flames away",
			"subTypes":          []string{"Package"},
			"hasScripts":        true,
			"scriptCount":       2,
			"objectMeshSummary": map[string]any{"triangles": 552, "vertices": 912},
			"instanceCounts":    map[string]any{"meshPart": 1, "script": 2},
			"createTime":        "2023-09-28T08:23:05.447Z",
			"updateTime":        "2025-12-11T11:41:07.2773289Z",
		},
	}
}

func TestClient_FetchToolboxAsset(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		writeJSON(w, http.StatusOK, toolboxModel(14903722621))
	})

	asset, err := client.FetchToolboxAsset(context.Background(), 14903722621)
	require.NoError(t, err)
	assert.Equal(t, "/toolbox-service/v2/assets/14903722621", rec.last().Path)

	assert.Equal(t, int64(14903722621), asset.ID)
	assert.Equal(t, AssetTypeModel, asset.Type)
	assert.Equal(t, "firehydrant", asset.Name)
	assert.Equal(t, []ModelSubtype{ModelSubtypePackage}, asset.ModelSubtypes)
	assert.Equal(t, 552, asset.TriangleCount)
	assert.Equal(t, 912, asset.VertexCount)
	assert.Equal(t, 1, asset.InstanceCounts.MeshPart)
	assert.Equal(t, 90, asset.Votes.UpPercent)
	assert.Equal(t, 2023, asset.Created.Year())
	assert.Equal(t, 2025, asset.Updated.Year())

	require.NotNil(t, asset.Creator)
	assert.Equal(t, int64(287113233), asset.Creator.ID)
	assert.Equal(t, CreatorTypeUser, asset.Creator.Type)
	assert.Equal(t, "builder", asset.CreatorName)
	assert.True(t, asset.CreatorVerified)

	require.NotNil(t, asset.Product)
	assert.Equal(t, asset.ID, asset.Product.AssetID)
	assert.Equal(t, AssetTypeModel, asset.Product.AssetType)
	assert.Same(t, asset.Creator, asset.Product.Seller)
	assert.True(t, asset.Product.Purchasable)
	assert.Equal(t, "USD", asset.Product.PurchasePrice.Currency)
	assert.InDelta(t, 1.99, asset.Product.PurchasePrice.Quantity, 1e-9)
}

func TestClient_FetchToolboxAssetWithoutProduct(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{
			"creator": map[string]any{"groupId": "7", "name": "studio"},
			"asset":   map[string]any{"id": "5", "assetTypeId": 3, "durationSeconds": 61.5, "artist": "band"},
		})
	})

	asset, err := client.FetchToolboxAsset(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, AssetTypeAudio, asset.Type)
	assert.Equal(t, 61500*time.Millisecond, asset.Duration)
	assert.Equal(t, "band", asset.Artist)
	assert.Equal(t, CreatorTypeGroup, asset.Creator.Type)
	require.NotNil(t, asset.Product)
	assert.Equal(t, int64(5), asset.Product.AssetID)
	assert.False(t, asset.Product.Purchasable)
}

func TestClient_SearchToolbox(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		if r.Query.Get("pageToken") == "" {
			writeJSON(w, http.StatusOK, map[string]any{
				"creatorStoreAssets": []any{toolboxModel(1), toolboxModel(2)},
				"nextPageToken":      "p2",
				"totalResults":       3,
				"filteredKeyword":    "hydrant",
				"queryFacets":        map[string]any{"availableFacets": []string{"red", "metal"}},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"creatorStoreAssets": []any{toolboxModel(3)},
			"totalResults":       3,
		})
	})

	group := &client.Group(77).Creator
	results, err := Collect(client.SearchToolbox(context.Background(), ToolboxSearch{
		Type:                 AssetTypeModel,
		Query:                "hydrant",
		ModelSubtypes:        []ModelSubtype{ModelSubtypePackage, ModelSubtypeAd},
		Creator:              group,
		VerifiedCreatorsOnly: true,
		Order:                SortDescending,
		SortBy:               ToolboxSortUpdateTime,
		MaxPrice:             &Money{Currency: "USD", Quantity: 4.99},
		Facets:               []string{"red"},
	}))
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, int64(3), results[2].Asset.ID)
	assert.Equal(t, []string{"red", "metal"}, results[0].Context.AvailableFacets)
	assert.Equal(t, "hydrant", results[1].Context.FilteredQuery)
	assert.Equal(t, 3, results[2].Context.TotalResults)

	requests := rec.all()
	require.Len(t, requests, 2)
	first := requests[0]
	assert.Equal(t, "/toolbox-service/v2/assets:search", first.Path)
	assert.Equal(t, "Model", first.Query.Get("searchCategoryType"))
	assert.Equal(t, "hydrant", first.Query.Get("query"))
	assert.Equal(t, "Package,Ad", first.Query.Get("modelSubtypes"))
	assert.Equal(t, "77", first.Query.Get("creatorId"))
	assert.Equal(t, "Group", first.Query.Get("creatorType"))
	assert.Equal(t, "77", first.Query.Get("groupId"))
	assert.Equal(t, "true", first.Query.Get("includeOnlyVerifiedCreators"))
	assert.Equal(t, "Descending", first.Query.Get("sortOrder"))
	assert.Equal(t, "UpdatedTime", first.Query.Get("sortBy"))
	assert.Equal(t, "499", first.Query.Get("maxPriceCents"))
	assert.False(t, first.Query.Has("minPriceCents"))
	assert.Equal(t, "red", first.Query.Get("facets"))
	assert.Equal(t, "Full", first.Query.Get("searchView"))
	assert.Equal(t, "100", first.Query.Get("maxPageSize"))
	assert.Equal(t, "p2", requests[1].Query.Get("pageToken"))
}

func TestClient_SearchToolboxUsesSearchCreatorWhenUnnamed(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{
			"creatorStoreAssets": []any{map[string]any{"asset": map[string]any{"id": 4, "assetTypeId": 13}}},
		})
	})

	user := &client.User(12).Creator
	results, err := Collect(client.SearchToolbox(context.Background(), ToolboxSearch{Type: AssetTypeDecal, Creator: user, Limit: 1}))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Same(t, user, results[0].Asset.Creator)
}

func TestClient_SearchToolboxValidation(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{})
	})

	for name, search := range map[string]ToolboxSearch{
		"no_type":      {},
		"unsearchable": {Type: AssetTypeAnimation},
		"euro_price":   {Type: AssetTypeAudio, MinPrice: &Money{Currency: "EUR", Quantity: 1}},
		"bad_order":    {Type: AssetTypeAudio, Order: "Sideways"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Collect(client.SearchToolbox(context.Background(), search))
			assert.Error(t, err)
		})
	}
	assert.Empty(t, rec.all())
}

func TestClient_SearchSavedAssets(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		switch r.Query.Get("page") {
		case "":
			writeJSON(w, http.StatusOK, map[string]any{
				"saves": []any{
					map[string]any{"creatorStoreAsset": toolboxModel(1), "savedTime": "2026-02-11T11:01:33.495Z", "isOwned": true},
					map[string]any{"creatorStoreAsset": nil},
				},
				"totalResults": 3,
			})
		case "2":
			writeJSON(w, http.StatusOK, map[string]any{
				"saves":        []any{map[string]any{"creatorStoreAsset": toolboxModel(3)}},
				"totalResults": 3,
			})
		default:
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": "no such page"})
		}
	})

	results, err := Collect(client.SearchSavedAssets(context.Background(), SavedAssetSearch{
		Type:               AssetTypeModel,
		Query:              "hydrant",
		Order:              SortDescending,
		SortBy:             ToolboxSortTop,
		ExcludeOwnedAssets: true,
		Limit:              2,
	}))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].Asset.ID)
	assert.True(t, results[0].Asset.Owned)
	assert.Equal(t, 2026, results[0].Asset.SavedAt.Year())
	assert.Equal(t, int64(3), results[1].Asset.ID)
	assert.Equal(t, 3, results[1].Context.TotalResults)

	requests := rec.all()
	require.Len(t, requests, 2)
	first := requests[0]
	assert.Equal(t, "/toolbox-service/v1/saves", first.Path)
	assert.Equal(t, "hydrant", first.Query.Get("keyword"))
	assert.Equal(t, "Model", first.Query.Get("targetType"))
	assert.Equal(t, "Ratings", first.Query.Get("sortBy"))
	assert.Equal(t, "Descending", first.Query.Get("sortDirection"))
	assert.Equal(t, "true", first.Query.Get("hideOwnedAssets"))
	assert.Equal(t, "2", first.Query.Get("limit"))
	assert.False(t, first.Query.Has("page"))
	assert.Equal(t, "2", requests[1].Query.Get("page"))
}

func TestClient_SearchSavedAssetsStopsOnShortPage(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{
			"saves": []any{map[string]any{"creatorStoreAsset": toolboxModel(1)}},
		})
	})

	results, err := Collect(client.SearchSavedAssets(context.Background(), SavedAssetSearch{}))
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Len(t, rec.all(), 1)

	_, err = Collect(client.SearchSavedAssets(context.Background(), SavedAssetSearch{AssetID: 5}))
	assert.Error(t, err)
}

func TestClient_SaveAsset(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		w.WriteHeader(http.StatusCreated)
	})

	require.NoError(t, client.SaveAsset(context.Background(), 114376757380093, AssetTypeAudio))
	got := rec.last()
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/toolbox-service/v1/saves", got.Path)
	body := decodeBody(t, got.Body)
	assert.Equal(t, "Audio", body["targetType"])
	assert.Equal(t, float64(114376757380093), body["targetId"])

	assert.Error(t, client.SaveAsset(context.Background(), 0, AssetTypeAudio))
	assert.Len(t, rec.all(), 1)
}

func TestClient_UnsaveAssets(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deletedCount": 2})
	})

	n, err := client.UnsaveAssets(context.Background(), SavedAsset{ID: 5, Type: AssetTypeAudio})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	single := rec.last()
	assert.Equal(t, http.MethodDelete, single.Method)
	assert.Equal(t, "/toolbox-service/v1/saves", single.Path)
	assert.Equal(t, "Audio", single.Query.Get("targetType"))
	assert.Equal(t, "5", single.Query.Get("targetId"))

	n, err = client.UnsaveAssets(context.Background(),
		SavedAsset{ID: 5, Type: AssetTypeAudio},
		SavedAsset{ID: 6, Type: AssetTypeModel},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	bulk := rec.last()
	assert.Equal(t, "/toolbox-service/v1/saves:bulkDelete", bulk.Path)
	targets, ok := decodeBody(t, bulk.Body)["targets"].([]any)
	require.True(t, ok)
	assert.Len(t, targets, 2)
}

func TestClient_UnsaveAssetsValidation(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		w.WriteHeader(http.StatusNoContent)
	})

	_, err := client.UnsaveAssets(context.Background())
	assert.Error(t, err)
	_, err = client.UnsaveAssets(context.Background(), SavedAsset{ID: 5})
	assert.Error(t, err)
	assert.Empty(t, rec.all())
}

func TestClient_FetchToolboxAssetNotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "missing"})
	})

	_, err := client.FetchToolboxAsset(context.Background(), 1)
	assert.True(t, errors.Is(err, ErrNotFound))
}
