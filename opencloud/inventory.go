package opencloud

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strconv"
	"strings"
)

// InventoryAssetType is the type of an asset in a user's inventory, named as
// the API names it.
type InventoryAssetType string

const (
	InventoryAssetClassicTShirt       InventoryAssetType = "CLASSIC_TSHIRT"
	InventoryAssetAudio               InventoryAssetType = "AUDIO"
	InventoryAssetHat                 InventoryAssetType = "HAT"
	InventoryAssetModel               InventoryAssetType = "MODEL"
	InventoryAssetClassicShirt        InventoryAssetType = "CLASSIC_SHIRT"
	InventoryAssetClassicPants        InventoryAssetType = "CLASSIC_PANTS"
	InventoryAssetDecal               InventoryAssetType = "DECAL"
	InventoryAssetClassicHead         InventoryAssetType = "CLASSIC_HEAD"
	InventoryAssetFace                InventoryAssetType = "FACE"
	InventoryAssetGear                InventoryAssetType = "GEAR"
	InventoryAssetAnimation           InventoryAssetType = "ANIMATION"
	InventoryAssetTorso               InventoryAssetType = "TORSO"
	InventoryAssetRightArm            InventoryAssetType = "RIGHT_ARM"
	InventoryAssetLeftArm             InventoryAssetType = "LEFT_ARM"
	InventoryAssetLeftLeg             InventoryAssetType = "LEFT_LEG"
	InventoryAssetRightLeg            InventoryAssetType = "RIGHT_LEG"
	InventoryAssetPackage             InventoryAssetType = "PACKAGE"
	InventoryAssetPlugin              InventoryAssetType = "PLUGIN"
	InventoryAssetMeshPart            InventoryAssetType = "MESH_PART"
	InventoryAssetHairAccessory       InventoryAssetType = "HAIR_ACCESSORY"
	InventoryAssetFaceAccessory       InventoryAssetType = "FACE_ACCESSORY"
	InventoryAssetNeckAccessory       InventoryAssetType = "NECK_ACCESSORY"
	InventoryAssetShoulderAccessory   InventoryAssetType = "SHOULDER_ACCESSORY"
	InventoryAssetFrontAccessory      InventoryAssetType = "FRONT_ACCESSORY"
	InventoryAssetBackAccessory       InventoryAssetType = "BACK_ACCESSORY"
	InventoryAssetWaistAccessory      InventoryAssetType = "WAIST_ACCESSORY"
	InventoryAssetClimbAnimation      InventoryAssetType = "CLIMB_ANIMATION"
	InventoryAssetDeathAnimation      InventoryAssetType = "DEATH_ANIMATION"
	InventoryAssetFallAnimation       InventoryAssetType = "FALL_ANIMATION"
	InventoryAssetIdleAnimation       InventoryAssetType = "IDLE_ANIMATION"
	InventoryAssetJumpAnimation       InventoryAssetType = "JUMP_ANIMATION"
	InventoryAssetRunAnimation        InventoryAssetType = "RUN_ANIMATION"
	InventoryAssetSwimAnimation       InventoryAssetType = "SWIM_ANIMATION"
	InventoryAssetWalkAnimation       InventoryAssetType = "WALK_ANIMATION"
	InventoryAssetPoseAnimation       InventoryAssetType = "POSE_ANIMATION"
	InventoryAssetEmoteAnimation      InventoryAssetType = "EMOTE_ANIMATION"
	InventoryAssetVideo               InventoryAssetType = "VIDEO"
	InventoryAssetTShirtAccessory     InventoryAssetType = "TSHIRT_ACCESSORY"
	InventoryAssetShirtAccessory      InventoryAssetType = "SHIRT_ACCESSORY"
	InventoryAssetPantsAccessory      InventoryAssetType = "PANTS_ACCESSORY"
	InventoryAssetJacketAccessory     InventoryAssetType = "JACKET_ACCESSORY"
	InventoryAssetSweaterAccessory    InventoryAssetType = "SWEATER_ACCESSORY"
	InventoryAssetShortsAccessory     InventoryAssetType = "SHORTS_ACCESSORY"
	InventoryAssetLeftShoeAccessory   InventoryAssetType = "LEFT_SHOE_ACCESSORY"
	InventoryAssetRightShoeAccessory  InventoryAssetType = "RIGHT_SHOE_ACCESSORY"
	InventoryAssetDressSkirtAccessory InventoryAssetType = "DRESS_SKIRT_ACCESSORY"
	InventoryAssetEyebrowAccessory    InventoryAssetType = "EYEBROW_ACCESSORY"
	InventoryAssetEyelashAccessory    InventoryAssetType = "EYELASH_ACCESSORY"
	InventoryAssetMoodAnimation       InventoryAssetType = "MOOD_ANIMATION"
	InventoryAssetDynamicHead         InventoryAssetType = "DYNAMIC_HEAD"
	InventoryAssetCreatedPlace        InventoryAssetType = "CREATED_PLACE"
	InventoryAssetPurchasedPlace      InventoryAssetType = "PURCHASED_PLACE"
)

// InventoryAssetTypes lists every known inventory asset type
var InventoryAssetTypes = []InventoryAssetType{
	InventoryAssetClassicTShirt, InventoryAssetAudio, InventoryAssetHat, InventoryAssetModel,
	InventoryAssetClassicShirt, InventoryAssetClassicPants, InventoryAssetDecal,
	InventoryAssetClassicHead, InventoryAssetFace, InventoryAssetGear, InventoryAssetAnimation,
	InventoryAssetTorso, InventoryAssetRightArm, InventoryAssetLeftArm, InventoryAssetLeftLeg,
	InventoryAssetRightLeg, InventoryAssetPackage, InventoryAssetPlugin, InventoryAssetMeshPart,
	InventoryAssetHairAccessory, InventoryAssetFaceAccessory, InventoryAssetNeckAccessory,
	InventoryAssetShoulderAccessory, InventoryAssetFrontAccessory, InventoryAssetBackAccessory,
	InventoryAssetWaistAccessory, InventoryAssetClimbAnimation, InventoryAssetDeathAnimation,
	InventoryAssetFallAnimation, InventoryAssetIdleAnimation, InventoryAssetJumpAnimation,
	InventoryAssetRunAnimation, InventoryAssetSwimAnimation, InventoryAssetWalkAnimation,
	InventoryAssetPoseAnimation, InventoryAssetEmoteAnimation, InventoryAssetVideo,
	InventoryAssetTShirtAccessory, InventoryAssetShirtAccessory, InventoryAssetPantsAccessory,
	InventoryAssetJacketAccessory, InventoryAssetSweaterAccessory, InventoryAssetShortsAccessory,
	InventoryAssetLeftShoeAccessory, InventoryAssetRightShoeAccessory,
	InventoryAssetDressSkirtAccessory, InventoryAssetEyebrowAccessory,
	InventoryAssetEyelashAccessory, InventoryAssetMoodAnimation, InventoryAssetDynamicHead,
	InventoryAssetCreatedPlace, InventoryAssetPurchasedPlace,
}

// Valid reports whether t is a known inventory asset type
func (t InventoryAssetType) Valid() bool {
	for _, known := range InventoryAssetTypes {
		if t == known {
			return true
		}
	}
	return false
}

// InventoryItemKind says which kind of item an InventoryItem holds
type InventoryItemKind int

const (
	InventoryKindAsset InventoryItemKind = iota
	InventoryKindBadge
	InventoryKindGamePass
	InventoryKindPrivateServer
)

func (k InventoryItemKind) String() string {
	switch k {
	case InventoryKindAsset:
		return "asset"
	case InventoryKindBadge:
		return "badge"
	case InventoryKindGamePass:
		return "game pass"
	case InventoryKindPrivateServer:
		return "private server"
	default:
		return "unknown"
	}
}

// CollectibleState is whether a collectible is available for sale or on hold
type CollectibleState string

const (
	CollectibleAvailable CollectibleState = "AVAILABLE"
	CollectibleHold      CollectibleState = "HOLD"
)

// CollectibleDetails describes a limited item instance
type CollectibleDetails struct {
	ItemID       string           `json:"itemId"`
	InstanceID   string           `json:"instanceId"`
	SerialNumber int64            `json:"serialNumber"`
	State        CollectibleState `json:"instanceState"`
}

// InventoryItem is one asset, badge, game pass or private server owned by a
// user. The asset fields are only set for assets.
type InventoryItem struct {
	Kind InventoryItemKind
	ID   int64

	AssetType   InventoryAssetType
	InstanceID  int64
	Collectible *CollectibleDetails
}

func (i InventoryItem) String() string {
	return fmt.Sprintf("InventoryItem(%s %d)", i.Kind, i.ID)
}

type rawInventoryItem struct {
	AssetDetails *struct {
		AssetID                flexInt             `json:"assetId"`
		InventoryItemAssetType InventoryAssetType  `json:"inventoryItemAssetType"`
		InstanceID             flexInt             `json:"instanceId"`
		CollectibleDetails     *CollectibleDetails `json:"collectibleDetails"`
	} `json:"assetDetails"`
	BadgeDetails *struct {
		BadgeID flexInt `json:"badgeId"`
	} `json:"badgeDetails"`
	GamePassDetails *struct {
		GamePassID flexInt `json:"gamePassId"`
	} `json:"gamePassDetails"`
	PrivateServerDetails *struct {
		PrivateServerID flexInt `json:"privateServerId"`
	} `json:"privateServerDetails"`
}

func decodeInventoryItem(raw json.RawMessage) (InventoryItem, error) {
	var data rawInventoryItem
	if err := json.Unmarshal(raw, &data); err != nil {
		return InventoryItem{}, fmt.Errorf("failed to decode inventory item: %w", err)
	}

	switch {
	case data.AssetDetails != nil:
		return InventoryItem{
			Kind:        InventoryKindAsset,
			ID:          int64(data.AssetDetails.AssetID),
			AssetType:   data.AssetDetails.InventoryItemAssetType,
			InstanceID:  int64(data.AssetDetails.InstanceID),
			Collectible: data.AssetDetails.CollectibleDetails,
		}, nil
	case data.BadgeDetails != nil:
		return InventoryItem{Kind: InventoryKindBadge, ID: int64(data.BadgeDetails.BadgeID)}, nil
	case data.GamePassDetails != nil:
		return InventoryItem{Kind: InventoryKindGamePass, ID: int64(data.GamePassDetails.GamePassID)}, nil
	case data.PrivateServerDetails != nil:
		return InventoryItem{Kind: InventoryKindPrivateServer, ID: int64(data.PrivateServerDetails.PrivateServerID)}, nil
	default:
		return InventoryItem{}, fmt.Errorf("unrecognised inventory item %s", raw)
	}
}

// InventoryFilter narrows ListInventory. A zero filter returns every item.
type InventoryFilter struct {
	// OnlyCollectibles limits assets to limited items and implies AllAssets
	// when no other asset filter is set.
	OnlyCollectibles bool

	AllAssets  bool
	AssetTypes []InventoryAssetType
	AssetIDs   []int64

	AllBadges bool
	BadgeIDs  []int64

	AllGamePasses bool
	GamePassIDs   []int64

	AllPrivateServers bool
	PrivateServerIDs  []int64
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// String encodes the filter as semicolon separated key=value pairs
func (f InventoryFilter) String() string {
	var pairs []string
	add := func(key, value string) {
		pairs = append(pairs, key+"="+value)
	}

	allAssets := f.AllAssets
	if f.OnlyCollectibles {
		add("onlyCollectibles", "true")
		if len(f.AssetTypes) == 0 && len(f.AssetIDs) == 0 {
			allAssets = true
		}
	}
	switch {
	case allAssets:
		add("inventoryItemAssetTypes", "*")
	case len(f.AssetTypes) > 0:
		types := make([]string, len(f.AssetTypes))
		for i, t := range f.AssetTypes {
			types[i] = string(t)
		}
		add("inventoryItemAssetTypes", strings.Join(types, ","))
	case len(f.AssetIDs) > 0:
		add("assetIds", joinIDs(f.AssetIDs))
	}

	if f.AllBadges {
		add("badges", "true")
	} else if len(f.BadgeIDs) > 0 {
		add("badgeIds", joinIDs(f.BadgeIDs))
	}
	if f.AllGamePasses {
		add("gamePasses", "true")
	} else if len(f.GamePassIDs) > 0 {
		add("gamePassIds", joinIDs(f.GamePassIDs))
	}
	if f.AllPrivateServers {
		add("privateServers", "true")
	} else if len(f.PrivateServerIDs) > 0 {
		add("privateServerIds", joinIDs(f.PrivateServerIDs))
	}

	return strings.Join(pairs, ";")
}

// ListInventory iterates the items in the user's inventory matching filter
func (u *User) ListInventory(ctx context.Context, filter InventoryFilter, limit int) iter.Seq2[InventoryItem, error] {
	query := Params{"maxPageSize": pageSize(limit, defaultPageSize)}
	if f := filter.String(); f != "" {
		query["filter"] = f
	}

	return paginate(ctx, u.client, pageRequest{
		req: Request{
			Path:  fmt.Sprintf("/users/%d/inventory-items", u.ID),
			Query: query,
		},
		cursorKey: "pageToken",
		dataKey:   "inventoryItems",
		limit:     limit,
	}, decodeInventoryItem)
}
