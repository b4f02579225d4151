package opencloud

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
)

// ProductRestriction explains why a Creator Store product can't be purchased
type ProductRestriction string

const (
	RestrictionUnspecified                 ProductRestriction = "RESTRICTION_UNSPECIFIED"
	RestrictionSoldItemRestricted          ProductRestriction = "SOLD_ITEM_RESTRICTED"
	RestrictionSellerTemporarilyRestricted ProductRestriction = "SELLER_TEMPORARILY_RESTRICTED"
	RestrictionSellerPermanentlyRestricted ProductRestriction = "SELLER_PERMANENTLY_RESTRICTED"
	RestrictionSellerNoLongerActive        ProductRestriction = "SELLER_NO_LONGER_ACTIVE"
)

// Money is an amount in a currency such as USD
type Money struct {
	Currency string
	Quantity float64
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", strconv.FormatFloat(m.Quantity, 'f', -1, 64), m.Currency)
}

// ScientificNotation splits the quantity into an integer significand and a
// base 10 exponent, so that 1.99 becomes (199, -2).
func (m Money) ScientificNotation() (significand int64, exponent int) {
	formatted := strconv.FormatFloat(m.Quantity, 'g', 15, 64)
	formatted = strconv.FormatFloat(mustParseFloat(formatted), 'f', -1, 64)

	decimals := 0
	if i := strings.IndexByte(formatted, '.'); i >= 0 {
		decimals = len(formatted) - i - 1
	}
	return int64(math.Round(m.Quantity * math.Pow10(decimals))), -decimals
}

func mustParseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// Compare returns -1, 0 or 1 as m is less than, equal to or greater than
// other. Amounts in different currencies can't be compared.
func (m Money) Compare(other Money) (int, error) {
	if m.Currency != other.Currency {
		return 0, fmt.Errorf("cannot compare %s with %s", m.Currency, other.Currency)
	}
	switch {
	case m.Quantity < other.Quantity:
		return -1, nil
	case m.Quantity > other.Quantity:
		return 1, nil
	default:
		return 0, nil
	}
}

// Equal reports whether both amounts share a currency and quantity
func (m Money) Equal(other Money) bool {
	cmp, err := m.Compare(other)
	return err == nil && cmp == 0
}

type rawMoney struct {
	CurrencyCode string `json:"currencyCode"`
	Quantity     struct {
		Significand flexInt `json:"significand"`
		Exponent    flexInt `json:"exponent"`
	} `json:"quantity"`
}

func (r *rawMoney) money() Money {
	if r == nil {
		return Money{}
	}
	return Money{
		Currency: r.CurrencyCode,
		Quantity: float64(r.Quantity.Significand) * math.Pow10(int(r.Quantity.Exponent)),
	}
}

func (m Money) raw() map[string]any {
	significand, exponent := m.ScientificNotation()
	return map[string]any{
		"currencyCode": m.Currency,
		"quantity": map[string]any{
			"significand": significand,
			"exponent":    exponent,
		},
	}
}

// CreatorStoreProduct is an asset's listing on the Creator Store
type CreatorStoreProduct struct {
	AssetType     AssetType
	AssetID       int64
	Seller        *Creator
	Purchasable   bool
	Published     bool
	Restrictions  []ProductRestriction
	BasePrice     Money
	PurchasePrice Money

	client *Client
}

func (p *CreatorStoreProduct) String() string {
	return fmt.Sprintf("CreatorStoreProduct(%s, %d)", p.AssetType, p.AssetID)
}

// FetchAsset fetches the listed asset
func (p *CreatorStoreProduct) FetchAsset(ctx context.Context) (*Asset, error) {
	return p.client.FetchAsset(ctx, p.AssetID)
}

type rawCreatorStoreProduct struct {
	ModelAssetID      resourceID           `json:"modelAssetId"`
	PluginAssetID     resourceID           `json:"pluginAssetId"`
	AudioAssetID      resourceID           `json:"audioAssetId"`
	DecalAssetID      resourceID           `json:"decalAssetId"`
	MeshPartAssetID   resourceID           `json:"meshPartAssetId"`
	VideoAssetID      resourceID           `json:"videoAssetId"`
	FontFamilyAssetID resourceID           `json:"fontFamilyAssetId"`
	UserSeller        resourceID           `json:"userSeller"`
	GroupSeller       resourceID           `json:"groupSeller"`
	Purchasable       bool                 `json:"purchasable"`
	Published         bool                 `json:"published"`
	Restrictions      []ProductRestriction `json:"restrictions"`
	BasePrice         *rawMoney            `json:"basePrice"`
	PurchasePrice     *rawMoney            `json:"purchasePrice"`
}

func (c *Client) decodeCreatorStoreProduct(raw []byte, assetType AssetType) (*CreatorStoreProduct, error) {
	var data rawCreatorStoreProduct
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode creator store product: %w", err)
	}

	product := &CreatorStoreProduct{
		AssetType:     assetType,
		Purchasable:   data.Purchasable,
		Published:     data.Published,
		Restrictions:  data.Restrictions,
		BasePrice:     data.BasePrice.money(),
		PurchasePrice: data.PurchasePrice.money(),
		client:        c,
	}
	for _, id := range []resourceID{
		data.ModelAssetID, data.PluginAssetID, data.AudioAssetID, data.DecalAssetID,
		data.MeshPartAssetID, data.VideoAssetID, data.FontFamilyAssetID,
	} {
		if id != 0 {
			product.AssetID = int64(id)
			break
		}
	}
	if data.UserSeller != 0 {
		product.Seller = &Creator{ID: int64(data.UserSeller), Type: CreatorTypeUser, client: c}
	} else if data.GroupSeller != 0 {
		product.Seller = &Creator{ID: int64(data.GroupSeller), Type: CreatorTypeGroup, client: c}
	}
	return product, nil
}

// FetchCreatorStoreProduct fetches the Creator Store listing of an asset
func (c *Client) FetchCreatorStoreProduct(ctx context.Context, assetType AssetType, productID int64) (*CreatorStoreProduct, error) {
	resp, err := c.Do(ctx, &Request{
		Method:         http.MethodGet,
		Path:           fmt.Sprintf("/creator-store-products/CreatorMarketplaceAsset-%s-%d", assetType, productID),
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}
	return c.decodeCreatorStoreProduct(resp.Body, assetType)
}

// CreatorStoreProductUpdate changes a listing. Nil fields are left unchanged.
type CreatorStoreProductUpdate struct {
	Published *bool
	BasePrice *Money
}

// UpdateCreatorStoreProduct publishes, unpublishes or reprices a listing
func (c *Client) UpdateCreatorStoreProduct(ctx context.Context, assetType AssetType, productID int64, update CreatorStoreProductUpdate) (*CreatorStoreProduct, error) {
	payload := map[string]any{}
	var mask []string
	if update.Published != nil {
		payload["published"] = *update.Published
		mask = append(mask, "published")
	}
	if update.BasePrice != nil {
		payload["basePrice"] = update.BasePrice.raw()
		mask = append(mask, "basePrice")
	}

	resp, err := c.Do(ctx, &Request{
		Method:         http.MethodPatch,
		Path:           fmt.Sprintf("/creator-store-products/CreatorMarketplaceAsset-%s-%d", assetType, productID),
		Query:          Params{"updateMask": strings.Join(mask, ",")},
		JSON:           payload,
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}
	return c.decodeCreatorStoreProduct(resp.Body, assetType)
}
