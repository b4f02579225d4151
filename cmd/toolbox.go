package cmd

import (
	"strings"
	"time"

	"github.com/iancoleman/strcase"
	"github.com/spf13/cobra"

	"rblxcloud/internal"
	"rblxcloud/opencloud"
)

var (
	tbType            string
	tbQuery           string
	tbSubtypes        []string
	tbExcludeSubtypes []string
	tbUser            int64
	tbGroup           int64
	tbVerified        bool
	tbDescending      bool
	tbAscending       bool
	tbSort            string
	tbMinPrice        float64
	tbMaxPrice        float64
	tbMinDuration     time.Duration
	tbMaxDuration     time.Duration
	tbArtist          string
	tbAlbum           string
	tbCategory        string
	tbFacets          []string
	tbExcludeOwned    bool
	tbLimit           int
)

var toolboxCmd = &cobra.Command{
	Use:   "toolbox",
	Short: "Search the Creator Store and manage saved assets",
}

// toolboxOutput flattens an asset's creator and price for printing
type toolboxOutput struct {
	*opencloud.ToolboxAsset
	Creator      string `json:"creator,omitempty"`
	Price        string `json:"price,omitempty"`
	TotalResults int    `json:"total_results,omitempty"`
}

func newToolboxOutput(asset *opencloud.ToolboxAsset, page *opencloud.ToolboxSearchContext) toolboxOutput {
	out := toolboxOutput{ToolboxAsset: asset}
	if asset.Creator != nil {
		out.Creator = asset.Creator.String()
	}
	if asset.Product != nil && asset.Product.PurchasePrice.Currency != "" {
		out.Price = asset.Product.PurchasePrice.String()
	}
	if page != nil {
		out.TotalResults = page.TotalResults
	}
	return out
}

func toolboxOutputs(results []*opencloud.ToolboxResult) []toolboxOutput {
	out := make([]toolboxOutput, 0, len(results))
	for _, r := range results {
		out = append(out, newToolboxOutput(r.Asset, r.Context))
	}
	return out
}

// sortOrder reads --asc and --desc
func sortOrder() (opencloud.SortOrder, error) {
	switch {
	case tbAscending && tbDescending:
		return "", internal.ExclusiveFlagsError("asc", "desc")
	case tbAscending:
		return opencloud.SortAscending, nil
	case tbDescending:
		return opencloud.SortDescending, nil
	}
	return "", nil
}

func toolboxSort(name string) opencloud.ToolboxSort {
	if name == "" {
		return ""
	}
	return opencloud.ToolboxSort(strcase.ToCamel(name))
}

func modelSubtypes(names []string) []opencloud.ModelSubtype {
	var subtypes []opencloud.ModelSubtype
	for _, name := range names {
		subtypes = append(subtypes, opencloud.ModelSubtype(strcase.ToCamel(name)))
	}
	return subtypes
}

// parseSavedAsset reads a saved asset written as type:id, such as audio:1818
func parseSavedAsset(value string) (opencloud.SavedAsset, error) {
	typeName, id, ok := strings.Cut(value, ":")
	if !ok {
		return opencloud.SavedAsset{}, internal.NewValidationErrorWithValue("asset", "must be written as type:id", value).
			WithSource(internal.SourceArgument).
			WithSuggestion("For example audio:114376757380093")
	}
	assetType, err := parseAssetType(typeName)
	if err != nil {
		return opencloud.SavedAsset{}, err
	}
	assetID, err := parseID("asset", id)
	if err != nil {
		return opencloud.SavedAsset{}, err
	}
	return opencloud.SavedAsset{ID: assetID, Type: assetType}, nil
}

var toolboxInfoCmd = &cobra.Command{
	Use:   "info <asset>",
	Short: "Show an asset's Creator Store listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		assetID, err := parseID("asset", args[0])
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		asset, err := client.FetchToolboxAsset(cmd.Context(), assetID)
		if err != nil {
			return err
		}
		return printResult(cmd, newToolboxOutput(asset, nil))
	},
}

var toolboxSearchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search the Creator Store",
	Example: `  rblxcloud toolbox search --type audio --query "menu theme" --max-price 0 --max-duration 60s
  rblxcloud toolbox search --type model --subtypes package --group 7 --sort top --desc`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		assetType, err := parseAssetType(tbType)
		if err != nil {
			return err
		}
		order, err := sortOrder()
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}

		search := opencloud.ToolboxSearch{
			Type:                  assetType,
			Query:                 tbQuery,
			ModelSubtypes:         modelSubtypes(tbSubtypes),
			ExcludedModelSubtypes: modelSubtypes(tbExcludeSubtypes),
			VerifiedCreatorsOnly:  tbVerified,
			Order:                 order,
			SortBy:                toolboxSort(tbSort),
			Limit:                 tbLimit,
			MinDuration:           tbMinDuration,
			MaxDuration:           tbMaxDuration,
			Artist:                tbArtist,
			Album:                 tbAlbum,
			CategoryPath:          tbCategory,
			Facets:                tbFacets,
		}
		switch {
		case tbUser != 0 && tbGroup != 0:
			return internal.ExclusiveFlagsError("user", "group")
		case tbGroup != 0:
			search.Creator = &client.Group(tbGroup).Creator
		case tbUser != 0:
			search.Creator = &client.User(tbUser).Creator
		}
		if cmd.Flags().Changed("min-price") {
			search.MinPrice = &opencloud.Money{Currency: "USD", Quantity: tbMinPrice}
		}
		if cmd.Flags().Changed("max-price") {
			search.MaxPrice = &opencloud.Money{Currency: "USD", Quantity: tbMaxPrice}
		}

		results, err := collect("Assets ", client.SearchToolbox(cmd.Context(), search))
		if err != nil {
			return err
		}
		return printResult(cmd, toolboxOutputs(results))
	},
}

var toolboxSavedCmd = &cobra.Command{
	Use:   "saved",
	Short: "List the assets saved by the API key's owner",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var assetType opencloud.AssetType
		if tbType != "" {
			var err error
			if assetType, err = parseAssetType(tbType); err != nil {
				return err
			}
		}
		order, err := sortOrder()
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}

		results, err := collect("Saved ", client.SearchSavedAssets(cmd.Context(), opencloud.SavedAssetSearch{
			Type:               assetType,
			Query:              tbQuery,
			Order:              order,
			SortBy:             toolboxSort(tbSort),
			ExcludeOwnedAssets: tbExcludeOwned,
			Limit:              tbLimit,
		}))
		if err != nil {
			return err
		}
		return printResult(cmd, toolboxOutputs(results))
	},
}

var toolboxSaveCmd = &cobra.Command{
	Use:   "save <type:asset>",
	Short: "Save an asset, such as audio:1818",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := parseSavedAsset(args[0])
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		if err := client.SaveAsset(cmd.Context(), target.ID, target.Type); err != nil {
			return err
		}
		status("⭐ Saved %s %d", target.Type, target.ID)
		return nil
	},
}

var toolboxUnsaveCmd = &cobra.Command{
	Use:   "unsave <type:asset>...",
	Short: "Remove assets from the saved list",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		targets := make([]opencloud.SavedAsset, 0, len(args))
		for _, arg := range args {
			target, err := parseSavedAsset(arg)
			if err != nil {
				return err
			}
			targets = append(targets, target)
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		removed, err := client.UnsaveAssets(cmd.Context(), targets...)
		if err != nil {
			return err
		}
		return printResult(cmd, map[string]int{"removed": removed})
	},
}

func init() {
	for _, c := range []*cobra.Command{toolboxSearchCmd, toolboxSavedCmd} {
		flags := c.Flags()
		flags.StringVarP(&tbType, "type", "t", "", "Asset type, such as audio or model")
		flags.StringVarP(&tbQuery, "query", "q", "", "Search keywords")
		flags.StringVar(&tbSort, "sort", "", "Sort by relevance, trending, top, asset-type, save-time or update-time")
		flags.BoolVar(&tbAscending, "asc", false, "Sort ascending")
		flags.BoolVar(&tbDescending, "desc", false, "Sort descending")
		flags.IntVar(&tbLimit, "limit", 25, "Maximum number of results, 0 for all")
	}
	_ = toolboxSearchCmd.MarkFlagRequired("type")

	search := toolboxSearchCmd.Flags()
	search.StringSliceVar(&tbSubtypes, "subtypes", nil, "Only models of these subtypes: ad, material-pack, package")
	search.StringSliceVar(&tbExcludeSubtypes, "exclude-subtypes", nil, "Leave out models of these subtypes")
	search.Int64Var(&tbUser, "user", 0, "Only assets by this user")
	search.Int64Var(&tbGroup, "group", 0, "Only assets by this group")
	search.BoolVar(&tbVerified, "verified", false, "Only verified creators")
	search.Float64Var(&tbMinPrice, "min-price", 0, "Minimum price in USD")
	search.Float64Var(&tbMaxPrice, "max-price", 0, "Maximum price in USD")
	search.DurationVar(&tbMinDuration, "min-duration", 0, "Minimum audio length")
	search.DurationVar(&tbMaxDuration, "max-duration", 0, "Maximum audio length")
	search.StringVar(&tbArtist, "artist", "", "Audio artist")
	search.StringVar(&tbAlbum, "album", "", "Audio album")
	search.StringVar(&tbCategory, "category", "", "Category path, such as 3d__props-and-decor")
	search.StringSliceVar(&tbFacets, "facets", nil, "Extra facet keywords")

	toolboxSavedCmd.Flags().BoolVar(&tbExcludeOwned, "exclude-owned", false, "Hide assets you own")

	toolboxCmd.AddCommand(toolboxInfoCmd, toolboxSearchCmd, toolboxSavedCmd, toolboxSaveCmd, toolboxUnsaveCmd)
}
