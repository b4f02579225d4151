package cmd

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/spf13/cobra"

	"rblxcloud/internal"
	"rblxcloud/opencloud"
	"rblxcloud/utils"
)

var (
	assetTypeName    string
	assetName        string
	assetDescription string
	assetPrice       int
	assetUser        int64
	assetGroup       int64
	assetWait        bool
	assetLimit       int
	productPublish   bool
	productUnpublish bool
	productPrice     float64
	productCurrency  string
)

var assetCmd = &cobra.Command{
	Use:   "asset",
	Short: "Upload and manage assets and Creator Store products",
}

// parseAssetType accepts any casing of an asset type name, such as decal,
// mesh-part or FONT_FAMILY
func parseAssetType(name string) (opencloud.AssetType, error) {
	candidate := strings.TrimSpace(name)
	if strings.ToUpper(candidate) == candidate {
		candidate = strings.ToLower(candidate)
	}
	t := opencloud.ParseAssetType(strcase.ToCamel(candidate))
	if t == opencloud.AssetTypeUnknown {
		return t, internal.NewValidationErrorWithValue("type", "unknown asset type", name).
			WithSuggestion("Use one of decal, audio, model, plugin, font-family, mesh-part, video, animation or image")
	}
	return t, nil
}

// assetCreator picks the user or group given by --user or --group
func assetCreator(client *opencloud.Client) (*opencloud.Creator, error) {
	switch {
	case assetUser != 0 && assetGroup != 0:
		return nil, internal.ExclusiveFlagsError("user", "group")
	case assetGroup != 0:
		return &client.Group(assetGroup).Creator, nil
	case assetUser != 0:
		return &client.User(assetUser).Creator, nil
	default:
		return nil, internal.NewValidationError("creator", "a creator is required").
			WithSuggestion("Pass --user <id> or --group <id>")
	}
}

// waitForAsset prints the asset once the operation finishes, or the
// operation path when --wait is not set
func waitForAsset(cmd *cobra.Command, op *opencloud.Operation[*opencloud.Asset]) error {
	if !op.IsDone() && !assetWait {
		status("Operation started: %s", op.Path())
		return printResult(cmd, map[string]string{"operation": op.Path()})
	}
	status("⏳ Waiting for Roblox to process the asset...")
	asset, err := op.Wait(cmd.Context(), opencloud.DefaultWaitOptions())
	if err != nil {
		return err
	}
	return printResult(cmd, asset)
}

func openAssetFile(path string) (*utils.ProgressTracker, func() error, *opencloud.AssetUpload, error) {
	if opencloud.MIMETypeForFile(path) == "" {
		return nil, nil, nil, internal.NewValidationErrorWithValue("file", "unsupported file extension", filepath.Ext(path)).
			WithSuggestion("Supported extensions are mp3, ogg, png, jpeg, jpg, bmp, tga and fbx")
	}
	file, size, err := fileOps.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	progress := utils.NewProgressTracker(size, "Uploading ", config.QuietMode)
	upload := &opencloud.AssetUpload{File: progress.ProxyReader(file), FileName: filepath.Base(path)}
	return progress, file.Close, upload, nil
}

var assetInfoCmd = &cobra.Command{
	Use:   "info <asset>",
	Short: "Show asset details",
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
		asset, err := client.FetchAsset(cmd.Context(), assetID)
		if err != nil {
			return err
		}
		return printResult(cmd, asset)
	},
}

var assetUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a new asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		assetType, err := parseAssetType(assetTypeName)
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		creator, err := assetCreator(client)
		if err != nil {
			return err
		}

		progress, closeFile, upload, err := openAssetFile(args[0])
		if err != nil {
			return err
		}
		defer closeFile()

		upload.Type = assetType
		upload.Name = assetName
		upload.Description = assetDescription
		upload.ExpectedPrice = assetPrice
		if upload.Name == "" {
			upload.Name = strings.TrimSuffix(upload.FileName, filepath.Ext(upload.FileName))
		}

		internal.LogInfo("Uploading %s as %s for %s", upload.FileName, assetType, creator)
		op, err := creator.UploadAsset(cmd.Context(), *upload)
		progress.Finish()
		if err != nil {
			return err
		}
		return waitForAsset(cmd, op)
	},
}

var assetUpdateCmd = &cobra.Command{
	Use:   "update <asset> [file]",
	Short: "Change an asset's name or description, or upload a new revision",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		assetID, err := parseID("asset", args[0])
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		creator, err := assetCreator(client)
		if err != nil {
			return err
		}

		update := opencloud.AssetUpdate{
			Name:          assetName,
			Description:   assetDescription,
			ExpectedPrice: assetPrice,
		}
		if len(args) == 2 {
			progress, closeFile, upload, err := openAssetFile(args[1])
			if err != nil {
				return err
			}
			defer closeFile()
			defer progress.Finish()
			update.File = upload.File
			update.FileName = upload.FileName
		}

		op, err := creator.UpdateAsset(cmd.Context(), assetID, update)
		if err != nil {
			return err
		}
		return waitForAsset(cmd, op)
	},
}

var assetVersionsCmd = &cobra.Command{
	Use:   "versions <asset>",
	Short: "List the versions of an asset, newest first",
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
		creator, err := assetCreator(client)
		if err != nil {
			return err
		}
		versions, err := collect("Versions ", creator.ListAssetVersions(cmd.Context(), assetID, assetLimit))
		if err != nil {
			return err
		}
		return printResult(cmd, versions)
	},
}

var assetRollbackCmd = &cobra.Command{
	Use:   "rollback <asset> <version>",
	Short: "Make an earlier version the current version of an asset",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		assetID, err := parseID("asset", args[0])
		if err != nil {
			return err
		}
		versionNumber, err := strconv.Atoi(args[1])
		if err != nil || versionNumber <= 0 {
			return internal.NewValidationErrorWithValue("version", "must be a positive integer", args[1])
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		creator, err := assetCreator(client)
		if err != nil {
			return err
		}

		version, err := creator.RollbackAsset(cmd.Context(), assetID, versionNumber)
		if err != nil {
			return err
		}
		status("⏪ %s is now current", version)
		return printResult(cmd, version)
	},
}

var assetProductCmd = &cobra.Command{
	Use:   "product <asset>",
	Short: "Show or change an asset's Creator Store listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		assetType, err := parseAssetType(assetTypeName)
		if err != nil {
			return err
		}
		assetID, err := parseID("asset", args[0])
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}

		var update opencloud.CreatorStoreProductUpdate
		switch {
		case productPublish && productUnpublish:
			return internal.ExclusiveFlagsError("publish", "unpublish")
		case productPublish, productUnpublish:
			published := productPublish
			update.Published = &published
		}
		if cmd.Flags().Changed("price") {
			update.BasePrice = &opencloud.Money{Currency: productCurrency, Quantity: productPrice}
		}

		var product *opencloud.CreatorStoreProduct
		if update.Published == nil && update.BasePrice == nil {
			product, err = client.FetchCreatorStoreProduct(cmd.Context(), assetType, assetID)
		} else {
			product, err = client.UpdateCreatorStoreProduct(cmd.Context(), assetType, assetID, update)
		}
		if err != nil {
			return err
		}
		return printResult(cmd, product)
	},
}

func init() {
	for _, c := range []*cobra.Command{assetUploadCmd, assetUpdateCmd, assetVersionsCmd, assetRollbackCmd} {
		c.Flags().Int64Var(&assetUser, "user", 0, "Creator user id")
		c.Flags().Int64Var(&assetGroup, "group", 0, "Creator group id")
	}
	for _, c := range []*cobra.Command{assetUploadCmd, assetUpdateCmd} {
		c.Flags().StringVar(&assetName, "name", "", "Display name")
		c.Flags().StringVar(&assetDescription, "description", "", "Description")
		c.Flags().IntVar(&assetPrice, "expected-price", 0, "Robux you expect to pay for the upload")
		c.Flags().BoolVar(&assetWait, "wait", true, "Wait until Roblox has processed the asset")
	}
	assetUploadCmd.Flags().StringVarP(&assetTypeName, "type", "t", "", "Asset type such as decal, audio or mesh-part (required)")
	_ = assetUploadCmd.MarkFlagRequired("type")

	assetVersionsCmd.Flags().IntVar(&assetLimit, "limit", 0, "Maximum number of versions, 0 for all")

	productFlags := assetProductCmd.Flags()
	productFlags.StringVarP(&assetTypeName, "type", "t", "", "Asset type of the product (required)")
	productFlags.BoolVar(&productPublish, "publish", false, "List the product on the Creator Store")
	productFlags.BoolVar(&productUnpublish, "unpublish", false, "Remove the product from the Creator Store")
	productFlags.Float64Var(&productPrice, "price", 0, "New base price")
	productFlags.StringVar(&productCurrency, "currency", "USD", "Currency of --price")
	_ = assetProductCmd.MarkFlagRequired("type")

	assetCmd.AddCommand(assetInfoCmd, assetUploadCmd, assetUpdateCmd, assetVersionsCmd, assetRollbackCmd, assetProductCmd)
}
