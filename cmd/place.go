package cmd

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rblxcloud/internal"
	"rblxcloud/opencloud"
	"rblxcloud/utils"
)

var (
	placePublish     bool
	placeName        string
	placeDescription string
	placeServerSize  int
)

var placeCmd = &cobra.Command{
	Use:   "place",
	Short: "Manage places and their engine instances",
}

func openPlace(args []string) (*opencloud.Place, error) {
	experience, err := openExperience(args[0])
	if err != nil {
		return nil, err
	}
	placeID, err := parseID("place", args[1])
	if err != nil {
		return nil, err
	}
	return experience.Place(placeID), nil
}

var placeInfoCmd = &cobra.Command{
	Use:   "info <universe> <place>",
	Short: "Show place details",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		place, err := openPlace(args)
		if err != nil {
			return err
		}
		if _, err := place.FetchInfo(cmd.Context()); err != nil {
			return err
		}
		return printResult(cmd, place)
	},
}

var placeUpdateCmd = &cobra.Command{
	Use:   "update <universe> <place>",
	Short: "Change a place's name, description or server size",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		place, err := openPlace(args)
		if err != nil {
			return err
		}
		if placeName == "" && placeDescription == "" && placeServerSize == 0 {
			return internal.NewValidationError("update", "nothing to update").
				WithSuggestion("Pass --name, --description or --server-size")
		}
		if _, err := place.Update(cmd.Context(), placeName, placeDescription, placeServerSize); err != nil {
			return err
		}
		return printResult(cmd, place)
	},
}

var placeUploadCmd = &cobra.Command{
	Use:   "upload <universe> <place> <file>",
	Short: "Upload an .rbxl or .rbxlx file as a new place version",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		place, err := openPlace(args)
		if err != nil {
			return err
		}

		ext := strings.ToLower(filepath.Ext(args[2]))
		if ext != ".rbxl" && ext != ".rbxlx" {
			return internal.NewValidationErrorWithValue("file", "must be an .rbxl or .rbxlx file", args[2])
		}

		file, size, err := fileOps.Open(args[2])
		if err != nil {
			return err
		}
		defer file.Close()

		internal.LogInfo("Uploading %s (%d bytes) to %s", filepath.Base(args[2]), size, place)
		progress := utils.NewProgressTracker(size, "Uploading ", config.QuietMode)
		version, err := place.UploadPlaceFile(cmd.Context(), progress.ProxyReader(file), placePublish)
		summary := progress.Finish()
		if err != nil {
			return err
		}

		verb := "Saved"
		if placePublish {
			verb = "Published"
		}
		status("✅ %s version %d in %s", verb, version, summary.TotalTime.Round(time.Millisecond))
		return printResult(cmd, map[string]any{"version": version, "published": placePublish})
	},
}

var placeChildrenCmd = &cobra.Command{
	Use:   "children <universe> <place> [instance]",
	Short: "List the children of an engine instance, the DataModel by default",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		place, err := openPlace(args)
		if err != nil {
			return err
		}
		instanceID := "root"
		if len(args) == 3 {
			instanceID = args[2]
		}

		op, err := place.Instance(instanceID).ListChildren(cmd.Context())
		if err != nil {
			return err
		}
		children, err := op.Wait(cmd.Context(), opencloud.DefaultWaitOptions())
		if err != nil {
			return err
		}
		return printResult(cmd, children)
	},
}

var placeScriptCmd = &cobra.Command{
	Use:   "set-script <universe> <place> <instance> <source-file>",
	Short: "Replace the source of a Script instance",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		place, err := openPlace(args)
		if err != nil {
			return err
		}
		source, err := fileOps.ReadFile(args[3])
		if err != nil {
			return err
		}

		op, err := place.Instance(args[2]).UpdateScriptSource(cmd.Context(), string(source))
		if err != nil {
			return err
		}
		if _, err := op.Wait(cmd.Context(), opencloud.DefaultWaitOptions()); err != nil {
			return err
		}
		status("✅ Updated script %s", args[2])
		return nil
	},
}

func init() {
	placeUploadCmd.Flags().BoolVar(&placePublish, "publish", false, "Publish the version instead of only saving it")

	updateFlags := placeUpdateCmd.Flags()
	updateFlags.StringVar(&placeName, "name", "", "New display name")
	updateFlags.StringVar(&placeDescription, "description", "", "New description")
	updateFlags.IntVar(&placeServerSize, "server-size", 0, "New maximum players per server")

	placeCmd.AddCommand(placeInfoCmd, placeUpdateCmd, placeUploadCmd, placeChildrenCmd, placeScriptCmd)
}
