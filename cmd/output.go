package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"rblxcloud/utils"
)

// render writes v in the given format. Values go through JSON first so yaml
// output uses the same field names and raw JSON values stay structured.
func render(w io.Writer, format string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}

	switch strings.ToLower(format) {
	case "yaml":
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		return enc.Close()
	default:
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		buf.WriteByte('\n')
		_, err := buf.WriteTo(w)
		return err
	}
}

func printResult(cmd *cobra.Command, v any) error {
	return render(cmd.OutOrStdout(), config.OutputFormat, v)
}

// collect drains a listing, counting items on stderr as they arrive
func collect[T any](prefix string, seq iter.Seq2[T, error]) ([]T, error) {
	counter := utils.NewCounter(prefix, config.QuietMode)
	defer counter.Finish()

	items := []T{}
	for item, err := range seq {
		if err != nil {
			return items, err
		}
		items = append(items, item)
		counter.Increment()
	}
	return items, nil
}

// parseValue reads a command line value as JSON, falling back to a plain string
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
