// File: cmd/classify.go
package cmd

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/resonance/internal/affect"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text>",
		Short: "Print the classifier output for a piece of text as JSON",
		Args:  cobra.MinimumNArgs(1),
		// Classification is pure and needs no configuration.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			cl := affect.NewClassifier().Classify(strings.Join(args, " "))
			return writeJSON(cmd, cl)
		},
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
