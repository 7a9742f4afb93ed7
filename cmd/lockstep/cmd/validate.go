package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amirkhaki/lockstep/pkg/schedfile"
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "validate given schedule files",
	Long:  ``,
	RunE: func(cmd *cobra.Command, args []string) error {
		var jerr error
		for _, input := range inputs {
			doc, err := schedfile.Load(input)
			if err != nil {
				jerr = errors.Join(jerr, fmt.Errorf("%s: %w", input, err))
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d steps)\n", input, len(doc.Steps))
		}
		return jerr
	},
}

var inputs []string

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringArrayVarP(&inputs, "input", "i",
		[]string{}, "path of input files")
}
