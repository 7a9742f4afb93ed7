package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amirkhaki/lockstep/pkg/schedfile"
)

// fmtCmd represents the fmt command
var fmtCmd = &cobra.Command{
	Use:   "fmt",
	Short: "canonicalize given schedule files",
	Long:  ``,
	RunE: func(cmd *cobra.Command, args []string) error {
		var jerr error
		for _, input := range fmtInputs {
			doc, err := schedfile.Load(input)
			if err != nil {
				jerr = errors.Join(jerr, fmt.Errorf("%s: %w", input, err))
				continue
			}
			if write {
				jerr = errors.Join(jerr, schedfile.Save(input, doc))
				continue
			}
			jerr = errors.Join(jerr, schedfile.Write(cmd.OutOrStdout(), doc))
		}
		return jerr
	},
}

var fmtInputs []string
var write bool

func init() {
	rootCmd.AddCommand(fmtCmd)

	fmtCmd.Flags().StringArrayVarP(&fmtInputs, "input", "i",
		[]string{}, "path of input files")
	fmtCmd.Flags().BoolVarP(&write, "write", "w", false,
		"rewrite files in place instead of printing")
}
