// File: cmd/extract.go
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	extractSource string
	extractDest   string
)

var extractCmd = &cobra.Command{
	Use:   "extract [container-path]",
	Short: "Extract files or directories to the host",
	Long: `Extract a file or a directory tree from an encrypted container to
the host filesystem. Directories are extracted recursively.

Examples:
  # Extract a single file
  go-veracrypt extract vault.vc -p secret --source /report.pdf --dest ./report.pdf

  # Extract a directory tree
  go-veracrypt extract vault.vc -p secret --source /docs --dest ./docs-backup`,

	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runExtract(args[0]); err != nil {
			cobra.CheckErr(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVarP(&extractSource, "source", "s", "", "path inside the container (required)")
	extractCmd.Flags().StringVarP(&extractDest, "dest", "d", "", "destination path on the host (required)")
	extractCmd.MarkFlagRequired("source")
	extractCmd.MarkFlagRequired("dest")
}

func runExtract(containerPath string) error {
	ctx, engine, err := newEngine()
	if err != nil {
		return err
	}
	creds, err := credentials()
	if err != nil {
		return err
	}

	v, err := engine.OpenContainer(containerPath, creds)
	if err != nil {
		return err
	}
	defer v.Close()

	if err := engine.Extract(v, extractSource, extractDest); err != nil {
		return err
	}
	ctx.Printf("Extracted %s to %s\n", extractSource, extractDest)
	return nil
}
