// File: cmd/remove.go
package cmd

import (
	"github.com/spf13/cobra"
)

var removePath string

var removeCmd = &cobra.Command{
	Use:   "remove [container-path]",
	Short: "Remove a file or directory tree",
	Long: `Remove a file from an encrypted container, or a directory together
with everything beneath it.

Examples:
  go-veracrypt remove vault.vc -p secret --path /docs/old-report.pdf
  go-veracrypt remove vault.vc -p secret --path /docs`,

	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runRemove(args[0]); err != nil {
			cobra.CheckErr(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(removeCmd)

	removeCmd.Flags().StringVar(&removePath, "path", "", "path inside the container (required)")
	removeCmd.MarkFlagRequired("path")
}

func runRemove(containerPath string) error {
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

	if err := v.Delete(removePath); err != nil {
		return err
	}
	ctx.Printf("Removed %s\n", removePath)
	return nil
}
