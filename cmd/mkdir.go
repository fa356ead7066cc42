// File: cmd/mkdir.go
package cmd

import (
	"path"

	"github.com/spf13/cobra"
)

var mkdirPath string

var mkdirCmd = &cobra.Command{
	Use:   "mkdir [container-path]",
	Short: "Create a directory inside a container",
	Long: `Create a directory inside an encrypted container. Missing parent
directories are created as well.

Examples:
  go-veracrypt mkdir vault.vc -p secret --path /docs/2026`,

	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runMkdir(args[0]); err != nil {
			cobra.CheckErr(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(mkdirCmd)

	mkdirCmd.Flags().StringVar(&mkdirPath, "path", "", "directory path inside the container (required)")
	mkdirCmd.MarkFlagRequired("path")
}

func runMkdir(containerPath string) error {
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

	if err := engine.EnsureDirectory(v, path.Clean("/"+mkdirPath)); err != nil {
		return err
	}
	ctx.Printf("Created %s\n", path.Clean("/"+mkdirPath))
	return nil
}
