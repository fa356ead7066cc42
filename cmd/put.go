// File: cmd/put.go
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	putSource string
	putDest   string
)

var putCmd = &cobra.Command{
	Use:   "put [container-path]",
	Short: "Store host files or directories in a container",
	Long: `Copy a host file or directory tree into an encrypted container.
Missing parent directories inside the container are created.

Examples:
  # Store a single file
  go-veracrypt put vault.vc -p secret --source ./report.pdf --dest /report.pdf

  # Store a directory tree
  go-veracrypt put vault.vc -p secret --source ./docs --dest /docs`,

	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runPut(args[0]); err != nil {
			cobra.CheckErr(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(putCmd)

	putCmd.Flags().StringVarP(&putSource, "source", "s", "", "path on the host (required)")
	putCmd.Flags().StringVarP(&putDest, "dest", "d", "", "destination path inside the container (required)")
	putCmd.MarkFlagRequired("source")
	putCmd.MarkFlagRequired("dest")
}

func runPut(containerPath string) error {
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

	ctx.ProgressCallback = func(message string, percent int) {
		ctx.Logf("%3d%% %s", percent, message)
	}

	if err := engine.Put(v, putSource, putDest); err != nil {
		return err
	}
	ctx.Printf("Stored %s at %s\n", putSource, putDest)
	return nil
}
