// File: cmd/create.go
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-veracrypt/pkg/app"
)

var (
	createSize  string
	createLabel string
)

var createCmd = &cobra.Command{
	Use:   "create [container-path]",
	Short: "Create a new encrypted container",
	Long: `Create a VeraCrypt-compatible container file with a fresh FAT32
filesystem inside.

Examples:
  # 100 MiB container
  go-veracrypt create vault.vc --size 100M --password secret

  # Container protected by a password and two keyfiles
  go-veracrypt create vault.vc --size 1G -p secret -k key1.bin -k key2.bin`,

	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runCreate(args[0]); err != nil {
			cobra.CheckErr(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringVarP(&createSize, "size", "s", "", "container size, e.g. 10M or 1G (required)")
	createCmd.Flags().StringVarP(&createLabel, "label", "l", "", "FAT32 volume label (max 11 characters)")
	createCmd.MarkFlagRequired("size")
}

func runCreate(containerPath string) error {
	ctx, engine, err := newEngine()
	if err != nil {
		return err
	}
	creds, err := credentials()
	if err != nil {
		return err
	}
	size, err := app.ParseSize(createSize)
	if err != nil {
		return err
	}

	v, err := engine.CreateContainer(containerPath, size, createLabel, creds)
	if err != nil {
		return err
	}
	defer v.Close()

	ctx.Printf("Created %s (%s, %s usable)\n", containerPath, app.FormatSize(uint64(size)), app.FormatSize(v.TotalSpace()))
	return nil
}
