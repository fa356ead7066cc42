// File: cmd/list.go
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-veracrypt/internal/types"
	"github.com/deploymenttheory/go-veracrypt/pkg/app"
)

var (
	listPath      string
	listRecursive bool
)

var listCmd = &cobra.Command{
	Use:   "list [container-path]",
	Short: "List files inside a container",
	Long: `List the contents of a directory inside an encrypted container.

Examples:
  # List the root directory
  go-veracrypt list vault.vc -p secret

  # List a subdirectory recursively as JSON
  go-veracrypt list vault.vc -p secret --path /docs --recursive -o json`,

	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runList(args[0]); err != nil {
			cobra.CheckErr(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVar(&listPath, "path", "/", "directory to list")
	listCmd.Flags().BoolVarP(&listRecursive, "recursive", "r", false, "descend into subdirectories")
}

func runList(containerPath string) error {
	_, engine, err := newEngine()
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

	entries, err := collectEntries(v, listPath, listRecursive)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	if outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODE\tSIZE\tMODIFIED\tPATH")
	for _, e := range entries {
		mode := "-"
		size := app.FormatSize(uint64(e.Size))
		if e.IsDirectory {
			mode = "d"
			size = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", mode, size, e.LastModified.Format("2006-01-02 15:04"), e.Path)
	}
	return w.Flush()
}

func collectEntries(v lister, path string, recursive bool) ([]types.FileEntry, error) {
	entries, err := v.List(path)
	if err != nil {
		return nil, err
	}
	if !recursive {
		return entries, nil
	}

	all := entries
	for _, e := range entries {
		if !e.IsDirectory {
			continue
		}
		sub, err := collectEntries(v, e.Path, true)
		if err != nil {
			return nil, err
		}
		all = append(all, sub...)
	}
	return all, nil
}

type lister interface {
	List(path string) ([]types.FileEntry, error)
}
