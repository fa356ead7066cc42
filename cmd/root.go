// File: cmd/root.go
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-veracrypt/internal/types"
	"github.com/deploymenttheory/go-veracrypt/pkg/app"
)

var (
	// Global output flags only
	verbose      bool
	quiet        bool
	outputFormat string

	// Credentials shared by every command that touches a container
	password string
	pim      int
	keyfiles []string
)

var rootCmd = &cobra.Command{
	Use:   "go-veracrypt",
	Short: "Create and access VeraCrypt-compatible encrypted containers",
	Long: `go-veracrypt is a cross-platform command-line tool for creating and
accessing VeraCrypt-compatible encrypted file containers carrying a
FAT32 filesystem, without mounting or relying on a kernel driver.

Containers use AES-256 in XTS mode with PBKDF2-HMAC-SHA512 key
derivation and optional keyfiles, bit-compatible with VeraCrypt.

Commands:
  create      Create a new encrypted container
  list        List files inside a container
  extract     Extract files or directories to the host
  put         Store host files or directories in a container
  mkdir       Create a directory inside a container
  remove      Remove a file or directory tree
  info        Show decoded container details
  config      Show the effective engine configuration`,
	Version: "0.1.0-dev",
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Only global output control flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output except errors")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, json)")

	// Credential flags
	rootCmd.PersistentFlags().StringVarP(&password, "password", "p", "", "container password (or set VERACRYPT_PASSWORD)")
	rootCmd.PersistentFlags().IntVar(&pim, "pim", 0, "personal iterations multiplier (0 uses the default schedule)")
	rootCmd.PersistentFlags().StringArrayVarP(&keyfiles, "keyfile", "k", nil, "keyfile path, repeatable, mixed in listed order")
}

func newAppContext() *app.Context {
	ctx := app.NewContext()
	ctx.Verbose = verbose
	ctx.Quiet = quiet
	ctx.OutputFormat = outputFormat
	return ctx
}

func newEngine() (*app.Context, *app.Engine, error) {
	ctx := newAppContext()
	engine, err := app.NewEngine(ctx)
	if err != nil {
		return nil, nil, err
	}
	return ctx, engine, nil
}

// credentials resolves the password from the flag or the environment and
// bundles it with the PIM and keyfiles.
func credentials() (app.Credentials, error) {
	pwd := password
	if pwd == "" {
		pwd = os.Getenv("VERACRYPT_PASSWORD")
	}
	if pwd == "" && len(keyfiles) == 0 {
		return app.Credentials{}, fmt.Errorf("%w: no password given, use --password or VERACRYPT_PASSWORD", types.ErrInvalidArgument)
	}
	return app.Credentials{
		Password: []byte(pwd),
		PIM:      pim,
		Keyfiles: keyfiles,
	}, nil
}
