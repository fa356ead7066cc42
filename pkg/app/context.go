// File: pkg/app/context.go
package app

import (
	"fmt"
	"os"
)

// Context holds the output preferences shared by every command.
type Context struct {
	OutputFormat string
	Verbose      bool
	Quiet        bool

	// ProgressCallback receives transfer progress when set.
	ProgressCallback func(message string, percent int)
}

// NewContext creates a context with default output settings.
func NewContext() *Context {
	return &Context{OutputFormat: "table"}
}

// Progress reports progress if a callback is set.
func (c *Context) Progress(message string, percent int) {
	if c.ProgressCallback != nil {
		c.ProgressCallback(message, percent)
	}
}

// Logf prints a diagnostic line in verbose mode.
func (c *Context) Logf(format string, args ...interface{}) {
	if c.Verbose && !c.Quiet {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// Printf prints a result line unless quiet.
func (c *Context) Printf(format string, args ...interface{}) {
	if !c.Quiet {
		fmt.Printf(format, args...)
	}
}

// Errorf prints an error line unless quiet.
func (c *Context) Errorf(format string, args ...interface{}) {
	if !c.Quiet {
		fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	}
}
