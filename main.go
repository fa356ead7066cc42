// File: main.go
package main

import "github.com/deploymenttheory/go-veracrypt/cmd"

func main() {
	cmd.Execute()
}
