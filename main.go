// The main package for the uploader executable.
package main

import (
	"github.com/adaletdata/uploader/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
