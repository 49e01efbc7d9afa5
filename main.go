// The main package for the ehound executable.
package main

import (
	"github.com/JakeFAU/ehound/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
