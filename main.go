// The main package for the blogshot executable.
package main

import (
	"github.com/JakeFAU/blogshot/cmd"
)

func main() {
	cmd.Execute()
}
