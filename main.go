// The main package for the stenosync executable.
package main

import (
	"github.com/openparl/stenosync/cmd"
)

func main() {
	cmd.Execute()
}
