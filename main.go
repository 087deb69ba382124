package main

import (
	"github.com/halcyonlabs/crossdeploy/cmd"
)

func main() {
	cmd.Execute()
}
