package main

import (
	"github.com/ssargent/rowbench/cmd/rowbench/cmd"
)

func main() {
	cmd.Execute()
}
