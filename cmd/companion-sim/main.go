package main

import (
	"github.com/robotalks/guard.go/pkg/cli/sim"
)

//go-build: CGO_ENABLED=0

func init() {
	sim.SetupFlags()
}

func main() {
	sim.Main()
}
