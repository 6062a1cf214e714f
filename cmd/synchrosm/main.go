package main

import (
	"github.com/openstreetmap-polska/synchrosm/cmd"
)

func main() {
	cmd.Main(cmd.PrintCmds)
}
