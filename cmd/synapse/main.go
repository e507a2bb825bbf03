package main

import (
	"fmt"

	"github.com/alecthomas/kong"
)

var version = "dev"

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("synapse"),
		kong.Description("Plan execution engine with dynamic expansion."),
		kong.UsageOnError(),
		kongVars(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli))
}

func (v *VersionCmd) Run(cli *CLI) error {
	fmt.Printf("synapse version %s\n", version)
	return nil
}
