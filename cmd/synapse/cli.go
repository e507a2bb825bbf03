package main

import "github.com/alecthomas/kong"

type CLI struct {
	Config string `short:"c" default:"config.json" help:"Config file (.json or .yaml)"`

	Serve   ServeCmd   `cmd:"" default:"1" help:"Run the chat gateways, scheduler and dashboard"`
	Run     RunCmd     `cmd:"" help:"Execute a plan file and stream its events as JSON lines"`
	Plans   PlansCmd   `cmd:"" help:"List recent plan snapshots"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

type ServeCmd struct {
	NoDashboard bool `help:"Disable the live status line"`
}

type RunCmd struct {
	Plan string `arg:"" type:"existingfile" help:"Plan file (.yaml or .json)"`
	Chat string `help:"Chat id recorded on the plan"`
}

type PlansCmd struct {
	Limit int  `short:"n" default:"20" help:"Number of snapshots to show"`
	JSON  bool `help:"Print full plans as JSON"`
}

type VersionCmd struct{}

func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
