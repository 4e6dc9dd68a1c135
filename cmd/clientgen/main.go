package main

/*
* clientgen: generate typed JSON-RPC 2.0 clients from description files
 */

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

const version = "0.3.0"

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "clientgen"
	app.Usage = "generate typed JSON-RPC 2.0 clients from interface descriptions"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "YAML config file (CLIENTGEN_* environment variables override it)",
		},
		cli.StringFlag{
			Name:  "env-file",
			Value: ".env",
			Usage: "load environment variables from this file if it exists",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "debug, info, warn or error (default from config)",
		},
	}
	app.Before = setup
	app.After = teardown
	app.Commands = []cli.Command{
		cli.Command{
			Name:   "generate",
			Usage:  "Write the Go client for a description file",
			Action: generateCommand,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "input, i",
					Usage: "description file (default generator.input)",
				},
				cli.StringFlag{
					Name:  "output, o",
					Usage: "generated Go file, - for stdout (default generator.output)",
				},
				cli.StringFlag{
					Name:  "package, p",
					Usage: "override the package clause of the generated file",
				},
			},
		},
		cli.Command{
			Name:   "validate",
			Usage:  "Check a description file without generating anything",
			Action: validateCommand,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "input, i",
					Usage: "description file (default generator.input)",
				},
			},
		},
		cli.Command{
			Name:      "call",
			Usage:     "Send one request over the configured transport and print the response",
			ArgsUsage: "<wire-method>",
			Action:    callCommand,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "params",
					Value: "[]",
					Usage: "positional parameters as a JSON array",
				},
				cli.DurationFlag{
					Name:  "wait",
					Usage: "give up after this long (default transport.timeout, else 10s)",
				},
			},
		},
	}
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "clientgen:", err)
		os.Exit(1)
	}
}
