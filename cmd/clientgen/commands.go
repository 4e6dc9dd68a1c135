package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"jsonrpc-gen/client"
	"jsonrpc-gen/config"
	"jsonrpc-gen/generator"
	"jsonrpc-gen/logger"
	"jsonrpc-gen/registration"
	"jsonrpc-gen/rpcclient"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

const configKey = "config"

// setup loads the env file, the config and the logger before any command.
func setup(c *cli.Context) error {
	if envFile := c.GlobalString("env-file"); envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return errors.Wrapf(err, "load %s", envFile)
			}
		}
	}

	cfg, err := config.Load(c.GlobalString("config"))
	if err != nil {
		return err
	}
	if level := c.GlobalString("log-level"); level != "" {
		cfg.Log.Level = level
	}

	l, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	logger.SetLogger(l)

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]interface{}{}
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

func teardown(c *cli.Context) error {
	_ = logger.L().Sync()
	return nil
}

func loadedConfig(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[configKey].(*config.Config); ok {
		return cfg
	}
	return &config.Config{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func loadDescription(c *cli.Context) (*registration.Interface, error) {
	input := firstNonEmpty(c.String("input"), loadedConfig(c).Generator.Input)
	if input == "" {
		return nil, errors.New("no description file: pass --input or set generator.input")
	}
	return registration.Load(input)
}

func generateCommand(c *cli.Context) error {
	cfg := loadedConfig(c)
	iface, err := loadDescription(c)
	if err != nil {
		return err
	}
	if pkg := firstNonEmpty(c.String("package"), cfg.Generator.Package); pkg != "" {
		iface.Package = pkg
	}

	output := firstNonEmpty(c.String("output"), cfg.Generator.Output)
	switch output {
	case "":
		return errors.New("no output file: pass --output or set generator.output")
	case "-":
		return generator.Render(iface, c.App.Writer)
	}
	return generator.WriteFile(iface, output)
}

func validateCommand(c *cli.Context) error {
	iface, err := loadDescription(c)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s: %d methods, %d client methods\n",
		iface.Name, len(iface.Methods), len(iface.ClientMethods()))
	return nil
}

func callCommand(c *cli.Context) error {
	method := c.Args().First()
	if method == "" {
		return errors.New("usage: clientgen call [--params JSON] <wire-method>")
	}

	var params []json.RawMessage
	if err := json.Unmarshal([]byte(c.String("params")), &params); err != nil {
		return errors.Wrap(err, "--params must be a JSON array")
	}
	args := make([]any, len(params))
	for i, p := range params {
		args[i] = p
	}

	cfg := loadedConfig(c).Transport
	wait := c.Duration("wait")
	if wait == 0 {
		wait = cfg.Timeout
	}
	if wait == 0 {
		wait = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	transport, closer, err := client.NewTransport(ctx, cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	var ids rpcclient.IDGenerator
	request := rpcclient.EncodeRequest(method, &ids, args...)
	logger.L().Debug("sending", zap.String("request", request))

	response, err := transport.Call(request).Await(ctx)
	if err != nil {
		return errors.Wrap(err, method)
	}
	fmt.Fprintln(c.App.Writer, response)
	return nil
}
