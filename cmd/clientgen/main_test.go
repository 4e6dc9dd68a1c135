package main

import (
	"bytes"
	"context"
	"encoding/json"
	"go/parser"
	"go/token"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"jsonrpc-gen/dispatch"
	"jsonrpc-gen/registration"
	"jsonrpc-gen/server"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const description = `
package: calculator
interface: Calculator
default_result: uint64
methods:
  - name: Add
    wire_name: add
    params: [{name: a, type: uint64}, {name: b, type: uint64}]
  - name: Reset
    wire_name: reset
    notification: true
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run(append([]string{"clientgen", "--env-file", ""}, args...))
	return out.String(), err
}

func writeDescription(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calculator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(description), 0600))
	return path
}

func TestGenerateCommand(t *testing.T) {
	input := writeDescription(t)
	output := filepath.Join(t.TempDir(), "calculator_client.go")

	_, err := run(t, "generate", "-i", input, "-o", output, "-p", "calc")
	require.NoError(t, err)

	file, err := parser.ParseFile(token.NewFileSet(), output, nil, parser.PackageClauseOnly)
	require.NoError(t, err)
	assert.Equal(t, "calc", file.Name.Name)
}

func TestGenerateToStdout(t *testing.T) {
	out, err := run(t, "generate", "-i", writeDescription(t), "-o", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "Code generated by clientgen. DO NOT EDIT.")
	assert.Contains(t, out, "func NewCalculatorClient(")
	assert.NotContains(t, out, "Reset(")
}

func TestGenerateFromConfig(t *testing.T) {
	dir := t.TempDir()
	input := writeDescription(t)
	output := filepath.Join(dir, "out.go")
	cfgPath := filepath.Join(dir, "clientgen.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("generator:\n  input: "+input+"\n  output: "+output+"\n"), 0600))

	_, err := run(t, "--config", cfgPath, "generate")
	require.NoError(t, err)
	_, err = os.Stat(output)
	assert.NoError(t, err)
}

func TestGenerateRequiresInput(t *testing.T) {
	_, err := run(t, "generate", "-o", "-")
	assert.Error(t, err)
}

func TestValidateCommand(t *testing.T) {
	out, err := run(t, "validate", "-i", writeDescription(t))
	require.NoError(t, err)
	assert.Equal(t, "Calculator: 2 methods, 1 client methods\n", out)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("package: x\ninterface: lower\nmethods: []\n"), 0600))
	_, err = run(t, "validate", "-i", bad)
	assert.Error(t, err)
}

func TestCallCommand(t *testing.T) {
	d := dispatch.New()
	require.NoError(t, d.Register(registration.MethodDescriptor{LocalName: "Add", WireName: "add"},
		func(_ context.Context, _ any, params json.RawMessage) (any, error) {
			var args [2]uint64
			if err := json.Unmarshal(params, &args); err != nil {
				return nil, err
			}
			return args[0] + args[1], nil
		}))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	svr := server.NewServer(d)
	go svr.ServeListener(listener)
	defer svr.Shutdown(time.Second)

	t.Setenv("CLIENTGEN_TRANSPORT_KIND", "tcp")
	t.Setenv("CLIENTGEN_TRANSPORT_ADDRESS", listener.Addr().String())

	out, err := run(t, "call", "--params", "[2,3]", "add")
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","result":5,"id":0}`, out)

	_, err = run(t, "call", "--params", "{}", "add")
	assert.Error(t, err)
}
