package generator

import (
	"bytes"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"

	"jsonrpc-gen/registration"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, iface *registration.Interface) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Render(iface, &buf))
	return buf.String()
}

func parse(t *testing.T, src string) *ast.File {
	t.Helper()
	file, err := parser.ParseFile(token.NewFileSet(), "client.go", src, parser.ParseComments)
	require.NoError(t, err, src)
	return file
}

func funcDecls(file *ast.File) map[string]*ast.FuncDecl {
	decls := make(map[string]*ast.FuncDecl)
	for _, d := range file.Decls {
		if fn, ok := d.(*ast.FuncDecl); ok {
			name := fn.Name.Name
			if fn.Recv != nil {
				name = "(c)." + name
			}
			decls[name] = fn
		}
	}
	return decls
}

func TestGenerateRpc(t *testing.T) {
	iface, err := registration.Load("testdata/rpc.yaml")
	require.NoError(t, err)

	src := render(t, iface)
	file := parse(t, src)

	assert.Equal(t, "rpc", file.Name.Name)
	assert.Contains(t, src, "Code generated by clientgen. DO NOT EDIT.")
	assert.Contains(t, src, `"jsonrpc-gen/rpcclient"`)
	assert.Contains(t, src, `"jsonrpc-gen/dispatch"`)
	assert.Contains(t, src, "var rpcRequestIDs rpcclient.IDGenerator")

	decls := funcDecls(file)
	for _, name := range []string{
		"NewRpcClient",
		"(c).One", "(c).Add", "(c).Mul", "(c).Call", "(c).CallMeta",
		"DecodeRpcOneResponse", "DecodeRpcAddResponse", "DecodeRpcMulResponse", "DecodeRpcCallResponse", "DecodeRpcCallMetaResponse",
	} {
		assert.Contains(t, decls, name)
	}
	assert.NotContains(t, decls, "(c).Ping", "notifications get no client method")
	assert.NotContains(t, decls, "DecodeRpcPingResponse")

	assert.Contains(t, src, "Add(a uint64, b uint64) *rpcclient.Future[uint64]")
	assert.Contains(t, src, "Mul(arg0 uint64, arg1 *uint64) *rpcclient.Future[uint64]")
	assert.Contains(t, src, "Call(x uint64) *rpcclient.Future[string]")
	assert.Contains(t, src, "CallMeta(meta dispatch.Session, m map[string]any) *rpcclient.Future[string]")
	assert.Contains(t, src, `rpcclient.Invoke(c.transport, &rpcRequestIDs, "add", DecodeRpcAddResponse, a, b)`)
	assert.Contains(t, src, `rpcclient.Invoke(c.transport, &rpcRequestIDs, "getOne", DecodeRpcOneResponse)`)
	assert.Contains(t, src, `rpcclient.InvokeWithMetadata(c.transport, &rpcRequestIDs, "callAsyncMeta", DecodeRpcCallMetaResponse, meta, m)`)
	assert.Contains(t, src, "func DecodeRpcCallResponse(response string) (string, error)")
	assert.Contains(t, src, "rpcclient.DecodeResponse[uint64](response)")
}

func TestGenerateInterfaceMethods(t *testing.T) {
	iface, err := registration.Load("testdata/rpc.yaml")
	require.NoError(t, err)
	file := parse(t, render(t, iface))

	var methods []string
	ast.Inspect(file, func(n ast.Node) bool {
		spec, ok := n.(*ast.TypeSpec)
		if !ok || spec.Name.Name != "Rpc" {
			return true
		}
		it, ok := spec.Type.(*ast.InterfaceType)
		require.True(t, ok)
		for _, field := range it.Methods.List {
			methods = append(methods, field.Names[0].Name)
		}
		return false
	})
	assert.Equal(t, []string{"One", "Add", "Mul", "Call", "CallMeta"}, methods)
}

func TestGenerateTypes(t *testing.T) {
	iface := &registration.Interface{
		Name:          "Store",
		Package:       "store",
		Imports:       map[string]string{"json": "encoding/json"},
		DefaultResult: "json.RawMessage",
		Methods: []registration.MethodDescriptor{{
			LocalName: "Put",
			WireName:  "store.put",
			Params: []registration.Param{
				{Name: "keys", Type: "[]string"},
				{Name: "blob", Type: "[16]byte"},
				{Name: "attrs", Type: "map[string]*json.RawMessage"},
				{Name: "any1", Type: "interface{}"},
			},
			ResultType: "json.RawMessage",
		}},
	}

	src := render(t, iface)
	parse(t, src)
	assert.Contains(t, src, `"encoding/json"`)
	assert.Contains(t, src, "Put(keys []string, blob [16]byte, attrs map[string]*json.RawMessage, any1 interface{}) *rpcclient.Future[json.RawMessage]")
	assert.Contains(t, src, "NewStoreClient(t rpcclient.Transport) Store")
	assert.Contains(t, src, "type storeClient struct")
}

func TestGenerateRejectsInvalid(t *testing.T) {
	iface := &registration.Interface{
		Name:    "Bad",
		Package: "bad",
		Methods: []registration.MethodDescriptor{
			{LocalName: "A", WireName: "x", ResultType: "int"},
			{LocalName: "B", WireName: "x", ResultType: "int"},
		},
	}
	_, err := Generate(iface)
	assert.Error(t, err)
}

func TestWriteFile(t *testing.T) {
	iface, err := registration.Load("testdata/rpc.yaml")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "rpc_client.go")
	require.NoError(t, WriteFile(iface, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	parse(t, string(data))
}

// stubImporter hands out empty packages: the check below is about the
// declarations of the generated files, not about the runtime they call.
type stubImporter struct{}

func (stubImporter) Import(importPath string) (*types.Package, error) {
	pkg := types.NewPackage(importPath, path.Base(importPath))
	pkg.MarkComplete()
	return pkg, nil
}

func TestGenerateTwoInterfacesIntoOnePackage(t *testing.T) {
	single := func(name string) *registration.Interface {
		return &registration.Interface{
			Name:          name,
			Package:       "shared",
			DefaultResult: "string",
			Methods:       []registration.MethodDescriptor{{LocalName: "Ping", WireName: "ping", ResultType: "string"}},
		}
	}

	fset := token.NewFileSet()
	var files []*ast.File
	for _, name := range []string{"Alpha", "Beta"} {
		src := render(t, single(name))
		file, err := parser.ParseFile(fset, strings.ToLower(name)+"_client.go", src, 0)
		require.NoError(t, err, src)
		files = append(files, file)
	}

	var errs []string
	conf := types.Config{
		Importer: stubImporter{},
		Error:    func(err error) { errs = append(errs, err.Error()) },
	}
	_, _ = conf.Check("shared", fset, files, nil)
	for _, msg := range errs {
		// members of the stubbed runtime are unknown to the checker
		if strings.Contains(msg, "rpcclient.") {
			continue
		}
		t.Errorf("type check: %s", msg)
	}

	decls := funcDecls(files[0])
	assert.Contains(t, decls, "DecodeAlphaPingResponse")
	assert.Contains(t, decls, "NewAlphaClient")
	decls = funcDecls(files[1])
	assert.Contains(t, decls, "DecodeBetaPingResponse")
	assert.Contains(t, decls, "NewBetaClient")
}
