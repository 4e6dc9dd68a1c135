// Package generator turns a registration.Interface into Go source for a
// typed JSON-RPC client.
//
// For an interface Calculator the generated file holds:
//
//   - the Calculator interface, one method per standard descriptor, each
//     returning *rpcclient.Future[Result];
//   - calculatorClient, which implements Calculator for any
//     rpcclient.Transport, and its constructor NewCalculatorClient;
//   - DecodeCalculatorXxxResponse, one response decoder per method;
//   - calculatorRequestIDs, the rpcclient.IDGenerator shared by every
//     Calculator client in the process.
//
// Package-level names carry the interface name, so any number of
// interfaces can be generated into the same package.
//
// Notification methods are skipped: a client method for them would have no
// response to decode.
package generator

import (
	"bytes"
	"go/ast"
	"io"
	"os"

	"jsonrpc-gen/logger"
	"jsonrpc-gen/registration"

	"github.com/dave/jennifer/jen"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	rpcclientPath = "jsonrpc-gen/rpcclient"

	// transportField holds the non-owning transport reference.
	transportField = "transport"
)

// Tool is written into the "Code generated" header.
var Tool = "clientgen"

// Generate builds the client file for iface. The interface is validated
// first; generation never proceeds on descriptors that could produce an
// unserializable call.
func Generate(iface *registration.Interface) (*jen.File, error) {
	if err := iface.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid interface")
	}

	g := &fileGen{iface: iface, f: jen.NewFile(iface.Package)}
	g.f.HeaderComment("Code generated by " + Tool + ". DO NOT EDIT.")
	g.f.ImportName(rpcclientPath, "rpcclient")
	for alias, path := range iface.Imports {
		g.f.ImportAlias(path, alias)
	}

	methods := iface.ClientMethods()
	for _, m := range iface.Methods {
		if m.Kind == registration.Notification {
			logger.L().Info("skipping notification method",
				zap.String("interface", iface.Name), zap.String("method", m.LocalName))
		}
	}

	ids := iface.IDsVar()
	g.f.Commentf("%s numbers every request sent by %s clients.", ids, iface.Name)
	g.f.Var().Id(ids).Qual(rpcclientPath, "IDGenerator")
	g.f.Line()

	if err := g.clientInterface(methods); err != nil {
		return nil, err
	}
	if err := g.clientImpl(methods); err != nil {
		return nil, err
	}
	if err := g.decoders(methods); err != nil {
		return nil, err
	}
	return g.f, nil
}

// Render writes the formatted client source for iface to w.
func Render(iface *registration.Interface, w io.Writer) error {
	f, err := Generate(iface)
	if err != nil {
		return err
	}
	if err := f.Render(w); err != nil {
		return errors.Wrap(err, "render client")
	}
	return nil
}

// WriteFile renders iface into path. Nothing is written if rendering fails.
func WriteFile(iface *registration.Interface, path string) error {
	var buf bytes.Buffer
	if err := Render(iface, &buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil { //nolint:gosec // generated source is world readable
		return errors.Wrapf(err, "write %s", path)
	}
	logger.L().Info("generated client",
		zap.String("interface", iface.Name), zap.String("path", path))
	return nil
}

type fileGen struct {
	iface *registration.Interface
	f     *jen.File
}

// typeOf converts a descriptor type expression into jen code, qualifying
// selectors through the interface imports.
func (g *fileGen) typeOf(expr string) (jen.Code, error) {
	node, err := registration.ParseType(expr, g.iface.Imports)
	if err != nil {
		return nil, err
	}
	return g.typeCode(node), nil
}

func (g *fileGen) typeCode(node ast.Expr) *jen.Statement {
	switch n := node.(type) {
	case *ast.Ident:
		return jen.Id(n.Name)
	case *ast.StarExpr:
		return jen.Op("*").Add(g.typeCode(n.X))
	case *ast.ParenExpr:
		return g.typeCode(n.X)
	case *ast.ArrayType:
		if n.Len == nil {
			return jen.Index().Add(g.typeCode(n.Elt))
		}
		return jen.Index(jen.Id(n.Len.(*ast.BasicLit).Value)).Add(g.typeCode(n.Elt))
	case *ast.MapType:
		return jen.Map(g.typeCode(n.Key)).Add(g.typeCode(n.Value))
	case *ast.SelectorExpr:
		pkg := n.X.(*ast.Ident).Name
		return jen.Qual(g.iface.Imports[pkg], n.Sel.Name)
	case *ast.InterfaceType:
		return jen.Interface()
	case *ast.StructType:
		return jen.Struct()
	}
	// ParseType only lets the cases above through.
	panic(errors.Errorf("generator: unexpected type node %T", node))
}
