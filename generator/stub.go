package generator

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"jsonrpc-gen/registration"

	"github.com/dave/jennifer/jen"
)

// clientInterface emits the interface whose methods mirror the declared
// signatures with an asynchronous result.
func (g *fileGen) clientInterface(methods []registration.MethodDescriptor) error {
	var decls []jen.Code
	for i := range methods {
		m := &methods[i]
		params, err := g.params(m)
		if err != nil {
			return err
		}
		result, err := g.futureOf(m)
		if err != nil {
			return err
		}
		decls = append(decls,
			jen.Comment(methodDoc(m)),
			jen.Id(m.LocalName).Params(params...).Add(result),
		)
	}

	name := g.iface.Name
	g.f.Commentf("%s is the client side of the %s JSON-RPC interface.", name, name)
	g.f.Type().Id(name).Interface(decls...)
	g.f.Line()
	return nil
}

// clientImpl emits the struct implementing the interface for any
// transport, its constructor, and one call site per method.
func (g *fileGen) clientImpl(methods []registration.MethodDescriptor) error {
	impl := implName(g.iface.Name)

	g.f.Type().Id(impl).Struct(
		jen.Id(transportField).Qual(rpcclientPath, "Transport"),
	)
	g.f.Line()

	g.f.Commentf("New%sClient returns a %s that sends every call through t.", g.iface.Name, g.iface.Name)
	g.f.Func().Id("New"+g.iface.Name+"Client").
		Params(jen.Id("t").Qual(rpcclientPath, "Transport")).
		Id(g.iface.Name).
		Block(
			jen.Return(jen.Op("&").Id(impl).Values(jen.Dict{
				jen.Id(transportField): jen.Id("t"),
			})),
		)

	for i := range methods {
		m := &methods[i]
		params, err := g.params(m)
		if err != nil {
			return err
		}
		result, err := g.futureOf(m)
		if err != nil {
			return err
		}

		g.f.Line()
		g.f.Func().
			Params(jen.Id("c").Op("*").Id(impl)).
			Id(m.LocalName).Params(params...).Add(result).
			Block(jen.Return(g.callSite(m)))
	}
	g.f.Line()
	return nil
}

// callSite builds the body of a client method: pack the arguments, send
// them under the wire name and chain into the method's decoder.
func (g *fileGen) callSite(m *registration.MethodDescriptor) jen.Code {
	invoke := "Invoke"
	args := []jen.Code{
		jen.Id("c").Dot(transportField),
		jen.Op("&").Id(g.iface.IDsVar()),
		jen.Lit(m.WireName),
		jen.Id(g.iface.DecoderName(m)),
	}
	if m.HasMetadata() {
		invoke = "InvokeWithMetadata"
		args = append(args, jen.Id("meta"))
	}
	for _, p := range m.Params {
		args = append(args, jen.Id(p.Name))
	}
	return jen.Qual(rpcclientPath, invoke).Call(args...)
}

// params lists the method parameters, the metadata argument first.
func (g *fileGen) params(m *registration.MethodDescriptor) ([]jen.Code, error) {
	var params []jen.Code
	if m.HasMetadata() {
		typ, err := g.typeOf(m.MetadataType)
		if err != nil {
			return nil, err
		}
		params = append(params, jen.Id("meta").Add(typ))
	}
	for _, p := range m.Params {
		typ, err := g.typeOf(p.Type)
		if err != nil {
			return nil, err
		}
		params = append(params, jen.Id(p.Name).Add(typ))
	}
	return params, nil
}

func (g *fileGen) futureOf(m *registration.MethodDescriptor) (jen.Code, error) {
	result, err := g.typeOf(m.ResultType)
	if err != nil {
		return nil, err
	}
	return jen.Op("*").Qual(rpcclientPath, "Future").Types(result), nil
}

func methodDoc(m *registration.MethodDescriptor) string {
	doc := fmt.Sprintf("%s calls %q.", m.LocalName, m.WireName)
	if m.HasMetadata() {
		doc += " meta is handed to the transport and never sent as a parameter."
	}
	return doc
}

// implName lowercases the first rune: "Calculator" -> "calculatorClient".
func implName(iface string) string {
	r, size := utf8.DecodeRuneInString(iface)
	return string(unicode.ToLower(r)) + iface[size:] + "Client"
}
