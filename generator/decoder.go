package generator

import (
	"jsonrpc-gen/registration"

	"github.com/dave/jennifer/jen"
)

// decoders emits one response decoder per method. Each is a pure function
// from the raw response text to the method's result type or an error; the
// shared rpcclient.DecodeResponse guarantees that every input yields exactly
// one outcome.
func (g *fileGen) decoders(methods []registration.MethodDescriptor) error {
	for i := range methods {
		m := &methods[i]
		result, err := g.typeOf(m.ResultType)
		if err != nil {
			return err
		}

		name := g.iface.DecoderName(m)
		g.f.Commentf("%s decodes the response to %q.", name, m.WireName)
		g.f.Func().Id(name).
			Params(jen.Id("response").String()).
			Params(result, jen.Error()).
			Block(
				jen.Return(jen.Qual(rpcclientPath, "DecodeResponse").Types(result).Call(jen.Id("response"))),
			)
		g.f.Line()
	}
	return nil
}
