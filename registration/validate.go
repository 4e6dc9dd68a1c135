package registration

import (
	"go/ast"
	"go/parser"
	"go/token"

	"github.com/pkg/errors"
)

// reserved names are taken by the generated code: the receiver, the
// metadata argument and the runtime package. The id generator and decoder
// names depend on the interface and are checked per method.
var reserved = map[string]bool{"c": true, "meta": true, "rpcclient": true}

// Validate checks the invariants both generators and the dispatcher rely
// on: identifiers are legal Go, wire names and aliases are unique within the
// interface, and every type expression is serializable.
func (i *Interface) Validate() error {
	if !token.IsIdentifier(i.Name) || !token.IsExported(i.Name) {
		return errors.Errorf("interface name %q is not an exported Go identifier", i.Name)
	}
	if !token.IsIdentifier(i.Package) {
		return errors.Errorf("package name %q is not a Go identifier", i.Package)
	}
	for alias, path := range i.Imports {
		if !token.IsIdentifier(alias) || path == "" {
			return errors.Errorf("import %q -> %q is invalid", alias, path)
		}
	}

	locals := make(map[string]bool)
	wires := make(map[string]string)
	for idx := range i.Methods {
		m := &i.Methods[idx]
		if err := i.validateMethod(m); err != nil {
			return errors.Wrapf(err, "method %s", m.LocalName)
		}

		if locals[m.LocalName] {
			return errors.Errorf("method %s declared twice", m.LocalName)
		}
		locals[m.LocalName] = true

		for _, name := range m.Names() {
			if name == "" {
				return errors.Errorf("method %s: empty wire name or alias", m.LocalName)
			}
			if owner, ok := wires[name]; ok {
				return errors.Errorf("wire name %q of %s already used by %s", name, m.LocalName, owner)
			}
			wires[name] = m.LocalName
		}
	}
	return nil
}

func (i *Interface) validateMethod(m *MethodDescriptor) error {
	if !token.IsIdentifier(m.LocalName) || !token.IsExported(m.LocalName) {
		return errors.Errorf("local name %q is not an exported Go identifier", m.LocalName)
	}

	params := make(map[string]bool)
	for _, p := range m.Params {
		if !token.IsIdentifier(p.Name) || reserved[p.Name] || p.Name == i.IDsVar() || p.Name == i.DecoderName(m) {
			return errors.Errorf("parameter name %q is not usable", p.Name)
		}
		if params[p.Name] {
			return errors.Errorf("parameter %q declared twice", p.Name)
		}
		params[p.Name] = true
		if _, err := ParseType(p.Type, i.Imports); err != nil {
			return errors.Wrapf(err, "parameter %s", p.Name)
		}
	}

	if m.HasMetadata() {
		if _, err := ParseType(m.MetadataType, i.Imports); err != nil {
			return errors.Wrap(err, "metadata type")
		}
	}

	if m.Kind == Notification {
		return nil
	}
	if m.ResultType == "" {
		return errors.New("no result type and no interface default_result")
	}
	if _, err := ParseType(m.ResultType, i.Imports); err != nil {
		return errors.Wrap(err, "result type")
	}
	return nil
}

// ParseType parses a Go type expression and checks that it can travel as
// JSON: channels, functions and non-empty interfaces are refused, and every
// package qualifier must be declared in imports.
func ParseType(expr string, imports map[string]string) (ast.Expr, error) {
	if expr == "" {
		return nil, errors.New("empty type")
	}
	node, err := parser.ParseExpr(expr)
	if err != nil {
		return nil, errors.Wrapf(err, "type %q", expr)
	}
	if err := checkType(node, imports); err != nil {
		return nil, errors.Wrapf(err, "type %q", expr)
	}
	return node, nil
}

func checkType(node ast.Expr, imports map[string]string) error {
	switch n := node.(type) {
	case *ast.Ident:
		return nil
	case *ast.StarExpr:
		return checkType(n.X, imports)
	case *ast.ParenExpr:
		return checkType(n.X, imports)
	case *ast.ArrayType:
		if n.Len != nil {
			if lit, ok := n.Len.(*ast.BasicLit); !ok || lit.Kind != token.INT {
				return errors.New("array length must be an integer literal")
			}
		}
		return checkType(n.Elt, imports)
	case *ast.MapType:
		if err := checkType(n.Key, imports); err != nil {
			return err
		}
		return checkType(n.Value, imports)
	case *ast.SelectorExpr:
		pkg, ok := n.X.(*ast.Ident)
		if !ok {
			return errors.New("qualified type must be pkg.Name")
		}
		if _, ok := imports[pkg.Name]; !ok {
			return errors.Errorf("qualifier %q has no import", pkg.Name)
		}
		return nil
	case *ast.InterfaceType:
		if n.Methods != nil && len(n.Methods.List) > 0 {
			return errors.New("only the empty interface is serializable")
		}
		return nil
	case *ast.StructType:
		if n.Fields != nil && len(n.Fields.List) > 0 {
			return errors.New("anonymous struct types with fields are not supported")
		}
		return nil
	}
	return errors.Errorf("unsupported type expression %T", node)
}
