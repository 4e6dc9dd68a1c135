// Package registration holds the method descriptors that drive client
// generation and local dispatch.
//
// An Interface is produced once per declared remote interface (normally by
// Load from a description file), validated, and then treated as immutable:
// the stub generator, the decoder generator and the dispatcher all read the
// same descriptors.
package registration

import (
	"unicode"
	"unicode/utf8"
)

// Kind distinguishes calls that expect a response from notifications.
type Kind int

const (
	Standard Kind = iota
	// Notification methods are served by the dispatcher but never get a
	// generated client method.
	Notification
)

func (k Kind) String() string {
	if k == Notification {
		return "notification"
	}
	return "standard"
}

// Param is one positional parameter. Type is a Go type expression such as
// "uint64", "*string", "map[string]any" or "dispatch.Session".
type Param struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// MethodDescriptor describes one remote method.
type MethodDescriptor struct {
	LocalName string   // Go method name on the generated interface
	WireName  string   // method string sent in the request envelope
	Aliases   []string // extra wire names the dispatcher answers to
	Params    []Param  // positional parameters, metadata excluded

	// MetadataType is the type of the session metadata argument, empty when
	// the method takes none. Metadata is consumed locally, never serialized.
	MetadataType string

	ResultType        string
	HasResultOverride bool // ResultType came from the method, not the interface default
	Kind              Kind
}

// HasMetadata reports whether the method takes a metadata argument.
func (m *MethodDescriptor) HasMetadata() bool {
	return m.MetadataType != ""
}

// Names returns the wire name followed by every alias.
func (m *MethodDescriptor) Names() []string {
	names := make([]string, 0, 1+len(m.Aliases))
	names = append(names, m.WireName)
	return append(names, m.Aliases...)
}

// Interface is a declared remote interface.
type Interface struct {
	Name          string            // Go interface name, e.g. "Calculator"
	Package       string            // package clause of the generated file
	Imports       map[string]string // qualifier used in type expressions -> import path
	DefaultResult string            // result type of methods without an override
	MetadataType  string            // type of the metadata argument for metadata methods
	Methods       []MethodDescriptor
}

// Lookup finds a method by wire name or alias.
func (i *Interface) Lookup(name string) (*MethodDescriptor, bool) {
	for idx := range i.Methods {
		m := &i.Methods[idx]
		for _, n := range m.Names() {
			if n == name {
				return m, true
			}
		}
	}
	return nil, false
}

// ClientMethods returns the methods that get a generated client method.
func (i *Interface) ClientMethods() []MethodDescriptor {
	methods := make([]MethodDescriptor, 0, len(i.Methods))
	for _, m := range i.Methods {
		if m.Kind == Standard {
			methods = append(methods, m)
		}
	}
	return methods
}

// IDsVar names the id generator declared by the generated client file.
// Every generated identifier at package level carries the interface name so
// that several interfaces can be generated into one package.
func (i *Interface) IDsVar() string {
	r, size := utf8.DecodeRuneInString(i.Name)
	return string(unicode.ToLower(r)) + i.Name[size:] + "RequestIDs"
}

// DecoderName names the generated response decoder of m.
func (i *Interface) DecoderName(m *MethodDescriptor) string {
	return "Decode" + i.Name + m.LocalName + "Response"
}
