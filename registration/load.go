package registration

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type descriptionFile struct {
	Package       string            `yaml:"package"`
	Interface     string            `yaml:"interface"`
	DefaultResult string            `yaml:"default_result"`
	MetadataType  string            `yaml:"metadata_type"`
	Imports       map[string]string `yaml:"imports"`
	Methods       []methodEntry     `yaml:"methods"`
}

type methodEntry struct {
	Name         string   `yaml:"name"`
	WireName     string   `yaml:"wire_name"`
	Aliases      []string `yaml:"aliases"`
	Params       []Param  `yaml:"params"`
	Metadata     bool     `yaml:"metadata"`
	Returns      string   `yaml:"returns"`
	Notification bool     `yaml:"notification"`
}

// Load reads, builds and validates a description file.
func Load(path string) (*Interface, error) {
	//nolint:gosec // description path comes from the command line
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read description")
	}
	iface, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return iface, nil
}

// Parse builds and validates an interface from YAML. Unknown keys are
// rejected so that a typo never silently drops an alias or a flag.
func Parse(data []byte) (*Interface, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file descriptionFile
	if err := dec.Decode(&file); err != nil {
		return nil, errors.Wrap(err, "decode description")
	}

	iface := &Interface{
		Name:          file.Interface,
		Package:       file.Package,
		Imports:       file.Imports,
		DefaultResult: file.DefaultResult,
		MetadataType:  file.MetadataType,
	}
	for _, entry := range file.Methods {
		m, err := entry.descriptor(iface)
		if err != nil {
			return nil, err
		}
		iface.Methods = append(iface.Methods, m)
	}

	if err := iface.Validate(); err != nil {
		return nil, err
	}
	return iface, nil
}

func (e methodEntry) descriptor(iface *Interface) (MethodDescriptor, error) {
	m := MethodDescriptor{
		LocalName: e.Name,
		WireName:  e.WireName,
		Aliases:   e.Aliases,
		Kind:      Standard,
	}
	if m.WireName == "" {
		m.WireName = e.Name
	}
	if e.Notification {
		m.Kind = Notification
	}

	if e.Metadata {
		if iface.MetadataType == "" {
			return m, errors.Errorf("method %s: metadata requested but interface declares no metadata_type", e.Name)
		}
		m.MetadataType = iface.MetadataType
	}

	if e.Returns != "" {
		m.ResultType = e.Returns
		m.HasResultOverride = true
	} else {
		m.ResultType = iface.DefaultResult
	}

	for i, p := range e.Params {
		if p.Name == "" || p.Name == "_" {
			p.Name = fmt.Sprintf("arg%d", i)
		}
		m.Params = append(m.Params, p)
	}
	return m, nil
}
