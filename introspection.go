package dbus

import (
	"cmp"
	"encoding/xml"
	"fmt"
	"slices"
	"strings"
)

// ObjectDescription describes a DBus object's exported interfaces and
// child objects.
//
// Interface and child descriptions are provided by the DBus peer
// hosting the object, and may not accurately reflect the actual
// exposed API or object structure.
type ObjectDescription struct {
	// Interfaces maps an interface name to a description of its API.
	Interfaces map[string]*InterfaceDescription
	// Children is the relative paths to child objects under this
	// object. The relative paths may contain multiple path
	// components.
	Children []string
}

func (o *ObjectDescription) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var raw struct {
		Interfaces []*InterfaceDescription `xml:"interface"`
		Children   []struct {
			Name string `xml:"name,attr"`
		} `xml:"node"`
	}
	if err := d.DecodeElement(&raw, &start); err != nil {
		return err
	}
	o.Interfaces = make(map[string]*InterfaceDescription, len(raw.Interfaces))
	for _, iface := range raw.Interfaces {
		o.Interfaces[iface.Name] = iface
	}
	o.Children = make([]string, 0, len(raw.Children))
	for _, v := range raw.Children {
		o.Children = append(o.Children, v.Name)
	}
	return nil
}

// annotation is the introspection XML's generic <annotation
// name="..." value="..."/> element, used by methods, signals, and
// properties to carry the handful of well-known DBus metadata flags
// (Deprecated, NoReply, EmitsChangedSignal).
type annotation struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// boolAnnotation reports whether anns contains name with value
// "true". Every well-known annotation except EmitsChangedSignal is a
// plain boolean, so this covers Deprecated and NoReply directly.
func boolAnnotation(anns []annotation, name string) bool {
	for _, a := range anns {
		if a.Name == name {
			return a.Value == "true"
		}
	}
	return false
}

// sortedByName returns items sorted by the string name returns for
// each, used to give the Stringer output below a deterministic order
// despite map/slice iteration from XML not guaranteeing one.
func sortedByName[T any](items []T, name func(T) string) []T {
	return slices.SortedFunc(slices.Values(items), func(a, b T) int {
		return cmp.Compare(name(a), name(b))
	})
}

// InterfaceDescription describes a DBus interface.
//
// Interface descriptions are provided by the DBus peer offering the
// interface, and may not accurately reflect the actual exposed API.
type InterfaceDescription struct {
	Name       string                 `xml:"name,attr"`
	Methods    []*MethodDescription   `xml:"method"`
	Signals    []*SignalDescription   `xml:"signal"`
	Properties []*PropertyDescription `xml:"property"`
}

func (d InterfaceDescription) String() string {
	var ret strings.Builder
	fmt.Fprintf(&ret, "interface %s {\n", d.Name)
	for _, m := range sortedByName(d.Methods, func(m *MethodDescription) string { return m.Name }) {
		fmt.Fprintf(&ret, "  %s\n", m)
	}
	for _, s := range sortedByName(d.Signals, func(s *SignalDescription) string { return s.Name }) {
		fmt.Fprintf(&ret, "  %s\n", s)
	}
	for _, p := range sortedByName(d.Properties, func(p *PropertyDescription) string { return p.Name }) {
		fmt.Fprintf(&ret, "  %s\n", p)
	}
	ret.WriteString("}")
	return ret.String()
}

// MethodDescription describes a DBus method.
//
// Method descriptions are provided by the DBus peer offering the
// method, and may not accurately reflect the actual exposed API.
type MethodDescription struct {
	Name string
	In   []ArgumentDescription
	Out  []ArgumentDescription
	// Deprecated, if true, indicates that the method should be
	// avoided in new code.
	Deprecated bool
	// If true, NoReply indicates that the caller is expected to use
	// Interface.OneWay to invoke this method, not Interface.Call.
	NoReply bool
}

func (m MethodDescription) String() string {
	var ret strings.Builder
	fmt.Fprintf(&ret, "func %s(%s)", m.Name, joinArgs(m.In))
	if len(m.Out) > 0 {
		fmt.Fprintf(&ret, " (%s)", joinArgs(m.Out))
	}
	ret.WriteString(flagSuffix(m.Deprecated, m.NoReply))
	return ret.String()
}

func (m *MethodDescription) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var raw struct {
		Name string `xml:"name,attr"`
		Args []struct {
			Name      string `xml:"name,attr"`
			Type      string `xml:"type,attr"`
			Direction string `xml:"direction,attr"`
		} `xml:"arg"`
		Meta []annotation `xml:"annotation"`
	}
	if err := d.DecodeElement(&raw, &start); err != nil {
		return err
	}
	m.Name = raw.Name
	m.In, m.Out = nil, nil
	for _, arg := range raw.Args {
		sig, err := ParseSignature(arg.Type)
		if err != nil {
			return fmt.Errorf("invalid signature %q for arg %s: %w", arg.Type, arg.Name, err)
		}
		ad := ArgumentDescription{Name: arg.Name, Type: sig}
		if arg.Direction == "in" {
			m.In = append(m.In, ad)
		} else {
			m.Out = append(m.Out, ad)
		}
	}
	m.Deprecated = boolAnnotation(raw.Meta, "org.freedesktop.DBus.Deprecated")
	m.NoReply = boolAnnotation(raw.Meta, "org.freedesktop.DBus.Method.NoReply")
	return nil
}

// SignalDescription describes a DBus signal.
//
// Signal descriptions are provided by the DBus peer emitting the
// signal, and may not accurately reflect the received signal.
type SignalDescription struct {
	Name string
	Args []ArgumentDescription
	// Deprecated, if true, indicates that the signal should be
	// avoided in new code.
	Deprecated bool
}

func (s SignalDescription) String() string {
	ret := fmt.Sprintf("signal %s(%s)", s.Name, joinArgs(s.Args))
	if s.Deprecated {
		ret += " [deprecated]"
	}
	return ret
}

func (s *SignalDescription) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var raw struct {
		Name       string `xml:"name,attr"`
		Attributes []struct {
			Name string `xml:"name,attr"`
			Type string `xml:"type,attr"`
		} `xml:"arg"`
		Meta []annotation `xml:"annotation"`
	}
	if err := d.DecodeElement(&raw, &start); err != nil {
		return err
	}
	s.Name = raw.Name
	s.Args = nil
	for _, attr := range raw.Attributes {
		sig, err := ParseSignature(attr.Type)
		if err != nil {
			return fmt.Errorf("invalid signature %q for signal arg %s: %w", attr.Type, attr.Name, err)
		}
		s.Args = append(s.Args, ArgumentDescription{Name: attr.Name, Type: sig})
	}
	s.Deprecated = boolAnnotation(raw.Meta, "org.freedesktop.DBus.Deprecated")
	return nil
}

// PropertyDescription describes a DBus property.
//
// Property descriptions are provied by the DBus peer offering the
// property, and may not accurately reflect the actual property.
type PropertyDescription struct {
	Name string
	Type Signature

	// If true, Constant indicates that the property's value never
	// changes, and thus can safely be cached locally.
	Constant bool
	// Readable is whether the property value can be read using
	// Interface.GetProperty.
	Readable bool
	// Writable is whether the property value can be set using
	// Interface.SetProperty
	Writable bool

	// EmitsSignal is whether the property emits a PropertiesChanged
	// signal when updated.
	EmitsSignal bool
	// SignalIncludesValue is whether the PropertiesChanged signal
	// emitted when this property changes includes the new value. If
	// false, the signal merely reports that the property's value has
	// been invalidated, and the recipient must use
	// Interface.GetProperty to retrieve the updated value.
	SignalIncludesValue bool

	// Deprecated, if true, indicates that the property should be
	// avoided in new code.
	Deprecated bool
}

// accessLabel returns the short access tag used by PropertyDescription's
// Stringer, mirroring the conventional readonly/writeonly/readwrite/const
// vocabulary used elsewhere in DBus tooling.
func (p PropertyDescription) accessLabel() string {
	switch {
	case p.Readable && !p.Writable && p.Constant:
		return "const"
	case p.Readable && p.Writable:
		return "readwrite"
	case p.Readable:
		return "readonly"
	case p.Writable:
		return "writeonly"
	default:
		return ""
	}
}

func (p PropertyDescription) String() string {
	var ret strings.Builder
	fmt.Fprintf(&ret, "property %s %s [%s", p.Name, p.Type.String(), p.accessLabel())
	if p.Deprecated {
		ret.WriteString(",deprecated")
	}
	switch {
	case p.EmitsSignal && p.SignalIncludesValue:
		ret.WriteString(",signals")
	case p.EmitsSignal:
		ret.WriteString(",invalidates")
	}
	ret.WriteByte(']')
	return ret.String()
}

func (p *PropertyDescription) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var raw struct {
		Name   string       `xml:"name,attr"`
		Type   string       `xml:"type,attr"`
		Access string       `xml:"access,attr"`
		Meta   []annotation `xml:"annotation"`
	}
	if err := d.DecodeElement(&raw, &start); err != nil {
		return err
	}
	p.Name = raw.Name
	sig, err := ParseSignature(raw.Type)
	if err != nil {
		return fmt.Errorf("invalid signature %q for property %s: %w", raw.Type, raw.Name, err)
	}
	p.Type = sig
	p.Constant, p.EmitsSignal, p.SignalIncludesValue = false, true, true
	switch raw.Access {
	case "read":
		p.Readable, p.Writable = true, false
	case "write":
		p.Readable, p.Writable = false, true
	case "readwrite":
		p.Readable, p.Writable = true, true
	default:
		return fmt.Errorf("unknown property access value %q", raw.Access)
	}
	p.Deprecated = boolAnnotation(raw.Meta, "org.freedesktop.DBus.Deprecated")
	switch annotationValue(raw.Meta, "org.freedesktop.DBus.Property.EmitsChangedSignal") {
	case "false":
		p.EmitsSignal, p.SignalIncludesValue = false, false
	case "invalidates":
		p.SignalIncludesValue = false
	case "const":
		p.Constant, p.EmitsSignal, p.SignalIncludesValue = true, false, false
	}
	return nil
}

// annotationValue returns the value of the first annotation named
// name, or "" if absent.
func annotationValue(anns []annotation, name string) string {
	for _, a := range anns {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

// ArgumentDescription describes a DBus method's input or output, or a
// signal's argument.
type ArgumentDescription struct {
	Name string // optional
	Type Signature
}

func (a ArgumentDescription) String() string {
	if a.Name == "" {
		return a.Type.String()
	}
	// Older DBus interfaces used arg-name style naming, which looks
	// weird to people used to C and Go-style languages. The modern
	// recommendation is to use underscores, and since argument names
	// aren't load-bearing for correctness, fix them up here for
	// readability.
	n := strings.Replace(a.Name, "-", "_", -1)
	return fmt.Sprintf("%s %s", n, a.Type.String())
}

// joinArgs renders a comma-separated argument list the way
// MethodDescription and SignalDescription's Stringers display their
// parameter lists.
func joinArgs(args []ArgumentDescription) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}

// flagSuffix renders the bracketed [deprecated,noreply]-style suffix
// MethodDescription's Stringer appends after the signature.
func flagSuffix(deprecated, noReply bool) string {
	switch {
	case deprecated && noReply:
		return " [deprecated,noreply]"
	case deprecated:
		return " [deprecated]"
	case noReply:
		return " [noreply]"
	default:
		return ""
	}
}
