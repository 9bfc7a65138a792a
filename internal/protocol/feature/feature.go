// Package feature holds the qSupported feature catalog and the grammar for
// one feature entry (name+, name-, name=value).
package feature

import "fmt"

// Feature is one catalogued qSupported feature. The zero value is Unknown.
type Feature uint8

const (
	Unknown Feature = iota
	Multiprocess
	XMLRegisters
	QRelocInsn
	SWBreak
	HWBreak
	ForkEvents
	VForkEvents
	ExecEvents
	VContSupported
	NoResumed
	QThreadEvents
)

// catalog maps each feature to its wire name. Order matches the constants.
var catalog = [...]struct {
	feature Feature
	name    string
}{
	{Multiprocess, "multiprocess"},
	{XMLRegisters, "xmlRegisters"},
	{QRelocInsn, "qRelocInsn"},
	{SWBreak, "swbreak"},
	{HWBreak, "hwbreak"},
	{ForkEvents, "fork-events"},
	{VForkEvents, "vfork-events"},
	{ExecEvents, "exec-events"},
	{VContSupported, "vContSupported"},
	// not in the documented list but sent by gdb
	{NoResumed, "no-resumed"},
	{QThreadEvents, "QThreadEvents"},
}

var byName = func() map[string]Feature {
	m := make(map[string]Feature, len(catalog))
	for _, e := range catalog {
		m[e.name] = e.feature
	}
	return m
}()

// Lookup resolves an exact, case-sensitive wire name.
func Lookup(name string) (Feature, bool) {
	f, ok := byName[name]
	return f, ok
}

// All returns every catalogued feature in declaration order.
func All() []Feature {
	out := make([]Feature, 0, len(catalog))
	for _, e := range catalog {
		out = append(out, e.feature)
	}
	return out
}

func (f Feature) String() string {
	if f == Unknown || int(f) > len(catalog) {
		return fmt.Sprintf("feature(%d)", uint8(f))
	}
	return catalog[f-1].name
}

// Known is a feature name resolved against the catalog. Name always holds the
// name exactly as received; Feature is Unknown when the catalog has no match.
type Known struct {
	Feature Feature
	Name    string
}

func Resolve(name string) Known {
	f, _ := Lookup(name)
	return Known{Feature: f, Name: name}
}

func (k Known) IsKnown() bool {
	return k.Feature != Unknown
}

func (k Known) String() string {
	return k.Name
}
