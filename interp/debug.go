package interp

import (
	"github.com/davecgh/go-spew/spew"
)

// dumpConfig renders Values with their Go-level field structure visible
// (pointer identity for tables/closures, raw numeric kind) rather than
// through the user-facing tostring() surface in value.go — a separate
// debug surface from tostring, matching other_examples' MilkLua keeping
// its value-dump helpers apart from its exported ToString.
var dumpConfig = &spew.ConfigState{
	Indent:         "  ",
	DisableMethods: true,
	MaxDepth:       6,
}

// DumpValue renders v's internal structure for diagnostics (e.g. cmd/luax's
// -dump flag), not for LuaX-visible tostring().
func DumpValue(v Value) string {
	switch v.kind {
	case VKTable:
		return DumpTable(v.t)
	case VKClosure:
		return dumpConfig.Sprintf("%#v", v.cl)
	default:
		return dumpConfig.Sprintf("%#v", v)
	}
}

// DumpTable renders t's raw entries, keys and values both converted with
// ToString (so a nested table shows as its tostring form), followed by
// the metatable's address when one is set; the metatable's own contents
// are not walked.
func DumpTable(t *Table) string {
	if t == nil {
		return "<nil table>"
	}
	snapshot := map[string]interface{}{}
	_ = t.Foreach(func(k, v Value) error {
		snapshot[ToString(k)] = ToString(v)
		return nil
	})
	out := dumpConfig.Sdump(snapshot)
	if mt := t.Metatable(); mt != nil {
		out += "metatable: " + dumpConfig.Sprintf("%p", mt) + "\n"
	}
	return out
}
