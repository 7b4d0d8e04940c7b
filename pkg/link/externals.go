package link

import (
	"fmt"

	"github.com/pic18kit/ld18/pkg/diag"
	"github.com/pic18kit/ld18/pkg/objfile"
)

// Externals collects every externally-visible, defined symbol across a set
// of objects into a name-keyed table, used to resolve relocations that
// target a symbol defined in a different object than the one being patched
// (spec.md §4.4, _getexternals). The first definition of a duplicate name
// wins; later ones are non-fatal errors (spec.md §8, "external-symbol
// duplicates keep the first binding encountered").
func Externals(objects []*objfile.Object, sink *diag.Sink) map[string]*objfile.Symbol {
	externals := make(map[string]*objfile.Symbol)
	firstFile := make(map[string]string)

	for _, o := range objects {
		for _, s := range o.Symbols {
			if !s.IsExternal() || !s.IsDefined() {
				continue
			}
			if _, dup := externals[s.Name]; dup {
				sink.Error(o.FileName, fmt.Sprintf("duplicate symbol '%s' (first defined in '%s')", s.Name, firstFile[s.Name]))
				continue
			}
			externals[s.Name] = s
			firstFile[s.Name] = o.FileName
		}
	}
	return externals
}
