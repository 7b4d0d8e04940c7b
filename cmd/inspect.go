package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/spf13/cobra"

	"github.com/pic18kit/ld18/pkg/objfile"
)

// inspectCmd implements `ld18 inspect`: an interactive terminal browser over
// one decoded object's sections, symbols and relocations, for poking at a
// .o file without piping dump output through a pager (SPEC_FULL.md
// "inspect" supplemented feature).
var inspectCmd = &cobra.Command{
	Use:   "inspect <object>",
	Short: "Browse a decoded COFF object's sections and symbols interactively",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runInspect(args[0])
	},
}

func init() {
	RootCmd.AddCommand(inspectCmd)
}

func runInspect(path string) {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ld18: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	obj, err := objfile.Decode(f, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ld18: %v\n", err)
		os.Exit(1)
	}

	if err := browse(obj); err != nil {
		fmt.Fprintf(os.Stderr, "ld18: %v\n", err)
		os.Exit(1)
	}
}

// browse renders a two-pane view: a list of sections and symbols on the
// left, and the detail of whatever is currently selected on the right.
func browse(obj *objfile.Object) error {
	app := tview.NewApplication()
	detail := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true)
	detail.SetBorder(true).SetTitle("detail")

	list := tview.NewList().ShowSecondaryText(false)
	list.SetBorder(true).SetTitle(fmt.Sprintf("%s (press q to quit)", obj.FileName))

	for i, s := range obj.Sections {
		if i == 0 {
			continue
		}
		sec := s
		list.AddItem(sec.Name, "", 0, func() {
			detail.SetText(sectionDetail(sec))
		})
	}
	for _, s := range obj.Symbols {
		sym := s
		list.AddItem("sym: "+sym.Name, "", 0, func() {
			detail.SetText(symbolDetail(sym))
		})
	}

	if obj.Sections != nil {
		for i, s := range obj.Sections {
			if i != 0 {
				detail.SetText(sectionDetail(s))
				break
			}
		}
	}

	flex := tview.NewFlex().
		AddItem(list, 0, 1, true).
		AddItem(detail, 0, 2, false)

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Rune() == 'q' {
			app.Stop()
			return nil
		}
		return event
	})

	return app.SetRoot(flex, true).SetFocus(list).Run()
}

func sectionDetail(s *objfile.Section) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[yellow]%s[-]\n", s.Name)
	fmt.Fprintf(&b, "paddress: %#06x\n", s.PAddress)
	fmt.Fprintf(&b, "vaddress: %#06x\n", s.VAddress)
	fmt.Fprintf(&b, "size: %#x\n", s.Size)
	fmt.Fprintf(&b, "flags: %#x\n", s.Flags)
	fmt.Fprintf(&b, "relocations: %d\n", len(s.Relocations))
	for _, r := range s.Relocations {
		name := "?"
		if r.Symbol != nil {
			name = r.Symbol.Name
		}
		fmt.Fprintf(&b, "  +%#04x type=%d -> %s\n", r.Address, r.Type, name)
	}
	return b.String()
}

func symbolDetail(s *objfile.Symbol) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[yellow]%s[-]\n", s.Name)
	fmt.Fprintf(&b, "value: %#06x\n", s.Value)
	fmt.Fprintf(&b, "external: %v\n", s.IsExternal())
	fmt.Fprintf(&b, "defined: %v\n", s.IsDefined())
	fmt.Fprintf(&b, "aux records: %d\n", len(s.Aux))
	return b.String()
}
