package cmd

import (
	"bytes"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pic18kit/ld18/pkg/ar"
	"github.com/pic18kit/ld18/pkg/diag"
	"github.com/pic18kit/ld18/pkg/hexfile"
	"github.com/pic18kit/ld18/pkg/link"
	"github.com/pic18kit/ld18/pkg/objfile"
	"github.com/pic18kit/ld18/pkg/proc"
)

var (
	outputFile    string
	catalogueFile string
	keepUnplaced  bool
)

// linkCmd implements `ld18 link`: decode every input object or archive
// member, place their sections, resolve cross-object references and emit an
// Intel HEX image.
var linkCmd = &cobra.Command{
	Use:   "link [objects...]",
	Short: "Link relocatable COFF objects into an Intel HEX image",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runLink(args)
	},
}

func init() {
	RootCmd.AddCommand(linkCmd)
	linkCmd.Flags().StringVarP(&outputFile, "output", "o", "a.hex", "output Intel HEX file")
	linkCmd.Flags().StringVar(&catalogueFile, "processors", "", "processor catalogue YAML file (default: built-in catalogue)")
	linkCmd.Flags().BoolVar(&keepUnplaced, "keep-unplaced", true, "emit sections that failed to place at address 0, instead of dropping them from the HEX output")
}

func runLink(paths []string) {
	sink := diag.NewSink(os.Stderr)

	var objects []*objfile.Object
	for _, p := range paths {
		decoded, err := decodeInput(p)
		if err != nil {
			sink.FatalFile(p, err.Error())
		}
		objects = append(objects, decoded...)
	}

	catalogue := proc.Default()
	if catalogueFile != "" {
		loaded, err := proc.Load(catalogueFile)
		if err != nil {
			sink.Fatal(err.Error())
		}
		catalogue = loaded
	}

	picinfo, err := catalogue.Lookup(objects[0].Processor)
	if err != nil {
		sink.FatalFile(objects[0].FileName, err.Error())
	}

	img, err := link.Link(objects, picinfo, sink)
	if err != nil {
		sink.Fatal(err.Error())
	}

	drop := make(map[*objfile.Section]bool, len(img.Unplaced))
	if !keepUnplaced {
		for _, s := range img.Unplaced {
			drop[s] = true
		}
	}

	hex := hexfile.NewImage()
	for _, o := range img.Objects {
		for _, s := range o.Sections[1:] {
			if (s.IsCode() || s.IsProgramData()) && !drop[s] {
				hex.Put(s.PAddress, s.Data)
			}
		}
	}

	out, err := os.Create(outputFile)
	if err != nil {
		sink.Fatal(err.Error())
	}
	defer out.Close()

	if _, err := hex.WriteTo(out); err != nil {
		sink.Fatal(err.Error())
	}

	if sink.ErrorCount() > 0 {
		os.Exit(1)
	}
}

// decodeInput decodes a single input path into one or more objects: a plain
// COFF file decodes to one object, an ar archive decodes to one object per
// member (spec.md §6, SPEC_FULL.md "Archive input").
func decodeInput(path string) ([]*objfile.Object, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	isArchive, err := ar.IsArchive(f)
	if err != nil {
		return nil, err
	}
	if !isArchive {
		return decodeOne(f, path)
	}

	members, err := ar.Extract(f, path)
	if err != nil {
		return nil, err
	}
	var objects []*objfile.Object
	for _, m := range members {
		obj, err := objfile.Decode(bytes.NewReader(m.Data), path+"("+m.Name+")")
		if err != nil {
			return nil, err
		}
		objects = append(objects, obj)
	}
	return objects, nil
}

func decodeOne(f io.ReaderAt, name string) ([]*objfile.Object, error) {
	obj, err := objfile.Decode(f, name)
	if err != nil {
		return nil, err
	}
	return []*objfile.Object{obj}, nil
}
