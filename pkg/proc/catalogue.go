// Package proc provides the processor catalogue: a key->record lookup of
// target memory geometry (general RAM, access-bank RAM, program memory),
// grounded on original_source/picc/linker.py's _loadpicinfo and _PicInfo.
// The original encodes this as XML with hex attributes; we treat the
// catalogue as an opaque external API and back it with YAML instead, loaded
// through viper the way cmd/root.go loads its own config (spec.md §6,
// "Processor catalogue").
package proc

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/pic18kit/ld18/pkg/utils"
)

// Record holds one processor's memory geometry, all sizes in bytes.
type Record struct {
	Name    string `yaml:"name"`
	RAM     uint32 `yaml:"ram"`
	Access  uint32 `yaml:"access"`
	ProgMem uint32 `yaml:"progmem"`
}

// ErrUnknownProcessor is returned when a name has no catalogue entry.
var ErrUnknownProcessor = errors.New("unknown processor")

// Catalogue is a loaded set of processor records keyed by name.
type Catalogue struct {
	records map[string]Record
}

// catalogueFile is the on-disk shape: a flat list under a "processors" key,
// rather than a map, so the file reads like the original's ordered XML list.
type catalogueFile struct {
	Processors []Record `yaml:"processors"`
}

// Lookup returns the record for name, or ErrUnknownProcessor.
func (c *Catalogue) Lookup(name string) (Record, error) {
	r, ok := c.records[name]
	if !ok {
		return Record{}, fmt.Errorf("%w: %q (known: %s)", ErrUnknownProcessor, name, utils.FormatSlice(c.Names(), ", "))
	}
	return r, nil
}

// Names returns every processor name in the catalogue, sorted.
func (c *Catalogue) Names() []string {
	names := utils.Keys(c.records)
	sort.Strings(names)
	return names
}

// fromFile builds a Catalogue from parsed YAML, rejecting duplicate names.
func fromFile(cf catalogueFile) (*Catalogue, error) {
	records := make(map[string]Record, len(cf.Processors))
	for _, r := range cf.Processors {
		if _, dup := records[r.Name]; dup {
			return nil, fmt.Errorf("processor catalogue: duplicate entry %q", r.Name)
		}
		records[r.Name] = r
	}
	return &Catalogue{records: records}, nil
}

// Load reads a processor catalogue from a YAML file at path.
func Load(path string) (*Catalogue, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("cannot load processor catalogue: %w", err)
	}

	var cf catalogueFile
	if err := v.Unmarshal(&cf); err != nil {
		return nil, fmt.Errorf("malformed processor catalogue %q: %w", path, err)
	}
	return fromFile(cf)
}

// LoadBytes parses a processor catalogue directly from YAML bytes, used by
// Default and by tests that don't want to touch the filesystem.
func LoadBytes(data []byte) (*Catalogue, error) {
	var cf catalogueFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("malformed processor catalogue: %w", err)
	}
	return fromFile(cf)
}

// Default returns the catalogue built into the linker, covering the parts
// objfile's processor-code table (spec.md §4.1) can decode.
func Default() *Catalogue {
	cat, err := LoadBytes(defaultCatalogueYAML)
	if err != nil {
		// The built-in catalogue is a compile-time constant; a parse failure
		// here means the constant itself is broken.
		panic(err)
	}
	return cat
}

var defaultCatalogueYAML = []byte(`
processors:
  - name: 18f2550
    ram: 0x800
    access: 0x60
    progmem: 0x8000
  - name: 18f26j13
    ram: 0xc00
    access: 0x60
    progmem: 0x8000
`)
