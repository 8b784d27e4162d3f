// Package loader reads user program images and loads them into address
// spaces.
//
// An image is a YAML document with a name, a list of data declarations and
// a text section of assembly:
//
//	name: hello
//	data:
//	  - label: msg
//	    asciiz: "hello\n"
//	text: |
//	  main:
//	      li   v0, SYS_write
//	      li   a0, STDOUT_FILENO
//	      la   a1, msg
//	      li   a2, 6
//	      syscall
//	      li   v0, SYS__exit
//	      li   a0, 0
//	      syscall
//
// Text and data labels, SYS_* call numbers and E* error numbers are all
// usable as operands. Execution starts at "main", or at "_start", or at the
// first instruction.
package loader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kestrel-os/kestrel/pkg/callno"
	"github.com/kestrel-os/kestrel/pkg/errno"
	"github.com/kestrel-os/kestrel/pkg/machine"
	"github.com/kestrel-os/kestrel/pkg/vm"
)

// Extension is the file suffix of program images.
const Extension = ".kx.yaml"

// ErrBadImage is returned for images that cannot be parsed or assembled.
var ErrBadImage = fmt.Errorf("bad program image: %w", errno.ENOEXEC)

// Image is an assembled program.
type Image struct {
	Name     string
	Text     []machine.Instr
	Data     []byte
	DataSize int
	Entry    int32
	Symbols  map[string]int32
}

type imageFile struct {
	Name string     `yaml:"name"`
	Data []dataDecl `yaml:"data"`
	Text string     `yaml:"text"`
}

type dataDecl struct {
	Label  string      `yaml:"label"`
	Word   *string     `yaml:"word"`
	Words  []yaml.Node `yaml:"words"`
	Asciiz *string     `yaml:"asciiz"`
	Space  int         `yaml:"space"`
}

func (d dataDecl) size() (int, error) {
	n := 0
	kinds := 0
	if d.Word != nil {
		n, kinds = machine.WordSize, kinds+1
	}
	if d.Words != nil {
		n, kinds = len(d.Words)*machine.WordSize, kinds+1
	}
	if d.Asciiz != nil {
		n, kinds = len(*d.Asciiz)+1, kinds+1
	}
	if d.Space != 0 {
		if d.Space < 0 {
			return 0, fmt.Errorf("negative space %d", d.Space)
		}
		n, kinds = d.Space, kinds+1
	}
	if kinds != 1 {
		return 0, errors.New("exactly one of word, words, asciiz or space is required")
	}
	return n, nil
}

// Parse assembles an image from its YAML source.
func Parse(src []byte) (*Image, error) {
	var f imageFile
	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	if strings.TrimSpace(f.Text) == "" {
		return nil, fmt.Errorf("%w: no text", ErrBadImage)
	}

	a := &assembler{symbols: predefined()}

	// Lay out data first so text can refer to it.
	offsets := make([]int, len(f.Data))
	size := 0
	for i, d := range f.Data {
		n, err := d.size()
		if err != nil {
			return nil, fmt.Errorf("%w: data %d (%s): %v", ErrBadImage, i, d.Label, err)
		}
		offsets[i] = size
		if d.Label != "" {
			if !isIdent(d.Label) {
				return nil, fmt.Errorf("%w: bad data label %q", ErrBadImage, d.Label)
			}
			if _, dup := a.symbols[d.Label]; dup {
				return nil, fmt.Errorf("%w: symbol %q redefined", ErrBadImage, d.Label)
			}
			a.symbols[d.Label] = vm.DataBase + int32(size)
		}
		size += align(n)
	}

	if err := a.scan(f.Text); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	text, err := a.encode()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	if len(text) == 0 {
		return nil, fmt.Errorf("%w: no instructions", ErrBadImage)
	}

	data := make([]byte, size)
	for i, d := range f.Data {
		off := offsets[i]
		switch {
		case d.Word != nil:
			v, err := a.value(*d.Word)
			if err != nil {
				return nil, fmt.Errorf("%w: data %s: %v", ErrBadImage, d.Label, err)
			}
			binary.BigEndian.PutUint32(data[off:], uint32(v))
		case d.Words != nil:
			for j, w := range d.Words {
				v, err := a.word(w)
				if err != nil {
					return nil, fmt.Errorf("%w: data %s[%d]: %v", ErrBadImage, d.Label, j, err)
				}
				binary.BigEndian.PutUint32(data[off+j*machine.WordSize:], uint32(v))
			}
		case d.Asciiz != nil:
			copy(data[off:], *d.Asciiz)
		}
	}

	entry := vm.TextBase
	for _, name := range []string{"main", "_start"} {
		if v, ok := a.symbols[name]; ok {
			entry = v
			break
		}
	}
	if entry < vm.TextBase || entry >= vm.TextBase+int32(len(text)*machine.WordSize) {
		return nil, fmt.Errorf("%w: entry point %#x outside text", ErrBadImage, entry)
	}

	return &Image{
		Name:     f.Name,
		Text:     text,
		Data:     data,
		DataSize: size,
		Entry:    entry,
		Symbols:  a.symbols,
	}, nil
}

// Load defines the image's text and data in as and returns the entry point.
// The stack is left to the caller.
func (img *Image) Load(as *vm.AddressSpace) (int32, error) {
	if err := as.DefineText(img.Text); err != nil {
		return 0, err
	}
	if img.DataSize > 0 {
		if err := as.DefineData(img.Data, img.DataSize); err != nil {
			return 0, err
		}
	}
	return img.Entry, nil
}

// word evaluates one entry of a words list. YAML reads a bare NULL as a
// null scalar, which stands for the NULL symbol.
func (a *assembler) word(n yaml.Node) (int32, error) {
	if n.Kind != yaml.ScalarNode {
		return 0, fmt.Errorf("line %d: not a scalar", n.Line)
	}
	if n.ShortTag() == "!!null" {
		return 0, nil
	}
	return a.value(n.Value)
}

func predefined() map[string]int32 {
	syms := callno.Symbols()
	for _, name := range errno.Names() {
		e, _ := errno.Lookup(name)
		syms[name] = int32(e)
	}
	syms["NULL"] = 0
	return syms
}

func align(n int) int {
	return (n + machine.WordSize - 1) &^ (machine.WordSize - 1)
}
