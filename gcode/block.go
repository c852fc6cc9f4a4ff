package gcode

import (
	"errors"
	"strings"
)

var (
	ErrInvalidWord   = errors.New("invalid word in block")
	ErrRepeatedWord  = errors.New("word was repeated in a block")
	ErrModalConflict = errors.New("multiple words from same modal group")
)

// Block is a single line of G-code.
type Block []Word

func (b Block) Arg(w byte) (bool, float64) {
	for _, g := range b {
		if g.W == w {
			return true, g.Arg
		}
	}
	return false, 0
}

// Has reports if the block contains the exact word.
func (b Block) Has(w Word) bool {
	for _, g := range b {
		if g == w {
			return true
		}
	}
	return false
}

// Args returns the words that do not belong to any modal group (axes, P, etc).
func (b Block) Args() Block {
	res := make(Block, 0, len(b))
	for _, g := range b {
		if g.ModalGroup() == ModalGroupNone {
			res = append(res, g)
		}
	}
	return res
}

func (b Block) Validate() error {
	var checkWord [256]bool
	var checkModal [256]bool

	for _, g := range b {
		if !g.IsValid() {
			return ErrInvalidWord
		}
		if g.W != 'G' && g.W != 'M' && checkWord[g.W] {
			return ErrRepeatedWord
		}
		checkWord[g.W] = true
		m := g.ModalGroup()
		if m != ModalGroupNone && checkModal[m] {
			return ErrModalConflict
		}
		checkModal[m] = true
	}

	return nil
}

func (b Block) String() string {
	var sb strings.Builder
	for _, w := range b {
		sb.WriteString(w.String())
	}
	return sb.String()
}
