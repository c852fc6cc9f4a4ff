package gcode

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

type Parser struct{ br *bufio.Reader }

func NewParser(r io.Reader) *Parser {
	if br, ok := r.(*bufio.Reader); ok {
		return &Parser{br: br}
	}

	return &Parser{br: bufio.NewReader(r)}
}

var (
	rx      = regexp.MustCompile(`^([A-Z][0-9.\-]+)+$`)
	rxSplit = regexp.MustCompile(`[A-Z][0-9.\-]+`)
)

// ParseLine parses a single line, ignoring comments and whitespace.
//
// An empty or comment-only line returns a nil Block.
func ParseLine(s string) (Block, error) {
	s = strings.SplitN(s, ";", 2)[0]
	if i := strings.IndexByte(s, '('); i >= 0 {
		s = s[:i]
	}
	s = strings.Replace(s, " ", "", -1)
	s = strings.TrimSpace(s)
	s = strings.ToUpper(s)

	if s == "" {
		return nil, nil
	}
	if !rx.MatchString(s) {
		return nil, errors.New("invalid or unhandled line: " + s)
	}

	codes := rxSplit.FindAllString(s, -1)
	res := make(Block, len(codes))
	for i, c := range codes {
		_, err := fmt.Sscanf(c, "%c%f", &res[i].W, &res[i].Arg)
		if err != nil {
			return nil, err
		}
	}

	return res, nil
}

func (p *Parser) Read() (Block, error) {
	for {
		s, err := p.br.ReadString('\n')
		if err == io.EOF && s != "" {
			err = nil
		}
		if err != nil {
			return nil, err
		}

		b, err := ParseLine(s)
		if err != nil {
			return nil, err
		}
		if b == nil {
			continue
		}
		return b, nil
	}
}
