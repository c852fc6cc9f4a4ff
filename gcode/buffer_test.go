package gcode

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuffer_Read(t *testing.T) {
	blocks := []Block{
		{{W: 'G', Arg: 1}, {W: 'G', Arg: 2}},

		{{W: 'M', Arg: 2}},
	}

	b := NewBlocksBuffer(blocks...)

	buf := make([]byte, 10)
	n, err := b.Read(buf)
	assert.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, []byte("G1G2\nM2\n"), buf[:n])

	n, err = b.Read(buf)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 0, n)
}

func TestBuffer_ReadShort(t *testing.T) {
	b := NewBlocksBuffer(Block{{W: 'G', Arg: 53}, {W: 'G', Arg: 0}, {W: 'Z', Arg: -5}})

	data, err := io.ReadAll(io.LimitReader(b, 100))
	assert.NoError(t, err)
	assert.Equal(t, "G53G0Z-5\n", string(data))
}
