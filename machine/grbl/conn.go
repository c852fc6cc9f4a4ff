package grbl

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
)

const bufferSize = 128

var (
	// ErrGrblReset will be returned from write methods if a reset is encountered
	// before all commands are run.
	ErrGrblReset = errors.New("grbl reset")

	// ErrGrblAlarm will be returned from write methods if the controller
	// enters an alarm state before all commands are run.
	ErrGrblAlarm = errors.New("grbl alarm")
)

// Conn represents a direct connection to a Grbl controller.
type Conn struct {
	rw io.ReadWriter

	readBuf []byte
	scan    *bufio.Scanner
	ackCh   chan error
	resetCh chan error
	closeCh chan struct{}

	closeOnce sync.Once

	mx  sync.Mutex
	wMx sync.Mutex

	deviceBuf int
	lineSize  []int

	wroteLines int64
	readLines  int64
}

// NewConn creates a new Conn using the provided ReadWriter for data.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{
		scan:    bufio.NewScanner(rw),
		rw:      rw,
		ackCh:   make(chan error),
		resetCh: make(chan error, 1),
		closeCh: make(chan struct{}),
	}
}

// Close will abort any in-progress writes and close the
// underlying ReadWriter, if it implements io.Closer.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		if closer, ok := c.rw.(io.Closer); ok {
			err = closer.Close()
		}
	})
	return err
}

func (c *Conn) recordBufferSpace(n int) int64 {
	c.deviceBuf += n
	c.wroteLines++
	c.lineSize = append(c.lineSize, n)
	return c.wroteLines
}

func (c *Conn) waitForBufferSpace(n int) error {
	for c.deviceBuf+n > bufferSize {
		err := c.next()
		if err != nil {
			return err
		}
	}

	return nil
}

func (c *Conn) clear(err error) error {
	c.deviceBuf = 0
	c.lineSize = nil
	c.readLines = c.wroteLines
	return err
}

func (c *Conn) next() error {
	select {
	case <-c.closeCh:
		return io.ErrClosedPipe
	default:
	}

	select {
	case err := <-c.resetCh:
		return c.clear(err)
	default:
	}

	select {
	case <-c.closeCh:
		return io.ErrClosedPipe
	case err := <-c.resetCh:
		return c.clear(err)
	case e := <-c.ackCh:
		c.readLines++
		c.deviceBuf -= c.lineSize[0]
		c.lineSize = c.lineSize[1:]
		return e
	}
}

func (c *Conn) waitForLine(id int64) (err error) {
	for c.readLines < id {
		e := c.next()
		if err == nil {
			err = e
		}
	}
	return err
}

// writeLine will block until line has been written to the serial device in full.
//
// It returns the line index.
func (c *Conn) writeLine(line []byte) (id int64, err error) {
	err = c.waitForBufferSpace(len(line))
	if err != nil {
		return 0, err
	}
	c.mx.Lock()
	_, err = c.rw.Write(line)
	c.mx.Unlock()
	if err != nil {
		return 0, err
	}
	id = c.recordBufferSpace(len(line))
	return id, nil
}

func splitLinesKeepN(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[:i+1], nil
	}
	if atEOF {
		// terminate a trailing partial line
		return len(data), append(data, '\n'), nil
	}
	return 0, nil, nil
}

func (c *Conn) readFrom(r io.Reader) (n int64, err error) {
	select {
	case <-c.closeCh:
		return 0, io.ErrClosedPipe
	default:
	}

	scanner := bufio.NewScanner(r)
	scanner.Split(splitLinesKeepN)

	lastID := c.wroteLines
	for scanner.Scan() {
		lastID, err = c.writeLine(scanner.Bytes())
		if err != nil {
			return n, err
		}
		n += int64(len(scanner.Bytes()))
	}
	if err = scanner.Err(); err != nil {
		return n, err
	}

	return n, c.waitForLine(lastID)
}

// ReadFrom returns after all lines have been sent and acknowledged.
//
// Acknowledgements are only observed while Read is being called
// from another goroutine.
func (c *Conn) ReadFrom(r io.Reader) (n int64, err error) {
	c.wMx.Lock()
	defer c.wMx.Unlock()
	return c.readFrom(r)
}

// Write will return after all lines have been sent and acknowledged.
func (c *Conn) Write(p []byte) (int, error) {
	c.wMx.Lock()
	defer c.wMx.Unlock()

	n, err := c.readFrom(bytes.NewReader(p))
	return int(n), err
}

// WriteByte will write directly to the serial device without
// accounting for buffering.
//
// Use for realtime commands like `?`.
func (c *Conn) WriteByte(p byte) (err error) {
	select {
	case <-c.closeCh:
		return io.ErrClosedPipe
	default:
	}
	c.mx.Lock()
	_, err = c.rw.Write([]byte{p})
	c.mx.Unlock()
	return err
}

func (c *Conn) signal(err error) {
	select {
	case c.resetCh <- err:
	default:
	}
}

// Read will read the next line from the device.
func (c *Conn) Read(p []byte) (n int, err error) {
	select {
	case <-c.closeCh:
		return 0, io.ErrClosedPipe
	default:
	}

	if c.readBuf != nil {
		if len(p) < len(c.readBuf) {
			return 0, io.ErrShortBuffer
		}
		n = copy(p, c.readBuf)
		c.readBuf = nil
		return n, nil
	}
	if !c.scan.Scan() {
		err = c.scan.Err()
		if err == nil {
			err = io.EOF
		}
		return 0, err
	}
	data := bytes.TrimSpace(c.scan.Bytes())

	switch {
	case bytes.Equal(data, []byte("ok")):
		select {
		case c.ackCh <- nil:
		case <-c.closeCh:
			return n, io.ErrClosedPipe
		}
	case bytes.HasPrefix(data, []byte("error:")):
		select {
		case c.ackCh <- errors.New(strings.TrimSpace(string(data))):
		case <-c.closeCh:
			return n, io.ErrClosedPipe
		}
	case bytes.HasPrefix(data, []byte("ALARM:")):
		c.signal(errors.Join(ErrGrblAlarm, errors.New(string(data))))
	case bytes.HasPrefix(data, []byte("Grbl")):
		c.signal(ErrGrblReset)
	}

	if len(p) < len(data) {
		c.readBuf = append([]byte(nil), data...)
		return 0, io.ErrShortBuffer
	}

	return copy(p, data), nil
}
