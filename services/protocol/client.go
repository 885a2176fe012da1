package protocol

import (
	"bytes"
	"io"

	"quizcam-go/errcode"
	"quizcam-go/services/questions"
)

// Client speaks the companion side of the link. Each call sends one frame
// and reads its reply; calls must not overlap.
type Client struct {
	rw io.ReadWriter
}

func NewClient(rw io.ReadWriter) *Client { return &Client{rw: rw} }

func (c *Client) send(cmd, arg byte) error {
	f := Frame{cmd, arg, CR, LF}
	if _, err := c.rw.Write(f[:]); err != nil {
		return errcode.Wrap(errcode.IOError, "protocol.send", err)
	}
	return nil
}

func (c *Client) read(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(c.rw, b); err != nil {
		return nil, errcode.Wrap(errcode.IOError, "protocol.recv", err)
	}
	return b, nil
}

func rejected(op string) error { return &errcode.E{C: errcode.Rejected, Op: op} }

// Count asks the device to index its question file.
func (c *Client) Count() (int, error) {
	if err := c.send(CmdIndex, SubCount); err != nil {
		return 0, err
	}
	r, err := c.read(3)
	if err != nil {
		return 0, err
	}
	switch {
	case bytes.Equal(r, ReplyFail):
		return 0, &errcode.E{C: errcode.OpenFailed, Op: "protocol.count"}
	case bytes.Equal(r, ReplyNo):
		return 0, &errcode.E{C: errcode.Rejected, Op: "protocol.count", Msg: "question file unusable"}
	case r[1] != CR || r[2] != LF:
		return 0, &errcode.E{C: errcode.MalformedFrame, Op: "protocol.count"}
	}
	return int(r[0]), nil
}

// Init powers and programs the camera.
func (c *Client) Init() error {
	if err := c.send(CmdIndex, SubInit); err != nil {
		return err
	}
	r, err := c.read(1)
	if err != nil {
		return err
	}
	if r[0] == NAK {
		return rejected("protocol.init")
	}
	rest, err := c.read(len(ReplyInit) - 1)
	if err != nil {
		return err
	}
	if !bytes.Equal(append(r, rest...), ReplyInit) {
		return &errcode.E{C: errcode.MalformedFrame, Op: "protocol.init"}
	}
	return nil
}

// Question returns the text of question n, up to and including its
// newline.
func (c *Client) Question(n int) (string, error) {
	if err := c.send(CmdQuestion, byte(n)); err != nil {
		return "", err
	}
	r, err := c.read(1)
	if err != nil {
		return "", err
	}
	if r[0] == NAK {
		return "", rejected("protocol.question")
	}
	rest, err := c.read(questions.RecordSize - 1)
	if err != nil {
		return "", err
	}
	rec := append(r, rest...)
	if i := bytes.IndexByte(rec, 0); i >= 0 {
		rec = rec[:i]
	}
	return string(rec), nil
}

// Ticks returns the tick count of question n. A NAK is indistinguishable
// from a count of 21, so callers check the range first.
func (c *Client) Ticks(n int) (int, error) {
	if err := c.send(CmdTicks, byte(n)); err != nil {
		return 0, err
	}
	r, err := c.read(1)
	if err != nil {
		return 0, err
	}
	if r[0] == NAK {
		return 0, rejected("protocol.ticks")
	}
	return int(r[0]), nil
}

// Capture photographs the answer to question n and marks it.
func (c *Client) Capture(n int) error {
	if err := c.send(CmdCapture, byte(n)); err != nil {
		return err
	}
	r, err := c.read(1)
	if err != nil {
		return err
	}
	if r[0] != ACK {
		return rejected("protocol.capture")
	}
	return nil
}
