// Package protocol serves the companion link: fixed four-byte command
// frames in, short status replies out.
//
// A frame is {cmd, arg, CR, LF}. Frames without the CR LF trailer are
// echoed back unchanged.
package protocol

import (
	"quizcam-go/x/conv"
)

const FrameLen = 4

const (
	CR  = 0x0D
	LF  = 0x0A
	ACK = 0x06
	NAK = 0x15
)

// Command bytes.
const (
	CmdIndex    = '~' // ~+ count, ~i initialise
	CmdQuestion = 'q'
	CmdTicks    = '"'
	CmdCapture  = '!'

	SubCount = '+'
	SubInit  = 'i'
)

// Fixed replies.
var (
	ReplyInit = []byte("INI")
	ReplyFail = []byte("FAI")
	ReplyNo   = []byte("NO!")
	ReplyACK  = []byte{ACK}
	ReplyNAK  = []byte{NAK}
)

// Frame is one command frame.
type Frame [FrameLen]byte

// Valid reports whether the frame carries the CR LF trailer.
func (f Frame) Valid() bool { return f[2] == CR && f[3] == LF }

func (f Frame) Cmd() byte { return f[0] }
func (f Frame) Arg() byte { return f[1] }

// CaptureName is the file a marked capture is saved under: Q{question}-{ticks}.jpg
// with both numbers zero padded to two digits.
func CaptureName(question, ticks int) string {
	b := make([]byte, 0, 12)
	b = append(b, 'Q')
	b = conv.AppendPadded(b, question, 2)
	b = append(b, '-')
	b = conv.AppendPadded(b, ticks, 2)
	b = append(b, ".jpg"...)
	return string(b)
}

// countReply is {n, CR, LF}.
func countReply(n int) []byte {
	return []byte{byte(n), CR, LF}
}
