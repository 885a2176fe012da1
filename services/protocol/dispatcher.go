package protocol

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"quizcam-go/bus"
	"quizcam-go/errcode"
	"quizcam-go/services/camera"
	"quizcam-go/services/questions"
	"quizcam-go/types"
	"quizcam-go/x/conv"
	"quizcam-go/x/timex"
)

// TopicFrames carries a types.FrameEvent per handled frame.
var TopicFrames = bus.T("protocol", "frame")

// Camera is the part of the camera engine the link drives.
type Camera interface {
	PowerOn() error
	Init() error
	Run(fn func(op *camera.Op) error) error
}

// Questions is the question table.
type Questions interface {
	Index() (int, error)
	Count() int
	Question(i int) (questions.Record, error)
	TickCount(i int) (int, error)
	Mark(i int) (int, error)
}

var (
	_ Camera    = (*camera.Engine)(nil)
	_ Questions = (*questions.Index)(nil)
)

// Timings are the pauses inside command sequences.
type Timings struct {
	PowerSettle time.Duration // ~i: after power on and after init
	MarkDelay   time.Duration // !: between capture and mark
}

func DefaultTimings() Timings {
	return Timings{
		PowerSettle: 100 * time.Millisecond,
		MarkDelay:   1000 * time.Millisecond,
	}
}

// Dispatcher reads frames from the port and answers each one in order.
type Dispatcher struct {
	port io.ReadWriter
	cam  Camera
	qs   Questions
	t    Timings
	conn *bus.Connection

	frames atomic.Uint32
	echoed atomic.Uint32
	naks   atomic.Uint32
}

// New builds a dispatcher. conn may be nil.
func New(port io.ReadWriter, cam Camera, qs Questions, t Timings, conn *bus.Connection) *Dispatcher {
	return &Dispatcher{port: port, cam: cam, qs: qs, t: t, conn: conn}
}

// Stats returns handled, echoed and NAKed frame counts.
func (d *Dispatcher) Stats() (frames, echoed, naks uint32) {
	return d.frames.Load(), d.echoed.Load(), d.naks.Load()
}

// Serve answers frames until ctx ends or the port fails. A closed port
// ends Serve without error.
func (d *Dispatcher) Serve(ctx context.Context) error {
	var f Frame
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := io.ReadFull(d.port, f[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return errcode.Wrap(errcode.IOError, "protocol.read", err)
		}
		reply := d.Handle(f)
		if _, err := d.port.Write(reply); err != nil {
			return errcode.Wrap(errcode.IOError, "protocol.write", err)
		}
	}
}

// Handle executes one frame and returns the reply bytes.
func (d *Dispatcher) Handle(f Frame) []byte {
	d.frames.Add(1)
	var reply []byte
	switch {
	case !f.Valid():
		d.echoed.Add(1)
		reply = append([]byte(nil), f[:]...)
	case f.Cmd() == CmdIndex && f.Arg() == SubCount:
		reply = d.count()
	case f.Cmd() == CmdIndex && f.Arg() == SubInit:
		reply = d.initialise()
	case f.Cmd() == CmdQuestion:
		reply = d.question(int(f.Arg()))
	case f.Cmd() == CmdTicks:
		reply = d.ticks(int(f.Arg()))
	case f.Cmd() == CmdCapture:
		reply = d.capture(int(f.Arg()))
	default:
		d.echoed.Add(1)
		reply = append([]byte(nil), f[:]...)
	}
	if len(reply) == 1 && reply[0] == NAK {
		d.naks.Add(1)
	}
	d.publish(f, reply)
	return reply
}

// ~+ : index the question file, reply with the count or a failure code.
func (d *Dispatcher) count() []byte {
	n, err := d.qs.Index()
	if err != nil {
		println("[protocol] index failed:", err.Error())
		switch errcode.Of(err) {
		case errcode.OpenFailed, errcode.NoMedia:
			return ReplyFail
		default:
			return ReplyNo
		}
	}
	return countReply(n)
}

// ~i : power the camera and program it.
func (d *Dispatcher) initialise() []byte {
	if err := d.cam.PowerOn(); err != nil {
		println("[protocol] power on failed:", err.Error())
		return ReplyNAK
	}
	time.Sleep(d.t.PowerSettle)
	if err := d.cam.Init(); err != nil {
		println("[protocol] init failed:", err.Error())
		return ReplyNAK
	}
	time.Sleep(d.t.PowerSettle)
	return ReplyInit
}

// q N : the whole zero-padded record buffer.
func (d *Dispatcher) question(i int) []byte {
	rec, err := d.qs.Question(i)
	if err != nil {
		println("[protocol] question", i, "failed:", err.Error())
		return ReplyNAK
	}
	return append([]byte(nil), rec[:]...)
}

// " N : tick count as one byte.
func (d *Dispatcher) ticks(i int) []byte {
	n, err := d.qs.TickCount(i)
	if err != nil {
		println("[protocol] ticks", i, "failed:", err.Error())
		return ReplyNAK
	}
	return []byte{byte(n)}
}

// ! N : photograph an answer to question N. The photo is named after the
// tick count before marking, then the question is marked.
func (d *Dispatcher) capture(i int) []byte {
	ticks, err := d.qs.TickCount(i)
	if err != nil {
		println("[protocol] capture", i, "failed:", err.Error())
		return ReplyNAK
	}
	name := CaptureName(i, ticks)
	err = d.cam.Run(func(op *camera.Op) error {
		if err := op.Capture(); err != nil {
			return err
		}
		time.Sleep(d.t.MarkDelay)
		if _, err := d.qs.Mark(i); err != nil {
			return err
		}
		_, err := op.Save(name)
		return err
	})
	if err != nil {
		println("[protocol] capture", i, "failed:", err.Error())
		return ReplyNAK
	}
	return ReplyACK
}

func (d *Dispatcher) publish(f Frame, reply []byte) {
	if d.conn == nil {
		return
	}
	hexReply := make([]byte, 0, 2*len(reply))
	for _, b := range reply {
		hexReply = conv.AppendHex8(hexReply, b)
	}
	d.conn.Publish(d.conn.NewMessage(TopicFrames, types.FrameEvent{
		Cmd:   string(f[:2]),
		Reply: string(hexReply),
		TS:    timex.NowMs(),
	}, false))
}
