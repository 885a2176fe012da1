package protocol

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"quizcam-go/drivers/ov2640"
	"quizcam-go/services/camera"
	"quizcam-go/services/hal"
	"quizcam-go/services/hal/sim"
	"quizcam-go/services/questions"
	"quizcam-go/services/storage"

	"github.com/stretchr/testify/require"
)

// syncDVP completes a one-shot transfer immediately.
type syncDVP struct {
	frame []byte
	cfg   hal.DVPConfig
	on    bool
}

func (d *syncDVP) Start(cfg hal.DVPConfig) error { d.cfg, d.on = cfg, true; return nil }
func (d *syncDVP) Stop() error                   { d.on = false; return nil }

func (d *syncDVP) StartOneShot(size int, a, b []byte) error {
	n := copy(a[:size], d.frame)
	copy(b[:size], d.frame[n:])
	d.cfg.TransferEnd()
	for i := 0; i < camera.FrameSyncThreshold && d.on; i++ {
		d.cfg.FrameEnd()
	}
	return nil
}

type fixture struct {
	d      *Dispatcher
	media  *storage.MemFS
	sensor *sim.Sensor
}

func newFixture(t *testing.T, qtxt string) *fixture {
	t.Helper()
	media := storage.NewMemFS()
	if qtxt != "" {
		require.NoError(t, media.WriteFile(questions.DefaultFile, []byte(qtxt)))
	}
	clock := &sim.Clock{}
	sensor := sim.NewSensor(clock.Running)
	eng := camera.New(camera.Config{
		Sensor:    ov2640.New(sensor),
		DVP:       &syncDVP{frame: []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}},
		XCLK:      clock,
		Reset:     sim.NewPin(1),
		PowerDown: sim.NewPin(2),
		Media:     media,
		Store:     camera.NewFrameStore(64),
	})
	qs := questions.New(media, questions.DefaultFile, nil)
	return &fixture{
		d:      New(nil, eng, qs, Timings{}, nil),
		media:  media,
		sensor: sensor,
	}
}

func frame(cmd, arg byte) Frame { return Frame{cmd, arg, CR, LF} }

// record pads text to a full record buffer.
func record(text string) []byte {
	b := make([]byte, questions.RecordSize)
	copy(b, text)
	return b
}

func (fx *fixture) file(t *testing.T, name string) string {
	t.Helper()
	b, err := fx.media.ReadFile(name)
	require.NoError(t, err)
	return string(b)
}

func TestEcho(t *testing.T) {
	fx := newFixture(t, "")
	require.Equal(t, []byte("abcd"), fx.d.Handle(Frame{'a', 'b', 'c', 'd'}))
	require.Equal(t, []byte{'z', 'z', CR, LF}, fx.d.Handle(frame('z', 'z')))
	require.Equal(t, []byte{'~', 'x', CR, LF}, fx.d.Handle(frame('~', 'x')))
	_, echoed, _ := fx.d.Stats()
	require.Equal(t, uint32(3), echoed)
}

func TestCount(t *testing.T) {
	fx := newFixture(t, "one\ntwo\nthree\n")
	require.Equal(t, []byte{3, CR, LF}, fx.d.Handle(frame(CmdIndex, SubCount)))

	fx = newFixture(t, "")
	require.Equal(t, ReplyFail, fx.d.Handle(frame(CmdIndex, SubCount)))

	fx = newFixture(t, strings.Repeat("q\n", questions.MaxQuestions+1))
	require.Equal(t, ReplyNo, fx.d.Handle(frame(CmdIndex, SubCount)))
}

func TestInitialise(t *testing.T) {
	fx := newFixture(t, "")
	require.Equal(t, ReplyInit, fx.d.Handle(frame(CmdIndex, SubInit)))

	fx = newFixture(t, "")
	fx.sensor.Fault = func(bank, reg, val byte) bool { return bank == 1 && reg == 0x12 }
	require.Equal(t, ReplyNAK, fx.d.Handle(frame(CmdIndex, SubInit)))
}

func TestQuestionAndTicks(t *testing.T) {
	fx := newFixture(t, "first\n##second\n")
	fx.d.Handle(frame(CmdIndex, SubCount))

	require.Equal(t, record("##second\n"), fx.d.Handle(frame(CmdQuestion, 2)))
	require.Equal(t, []byte{2}, fx.d.Handle(frame(CmdTicks, 2)))
	require.Equal(t, []byte{0}, fx.d.Handle(frame(CmdTicks, 1)))

	require.Equal(t, ReplyNAK, fx.d.Handle(frame(CmdQuestion, 3)))
	require.Equal(t, ReplyNAK, fx.d.Handle(frame(CmdTicks, 0)))
	_, _, naks := fx.d.Stats()
	require.Equal(t, uint32(2), naks)
}

func TestCapture_MarksAndSaves(t *testing.T) {
	fx := newFixture(t, "one\ntwo\n")
	fx.d.Handle(frame(CmdIndex, SubCount))
	require.Equal(t, ReplyInit, fx.d.Handle(frame(CmdIndex, SubInit)))

	require.Equal(t, ReplyACK, fx.d.Handle(frame(CmdCapture, 1)))
	require.Equal(t, "#one\ntwo\n", fx.file(t, questions.DefaultFile))
	require.Equal(t, "\xFF\xD8\x01\x02\xFF\xD9", fx.file(t, "Q01-00.jpg"))

	require.Equal(t, ReplyACK, fx.d.Handle(frame(CmdCapture, 1)))
	require.Equal(t, "##one\ntwo\n", fx.file(t, questions.DefaultFile))
	require.Equal(t, []string{"Q01-00.jpg", "Q01-01.jpg", questions.DefaultFile}, fx.media.Names())

	// Question 2 moved and needs a fresh index first.
	require.Equal(t, ReplyNAK, fx.d.Handle(frame(CmdCapture, 2)))
	fx.d.Handle(frame(CmdIndex, SubCount))
	require.Equal(t, ReplyACK, fx.d.Handle(frame(CmdCapture, 2)))
	require.Equal(t, "##one\n#two\n", fx.file(t, questions.DefaultFile))
}

func TestCapture_NotInitialisedLeavesFileAlone(t *testing.T) {
	fx := newFixture(t, "one\n")
	fx.d.Handle(frame(CmdIndex, SubCount))

	require.Equal(t, ReplyNAK, fx.d.Handle(frame(CmdCapture, 1)))
	require.Equal(t, "one\n", fx.file(t, questions.DefaultFile))
	require.Equal(t, []string{questions.DefaultFile}, fx.media.Names())
}

func TestCaptureName(t *testing.T) {
	require.Equal(t, "Q03-12.jpg", CaptureName(3, 12))
	require.Equal(t, "Q50-00.jpg", CaptureName(50, 0))
}

type rw struct {
	in  *bytes.Reader
	out bytes.Buffer
}

func (p *rw) Read(b []byte) (int, error)  { return p.in.Read(b) }
func (p *rw) Write(b []byte) (int, error) { return p.out.Write(b) }

func TestServe(t *testing.T) {
	fx := newFixture(t, "a\nb\n")
	in := []byte{CmdIndex, SubCount, CR, LF, CmdQuestion, 1, CR, LF, 'x', 'y'}
	port := &rw{in: bytes.NewReader(in)}
	fx.d.port = port

	require.NoError(t, fx.d.Serve(context.Background()))
	require.Equal(t, append([]byte{2, CR, LF}, record("a\n")...), port.out.Bytes(), "trailing partial frame ignored")
}

func TestServe_Cancelled(t *testing.T) {
	fx := newFixture(t, "")
	fx.d.port = &rw{in: bytes.NewReader(nil)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, fx.d.Serve(ctx), context.Canceled)
}
