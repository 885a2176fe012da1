// Package button runs a capture and save for each press of the shutter
// button. Pictures are stored as <prefix>nnnn.jpg using the next free number.
package button

import (
	"context"
	"time"

	"quizcam-go/bus"
	"quizcam-go/errcode"
	"quizcam-go/services/camera"
	"quizcam-go/services/hal"
	"quizcam-go/services/storage"
	"quizcam-go/types"
	"quizcam-go/x/conv"
	"quizcam-go/x/timex"
)

var TopicState = bus.T("button", "state")

// MaxIndex bounds the four-digit file counter.
const MaxIndex = 9999

// Camera is the part of the engine the button drives.
type Camera interface {
	Status() types.CameraStatus
	TryRun(fn func(op *camera.Op) error) error
}

type Service struct {
	w      *hal.IRQWatcher
	cam    Camera
	media  storage.FS
	prefix string
	conn   *bus.Connection

	next  int
	shots chan string // saved names, for observers
}

// New watches pin (active low) with the given debounce.
func New(pin hal.IRQPin, debounce time.Duration, cam Camera, media storage.FS, prefix string, conn *bus.Connection) *Service {
	return &Service{
		w:      hal.NewIRQWatcher(pin, hal.EdgeBoth, debounce, true),
		cam:    cam,
		media:  media,
		prefix: prefix,
		conn:   conn,
		shots:  make(chan string, 4),
	}
}

// Shots reports the names of pictures taken by presses.
func (s *Service) Shots() <-chan string { return s.shots }

// Name formats the file name for counter n.
func Name(prefix string, n int) string {
	b := make([]byte, 0, len(prefix)+8)
	b = append(b, prefix...)
	b = conv.AppendPadded(b, n, 4)
	b = append(b, ".jpg"...)
	return string(b)
}

// nextFree finds the first unused name at or after s.next. Only a missing
// file counts as unused; any other open failure aborts the press.
func (s *Service) nextFree() (string, error) {
	for ; s.next <= MaxIndex; s.next++ {
		name := Name(s.prefix, s.next)
		f, err := s.media.Open(name)
		if err != nil {
			if errcode.Is(err, errcode.OpenFailed) {
				return name, nil
			}
			return "", err
		}
		_ = f.Close()
	}
	return "", &errcode.E{C: errcode.TableFull, Op: "button.next"}
}

// Press runs one capture and save. It is skipped while the camera is not
// ready or another operation holds the token.
func (s *Service) Press() (string, error) {
	st := s.cam.Status()
	if !st.Powered || !st.Initialised {
		return "", &errcode.E{C: errcode.NotInitialised, Op: "button.press"}
	}
	var name string
	err := s.cam.TryRun(func(op *camera.Op) error {
		var err error
		if name, err = s.nextFree(); err != nil {
			return err
		}
		if err := op.Capture(); err != nil {
			return err
		}
		_, err = op.Save(name)
		return err
	})
	if err != nil {
		return "", err
	}
	s.next++
	return name, nil
}

func (s *Service) publish(pressed bool) {
	if s.conn == nil {
		return
	}
	s.conn.Publish(s.conn.NewMessage(TopicState, types.ButtonValue{Pressed: pressed, TS: timex.NowMs()}, false))
}

// Start installs the watcher and handles presses until ctx ends.
func (s *Service) Start(ctx context.Context) error {
	if err := s.w.Start(ctx); err != nil {
		return err
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-s.w.Events():
				s.publish(ev.Level)
				if !ev.Level {
					continue
				}
				name, err := s.Press()
				if err != nil {
					println("[button] press ignored:", err.Error())
					continue
				}
				println("[button] saved", name)
				select {
				case s.shots <- name:
				default:
				}
			}
		}
	}()
	return nil
}
