package errcode

import (
	"errors"
	"fmt"
	"testing"
)

func TestOf(t *testing.T) {
	cause := errors.New("disk gone")
	cases := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, OK},
		{"bare code", Busy, Busy},
		{"wrapped E", &E{C: IOError, Op: "save", Err: cause}, IOError},
		{"fmt wrapped code", fmt.Errorf("index: %w", TableFull), TableFull},
		{"fmt wrapped E", fmt.Errorf("outer: %w", &E{C: NoMedia}), NoMedia},
		{"foreign", cause, Error},
	}
	for _, c := range cases {
		if got := Of(c.err); got != c.want {
			t.Errorf("%s: Of = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestEError(t *testing.T) {
	e := &E{C: OpenFailed, Op: "index", Msg: "q.txt", Err: errors.New("not found")}
	if got, want := e.Error(), "index: open_failed: q.txt: not found"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(e, e.Err) {
		t.Errorf("Unwrap lost the cause")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(IOError, "x", nil) != nil {
		t.Errorf("Wrap(nil) must be nil")
	}
	if !Is(Wrap(IOError, "x", errors.New("y")), IOError) {
		t.Errorf("Wrap lost code")
	}
}
