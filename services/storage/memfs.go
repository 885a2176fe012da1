package storage

import (
	"io"
	"sort"
	"sync"

	"quizcam-go/errcode"
)

// MemFS keeps files in RAM. Contents are lost on reset.
type MemFS struct {
	mu    sync.Mutex
	files map[string]*memData
}

type memData struct {
	mu sync.Mutex
	b  []byte
}

func NewMemFS() *MemFS { return &MemFS{files: map[string]*memData{}} }

// WriteFile replaces name with data.
func (m *MemFS) WriteFile(name string, data []byte) error {
	if err := ValidName(name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = &memData{b: append([]byte(nil), data...)}
	return nil
}

// ReadFile returns a copy of name's contents.
func (m *MemFS) ReadFile(name string) ([]byte, error) {
	m.mu.Lock()
	d, ok := m.files[name]
	m.mu.Unlock()
	if !ok {
		return nil, &errcode.E{C: errcode.OpenFailed, Op: "storage.read_file", Msg: name}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.b...), nil
}

// Names lists files in lexical order.
func (m *MemFS) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.files))
	for n := range m.files {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (m *MemFS) lookup(op, name string, create, truncate bool) (*memData, error) {
	if err := ValidName(name); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.files[name]
	switch {
	case !ok && !create:
		return nil, &errcode.E{C: errcode.OpenFailed, Op: op, Msg: name}
	case !ok:
		d = &memData{}
		m.files[name] = d
	case truncate:
		d.mu.Lock()
		d.b = d.b[:0]
		d.mu.Unlock()
	}
	return d, nil
}

func (m *MemFS) Open(name string) (File, error) {
	d, err := m.lookup("storage.open", name, false, false)
	if err != nil {
		return nil, err
	}
	return &memFile{d: d}, nil
}

func (m *MemFS) OpenRW(name string) (File, error) {
	d, err := m.lookup("storage.open_rw", name, false, false)
	if err != nil {
		return nil, err
	}
	return &memFile{d: d, writable: true}, nil
}

func (m *MemFS) Create(name string) (File, error) {
	d, err := m.lookup("storage.create", name, true, true)
	if err != nil {
		return nil, err
	}
	return &memFile{d: d, writable: true}, nil
}

func (m *MemFS) Append(name string) (File, error) {
	d, err := m.lookup("storage.append", name, true, false)
	if err != nil {
		return nil, err
	}
	f := &memFile{d: d, writable: true}
	d.mu.Lock()
	f.pos = int64(len(d.b))
	d.mu.Unlock()
	return f, nil
}

type memFile struct {
	d        *memData
	pos      int64
	writable bool
	closed   bool
}

var errClosed = &errcode.E{C: errcode.IOError, Op: "storage.file", Msg: "closed"}

func (f *memFile) Read(p []byte) (int, error) {
	if f.closed {
		return 0, errClosed
	}
	f.d.mu.Lock()
	defer f.d.mu.Unlock()
	if f.pos >= int64(len(f.d.b)) {
		return 0, io.EOF
	}
	n := copy(p, f.d.b[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *memFile) Write(p []byte) (int, error) {
	if f.closed {
		return 0, errClosed
	}
	if !f.writable {
		return 0, &errcode.E{C: errcode.IOError, Op: "storage.write", Msg: "read-only"}
	}
	f.d.mu.Lock()
	defer f.d.mu.Unlock()
	end := f.pos + int64(len(p))
	if old := int64(len(f.d.b)); end > old {
		if end > int64(cap(f.d.b)) {
			nb := make([]byte, end, end*2)
			copy(nb, f.d.b)
			f.d.b = nb
		} else {
			f.d.b = f.d.b[:end]
		}
		if f.pos > old {
			clear(f.d.b[old:f.pos])
		}
	}
	copy(f.d.b[f.pos:], p)
	f.pos = end
	return len(p), nil
}

func (f *memFile) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, errClosed
	}
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = f.pos
	case io.SeekEnd:
		f.d.mu.Lock()
		base = int64(len(f.d.b))
		f.d.mu.Unlock()
	default:
		return 0, errcode.InvalidParams
	}
	n := base + offset
	if n < 0 {
		return 0, &errcode.E{C: errcode.InvalidParams, Op: "storage.seek", Msg: "negative position"}
	}
	f.pos = n
	return n, nil
}

func (f *memFile) Close() error {
	f.closed = true
	return nil
}
