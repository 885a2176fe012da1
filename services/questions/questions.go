// Package questions indexes a newline-separated question file and keeps a
// tally of marks at the start of each line.
//
// Index records the byte offset of every line. A mark is one TickMark byte
// inserted at the start of a line by shifting the rest of the file up by one
// byte, so every line after the marked one moves. Those records become stale
// and are refused with errcode.StaleIndex until the file is indexed again.
package questions

import (
	"bufio"
	"errors"
	"io"
	"sync"

	"quizcam-go/bus"
	"quizcam-go/errcode"
	"quizcam-go/services/storage"
	"quizcam-go/types"
	"quizcam-go/x/conv"
	"quizcam-go/x/timex"
)

const (
	DefaultFile = "q.txt"

	MaxQuestions = 50
	// MaxLineLen bounds one line including its newline.
	MaxLineLen = 100
	// RecordSize is the record buffer; at most RecordSize-1 bytes of a line
	// are returned.
	RecordSize = 64

	TickMark = '#'
	// MaxTicks caps TickCount.
	MaxTicks = 64
)

// Bus topics.
var (
	TopicIndexed = bus.T("questions", "indexed") // retained types.QuestionsIndexed
	TopicMarked  = bus.T("questions", "marked")  // types.QuestionMarked
)

// Record is one question line, NUL padded.
type Record [RecordSize]byte

// Len is the number of bytes before the first NUL.
func (r *Record) Len() int {
	for i, b := range r {
		if b == 0 {
			return i
		}
	}
	return RecordSize
}

// Bytes returns the populated prefix, including any trailing newline.
func (r *Record) Bytes() []byte { return r[:r.Len()] }

// Text is the record without its line terminator.
func (r *Record) Text() string {
	b := r.Bytes()
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return string(b)
}

// Index is the question table for one file.
type Index struct {
	mu   sync.Mutex
	fs   storage.FS
	name string
	conn *bus.Connection

	offsets   [MaxQuestions + 1]int64 // 1-based
	count     int
	staleFrom int // first stale record, 0 when none
}

// New creates an empty table over name in fs. conn may be nil.
func New(fs storage.FS, name string, conn *bus.Connection) *Index {
	if name == "" {
		name = DefaultFile
	}
	return &Index{fs: fs, name: name, conn: conn}
}

func (x *Index) File() string { return x.name }

// Count returns the number of indexed questions.
func (x *Index) Count() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.count
}

// StaleFrom reports the first record invalidated by a mark since the last
// Index, or 0.
func (x *Index) StaleFrom() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.staleFrom
}

// Index rebuilds the table. A final line without a newline counts. When
// the file cannot be opened the previous table is kept; any other failure
// leaves the table empty.
func (x *Index) Index() (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	f, err := x.fs.Open(x.name)
	if err != nil {
		return 0, openErr("questions.index", x.name, err)
	}
	defer f.Close()

	x.count = 0
	x.staleFrom = 0

	r := bufio.NewReaderSize(f, MaxLineLen)
	var off int64
	count := 0
	for {
		line, err := r.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			return 0, &errcode.E{C: errcode.LineTooLong, Op: "questions.index", Msg: "line " + conv.Itoa(count+1)}
		}
		if err != nil && err != io.EOF {
			return 0, &errcode.E{C: errcode.IOError, Op: "questions.index", Err: err}
		}
		if len(line) > 0 {
			if count == MaxQuestions {
				return 0, &errcode.E{C: errcode.TableFull, Op: "questions.index"}
			}
			count++
			x.offsets[count] = off
			off += int64(len(line))
		}
		if err == io.EOF {
			break
		}
	}

	x.count = count
	x.publish(TopicIndexed, types.QuestionsIndexed{File: x.name, Count: count, TS: timex.NowMs()}, true)
	return count, nil
}

// Offset returns the start of record i.
func (x *Index) Offset(i int) (int64, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.check("questions.offset", i); err != nil {
		return 0, err
	}
	return x.offsets[i], nil
}

func (x *Index) check(op string, i int) error {
	if i < 1 || i > x.count {
		return &errcode.E{C: errcode.OutOfRange, Op: op, Msg: conv.Itoa(i)}
	}
	if x.staleFrom != 0 && i >= x.staleFrom {
		return &errcode.E{C: errcode.StaleIndex, Op: op, Msg: conv.Itoa(i)}
	}
	return nil
}

// Question reads record i: the line from its offset up to and including
// the newline, truncated to RecordSize-1 bytes.
func (x *Index) Question(i int) (Record, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.read("questions.get", i)
}

func (x *Index) read(op string, i int) (Record, error) {
	var rec Record
	f, r, err := x.open(op, i, RecordSize)
	if err != nil {
		return rec, err
	}
	defer f.Close()

	for n := 0; n < RecordSize-1; n++ {
		b, err := r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rec, errcode.Wrap(errcode.IOError, op, err)
		}
		rec[n] = b
		if b == '\n' {
			break
		}
	}
	return rec, nil
}

// open positions a reader at the start of record i.
func (x *Index) open(op string, i, size int) (storage.File, *bufio.Reader, error) {
	if err := x.check(op, i); err != nil {
		return nil, nil, err
	}
	f, err := x.fs.Open(x.name)
	if err != nil {
		return nil, nil, openErr(op, x.name, err)
	}
	if _, err := f.Seek(x.offsets[i], io.SeekStart); err != nil {
		_ = f.Close()
		return nil, nil, errcode.Wrap(errcode.IOError, op, err)
	}
	return f, bufio.NewReaderSize(f, size), nil
}

// ticks counts leading TickMark bytes on the file, so counts past the
// record buffer are still seen.
func (x *Index) ticks(op string, i int) (int, error) {
	f, r, err := x.open(op, i, MaxTicks+1)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	for n < MaxTicks {
		b, err := r.ReadByte()
		if err == io.EOF || (err == nil && b != TickMark) {
			break
		}
		if err != nil {
			return 0, errcode.Wrap(errcode.IOError, op, err)
		}
		n++
	}
	return n, nil
}

// TickCount returns the number of marks on question i, at most MaxTicks.
func (x *Index) TickCount(i int) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.ticks("questions.ticks", i)
}

// Mark inserts one TickMark at the start of question i. Records after i are
// stale on return; the first stale record number is returned (Count()+1
// when i is the last question).
func (x *Index) Mark(i int) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.check("questions.mark", i); err != nil {
		return 0, err
	}
	f, err := x.fs.OpenRW(x.name)
	if err != nil {
		return 0, openErr("questions.mark", x.name, err)
	}
	if err := InsertByte(f, x.offsets[i], TickMark); err != nil {
		_ = f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, errcode.Wrap(errcode.IOError, "questions.mark", err)
	}

	if x.staleFrom == 0 || i+1 < x.staleFrom {
		x.staleFrom = i + 1
	}
	stale := i + 1
	if ticks, err := x.ticks("questions.mark", i); err == nil {
		x.publish(TopicMarked, types.QuestionMarked{Index: i, Ticks: ticks, StaleFrom: stale, TS: timex.NowMs()}, false)
	}
	return stale, nil
}

// InsertByte inserts b at offset at, shifting the rest of f up by one byte
// in a single pass. Each byte is read before the position it occupies is
// overwritten.
func InsertByte(f storage.File, at int64, b byte) error {
	const op = "questions.insert"
	size, err := storage.Size(f)
	if err != nil {
		return errcode.Wrap(errcode.IOError, op, err)
	}
	if at < 0 || at > size {
		return &errcode.E{C: errcode.OutOfRange, Op: op}
	}
	if _, err := f.Seek(at, io.SeekStart); err != nil {
		return errcode.Wrap(errcode.IOError, op, err)
	}

	var one [1]byte
	// lookahead reads the byte under the cursor and steps back so the
	// following write lands on it.
	lookahead := func() (byte, bool, error) {
		n, err := f.Read(one[:])
		if n == 0 {
			if err == nil || err == io.EOF {
				return 0, false, nil
			}
			return 0, false, err
		}
		if _, err := f.Seek(-1, io.SeekCurrent); err != nil {
			return 0, false, err
		}
		return one[0], true, nil
	}
	put := func(c byte) error {
		one[0] = c
		_, err := f.Write(one[:])
		return err
	}

	next, ok, err := lookahead()
	if err != nil {
		return errcode.Wrap(errcode.IOError, op, err)
	}
	if err := put(b); err != nil {
		return errcode.Wrap(errcode.IOError, op, err)
	}
	for ok {
		cur := next
		if next, ok, err = lookahead(); err != nil {
			return errcode.Wrap(errcode.IOError, op, err)
		}
		if err := put(cur); err != nil {
			return errcode.Wrap(errcode.IOError, op, err)
		}
	}
	return nil
}

// openErr keeps NoMedia visible and files everything else as OpenFailed.
func openErr(op, name string, err error) error {
	if errcode.Of(err) == errcode.NoMedia {
		return err
	}
	return &errcode.E{C: errcode.OpenFailed, Op: op, Msg: name, Err: err}
}

func (x *Index) publish(t bus.Topic, payload any, retained bool) {
	if x.conn == nil {
		return
	}
	x.conn.Publish(x.conn.NewMessage(t, payload, retained))
}
