package questions

import (
	"strings"
	"testing"

	"quizcam-go/bus"
	"quizcam-go/errcode"
	"quizcam-go/services/storage"
	"quizcam-go/types"

	"github.com/stretchr/testify/require"
)

func newIndex(t *testing.T, content string) (*Index, *storage.MemFS) {
	t.Helper()
	fs := storage.NewMemFS()
	require.NoError(t, fs.WriteFile(DefaultFile, []byte(content)))
	return New(fs, "", nil), fs
}

func fileText(t *testing.T, fs *storage.MemFS) string {
	t.Helper()
	b, err := fs.ReadFile(DefaultFile)
	require.NoError(t, err)
	return string(b)
}

func TestIndex_Offsets(t *testing.T) {
	x, _ := newIndex(t, "one\ntwo\n\nfour")
	n, err := x.Index()
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, 4, x.Count())

	for i, want := range []int64{0, 4, 8, 9} {
		off, err := x.Offset(i + 1)
		require.NoError(t, err)
		require.Equal(t, want, off, "record %d", i+1)
	}

	q, err := x.Question(4)
	require.NoError(t, err)
	require.Equal(t, "four", q.Text(), "unterminated last line counts")

	q, err = x.Question(3)
	require.NoError(t, err)
	require.Equal(t, "\n", string(q.Bytes()))
}

func TestIndex_EmptyFile(t *testing.T) {
	x, _ := newIndex(t, "")
	n, err := x.Index()
	require.NoError(t, err)
	require.Zero(t, n)
	_, err = x.Question(1)
	require.True(t, errcode.Is(err, errcode.OutOfRange))
}

func TestIndex_MissingFileKeepsTable(t *testing.T) {
	x, _ := newIndex(t, "a\nb\n")
	_, err := x.Index()
	require.NoError(t, err)

	x.name = "gone.txt"
	_, err = x.Index()
	require.True(t, errcode.Is(err, errcode.OpenFailed))
	require.Equal(t, 2, x.Count())
}

func TestIndex_NoMedia(t *testing.T) {
	x := New(storage.NewVolume(nil), DefaultFile, nil)
	_, err := x.Index()
	require.True(t, errcode.Is(err, errcode.NoMedia))
}

func TestIndex_TableFull(t *testing.T) {
	x, _ := newIndex(t, strings.Repeat("q\n", MaxQuestions))
	n, err := x.Index()
	require.NoError(t, err)
	require.Equal(t, MaxQuestions, n)

	x, _ = newIndex(t, strings.Repeat("q\n", MaxQuestions+1))
	_, err = x.Index()
	require.True(t, errcode.Is(err, errcode.TableFull))
	require.Zero(t, x.Count())
}

func TestIndex_LineTooLong(t *testing.T) {
	ok := strings.Repeat("x", MaxLineLen-1) + "\n"
	x, _ := newIndex(t, ok+"short\n")
	n, err := x.Index()
	require.NoError(t, err)
	require.Equal(t, 2, n)

	x, _ = newIndex(t, "short\n"+strings.Repeat("x", MaxLineLen)+"\n")
	_, err = x.Index()
	require.True(t, errcode.Is(err, errcode.LineTooLong))
	require.Zero(t, x.Count())
}

func TestQuestion_TruncatesToRecord(t *testing.T) {
	long := strings.Repeat("y", 80)
	x, _ := newIndex(t, long+"\nnext\n")
	_, err := x.Index()
	require.NoError(t, err)

	q, err := x.Question(1)
	require.NoError(t, err)
	require.Equal(t, RecordSize-1, q.Len())
	require.Equal(t, byte(0), q[RecordSize-1])
	require.Equal(t, long[:RecordSize-1], q.Text())
}

func TestTickCount_CountsPastRecord(t *testing.T) {
	for _, tc := range []struct{ marks, want int }{
		{0, 0}, {1, 1}, {62, 62}, {63, 63}, {64, 64}, {70, MaxTicks},
	} {
		x, _ := newIndex(t, "first\n"+strings.Repeat("#", tc.marks)+"x\n")
		_, err := x.Index()
		require.NoError(t, err)

		ticks, err := x.TickCount(2)
		require.NoError(t, err)
		require.Equal(t, tc.want, ticks, "%d marks", tc.marks)
	}

	// A line made only of marks ends at the file end.
	x, _ := newIndex(t, strings.Repeat("#", 64))
	_, err := x.Index()
	require.NoError(t, err)
	ticks, err := x.TickCount(1)
	require.NoError(t, err)
	require.Equal(t, 64, ticks)
}

func TestMark_ShiftsAndStales(t *testing.T) {
	x, fs := newIndex(t, "alpha\nbeta\ngamma\n")
	_, err := x.Index()
	require.NoError(t, err)

	stale, err := x.Mark(2)
	require.NoError(t, err)
	require.Equal(t, 3, stale)
	require.Equal(t, "alpha\n#beta\ngamma\n", fileText(t, fs))

	ticks, err := x.TickCount(2)
	require.NoError(t, err)
	require.Equal(t, 1, ticks)

	// Record 3 moved by one byte and is refused until re-indexed.
	_, err = x.Question(3)
	require.True(t, errcode.Is(err, errcode.StaleIndex))
	_, err = x.Mark(3)
	require.True(t, errcode.Is(err, errcode.StaleIndex))

	// Earlier records are still valid.
	_, err = x.Mark(1)
	require.NoError(t, err)
	require.Equal(t, 2, x.StaleFrom())
	require.Equal(t, "#alpha\n#beta\ngamma\n", fileText(t, fs))

	_, err = x.Index()
	require.NoError(t, err)
	require.Zero(t, x.StaleFrom())
	q, err := x.Question(3)
	require.NoError(t, err)
	require.Equal(t, "gamma", q.Text())
}

func TestMark_LastLineWithoutNewline(t *testing.T) {
	x, fs := newIndex(t, "a\nlast")
	_, err := x.Index()
	require.NoError(t, err)

	stale, err := x.Mark(2)
	require.NoError(t, err)
	require.Equal(t, 3, stale)
	require.Equal(t, "a\n#last", fileText(t, fs), "no byte lost at end of file")

	_, err = x.Mark(2)
	require.NoError(t, err)
	ticks, err := x.TickCount(2)
	require.NoError(t, err)
	require.Equal(t, 2, ticks)
	require.Equal(t, "a\n##last", fileText(t, fs))
}

func TestMark_OutOfRange(t *testing.T) {
	x, fs := newIndex(t, "a\n")
	_, err := x.Index()
	require.NoError(t, err)

	for _, i := range []int{0, 2, -1} {
		_, err := x.Mark(i)
		require.True(t, errcode.Is(err, errcode.OutOfRange), "i=%d", i)
	}
	require.Equal(t, "a\n", fileText(t, fs))
}

func TestInsertByte_EndOfFile(t *testing.T) {
	fs := storage.NewMemFS()
	require.NoError(t, fs.WriteFile("f", []byte("ab")))
	f, err := fs.OpenRW("f")
	require.NoError(t, err)
	require.NoError(t, InsertByte(f, 2, '!'))
	require.Error(t, InsertByte(f, 9, '!'))
	require.NoError(t, f.Close())

	b, _ := fs.ReadFile("f")
	require.Equal(t, "ab!", string(b))
}

func TestInsertByte_OnDisk(t *testing.T) {
	fs := storage.NewDirFS(t.TempDir())
	f, err := fs.Create(DefaultFile)
	require.NoError(t, err)
	_, err = f.Write([]byte("x\ny\n"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	x := New(fs, DefaultFile, nil)
	_, err = x.Index()
	require.NoError(t, err)
	_, err = x.Mark(1)
	require.NoError(t, err)

	q, err := x.Question(1)
	require.NoError(t, err)
	require.Equal(t, "#x", q.Text())
}

func TestPublishes(t *testing.T) {
	b := bus.NewBus(4)
	fs := storage.NewMemFS()
	require.NoError(t, fs.WriteFile(DefaultFile, []byte("a\nb\n")))
	x := New(fs, DefaultFile, b.NewConnection("questions"))
	sub := b.NewConnection("obs").Subscribe(TopicMarked)

	_, err := x.Index()
	require.NoError(t, err)
	m, ok := b.Retained(TopicIndexed)
	require.True(t, ok)
	require.Equal(t, 2, m.Payload.(types.QuestionsIndexed).Count)

	_, err = x.Mark(1)
	require.NoError(t, err)
	ev := (<-sub.Channel()).Payload.(types.QuestionMarked)
	require.Equal(t, 1, ev.Index)
	require.Equal(t, 1, ev.Ticks)
	require.Equal(t, 2, ev.StaleFrom)
}
