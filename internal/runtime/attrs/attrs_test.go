package attrs

import (
	"os"
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/mpiflow/internal/engine"
	errspkg "github.com/drblury/mpiflow/internal/runtime/errors"
)

func TestMain(m *testing.M) {
	restore := errspkg.SetViolationHandler(errspkg.PanicOnViolation)
	code := m.Run()
	restore()
	os.Exit(code)
}

type callbacks struct {
	copyFn   engine.CopyAttrFunc
	deleteFn engine.DeleteAttrFunc
}

// memFamily keeps attributes in maps and runs the callbacks the way an
// engine does on duplicate, overwrite, delete and free.
type memFamily struct {
	next  engine.Keyval
	keys  map[engine.Keyval]callbacks
	attrs map[engine.Comm]map[engine.Keyval]unsafe.Pointer
	fail  engine.Code
}

func newMemFamily() *memFamily {
	return &memFamily{
		next:  100,
		keys:  map[engine.Keyval]callbacks{},
		attrs: map[engine.Comm]map[engine.Keyval]unsafe.Pointer{},
	}
}

func (f *memFamily) Name() string                        { return "mem" }
func (f *memFamily) ErrorString(code engine.Code) string { return engine.DescribeCode(code) }

func (f *memFamily) CreateKeyval(copyFn engine.CopyAttrFunc, deleteFn engine.DeleteAttrFunc, key *engine.Keyval, _ any) engine.Code {
	if f.fail != engine.Success {
		return f.fail
	}
	f.next++
	f.keys[f.next] = callbacks{copyFn: copyFn, deleteFn: deleteFn}
	*key = f.next
	return engine.Success
}

func (f *memFamily) FreeKeyval(key *engine.Keyval) engine.Code {
	if _, ok := f.keys[*key]; !ok {
		return engine.ErrKeyval
	}
	delete(f.keys, *key)
	*key = engine.KeyvalInvalid
	return engine.Success
}

func (f *memFamily) SetAttr(c engine.Comm, key engine.Keyval, value unsafe.Pointer) engine.Code {
	cb, ok := f.keys[key]
	if !ok {
		return engine.ErrKeyval
	}
	if f.attrs[c] == nil {
		f.attrs[c] = map[engine.Keyval]unsafe.Pointer{}
	}
	if old, ok := f.attrs[c][key]; ok {
		cb.deleteFn(int32(c), key, old, nil)
	}
	f.attrs[c][key] = value
	return engine.Success
}

func (f *memFamily) GetAttr(c engine.Comm, key engine.Keyval, value *unsafe.Pointer, found *bool) engine.Code {
	v, ok := f.attrs[c][key]
	*value, *found = v, ok
	return engine.Success
}

func (f *memFamily) DeleteAttr(c engine.Comm, key engine.Keyval) engine.Code {
	v, ok := f.attrs[c][key]
	if !ok {
		return engine.ErrKeyval
	}
	f.keys[key].deleteFn(int32(c), key, v, nil)
	delete(f.attrs[c], key)
	return engine.Success
}

func (f *memFamily) dup(from, to engine.Comm) {
	for key, v := range f.attrs[from] {
		var (
			out  unsafe.Pointer
			flag bool
		)
		f.keys[key].copyFn(int32(from), key, nil, v, &out, &flag)
		if flag {
			if f.attrs[to] == nil {
				f.attrs[to] = map[engine.Keyval]unsafe.Pointer{}
			}
			f.attrs[to][key] = out
		}
	}
}

func (f *memFamily) free(c engine.Comm) {
	for key, v := range f.attrs[c] {
		f.keys[key].deleteFn(int32(c), key, v, nil)
	}
	delete(f.attrs, c)
}

type counter struct {
	N int
}

type tags struct {
	Names []string
}

func (t tags) Clone() tags {
	return tags{Names: append([]string(nil), t.Names...)}
}

type session struct {
	NoDup
	ID string
}

type guarded struct {
	sync.Mutex
	Hits int
}

type released struct {
	log *[]string
	Tag string
}

func (r *released) Release() { *r.log = append(*r.log, r.Tag) }

func TestDuplicable(t *testing.T) {
	assert.True(t, Duplicable[int]())
	assert.True(t, Duplicable[counter]())
	assert.True(t, Duplicable[tags]())
	assert.False(t, Duplicable[session]())
	assert.False(t, Duplicable[guarded]())
}

func TestCreateGetDelete(t *testing.T) {
	fam := newMemFamily()
	key, err := CreateKeyval[counter, engine.Comm](fam)
	require.NoError(t, err)
	defer func() { require.NoError(t, key.Close()) }()

	_, found, err := Get[counter](fam, engine.Comm(5), key)
	require.NoError(t, err)
	assert.False(t, found)

	box, err := Create(fam, engine.Comm(5), key, counter{N: 3})
	require.NoError(t, err)

	got, found, err := Get[counter](fam, engine.Comm(5), key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Same(t, box, got, "Get must not copy")
	got.N++
	assert.Equal(t, 4, box.N)

	require.NoError(t, Delete[counter](fam, engine.Comm(5), key))
	_, found, err = Get[counter](fam, engine.Comm(5), key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDuplicateCopiesCopyableValues(t *testing.T) {
	fam := newMemFamily()
	key, err := CreateKeyval[tags, engine.Comm](fam)
	require.NoError(t, err)

	orig, err := Create(fam, engine.Comm(1), key, tags{Names: []string{"a"}})
	require.NoError(t, err)
	fam.dup(1, 2)

	dup, found, err := Get[tags](fam, engine.Comm(2), key)
	require.NoError(t, err)
	require.True(t, found)
	assert.NotSame(t, orig, dup)
	assert.Equal(t, []string{"a"}, dup.Names)

	dup.Names[0] = "b"
	assert.Equal(t, "a", orig.Names[0], "Clone must deep copy")
}

func TestDuplicateDropsNonCopyableValues(t *testing.T) {
	fam := newMemFamily()
	sessions, err := CreateKeyval[session, engine.Comm](fam)
	require.NoError(t, err)
	locks, err := CreateKeyval[guarded, engine.Comm](fam)
	require.NoError(t, err)

	_, err = Create(fam, engine.Comm(1), sessions, session{ID: "s1"})
	require.NoError(t, err)
	_, err = Create(fam, engine.Comm(1), locks, guarded{Hits: 1})
	require.NoError(t, err)
	fam.dup(1, 2)

	_, found, err := Get[session](fam, engine.Comm(2), sessions)
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = Get[guarded](fam, engine.Comm(2), locks)
	require.NoError(t, err)
	assert.False(t, found)

	s, found, err := Get[session](fam, engine.Comm(1), sessions)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "s1", s.ID)
}

func TestReleaseRunsOnOverwriteDeleteAndFree(t *testing.T) {
	var log []string
	fam := newMemFamily()
	key, err := CreateKeyval[released, engine.Comm](fam)
	require.NoError(t, err)

	_, err = Create(fam, engine.Comm(1), key, released{log: &log, Tag: "first"})
	require.NoError(t, err)
	_, err = Create(fam, engine.Comm(1), key, released{log: &log, Tag: "second"})
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, log)

	require.NoError(t, Delete[released](fam, engine.Comm(1), key))
	assert.Equal(t, []string{"first", "second"}, log)

	_, err = Create(fam, engine.Comm(3), key, released{log: &log, Tag: "third"})
	require.NoError(t, err)
	fam.free(3)
	assert.Equal(t, []string{"first", "second", "third"}, log)
}

func TestCreateKeyvalEngineFailure(t *testing.T) {
	fam := newMemFamily()
	fam.fail = engine.ErrIntern
	key, err := CreateKeyval[int, engine.Comm](fam)
	var engErr *errspkg.EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, engine.ErrIntern, engErr.Code)
	assert.Contains(t, engErr.Op, "create keyval")
	assert.True(t, key.IsNull())
}

func TestUniqueKeyValClose(t *testing.T) {
	fam := newMemFamily()
	key, err := CreateKeyval[int, engine.Comm](fam)
	require.NoError(t, err)
	raw := key.Raw()
	require.NoError(t, key.Close())
	assert.True(t, key.IsNull())
	assert.NotContains(t, fam.keys, raw)
	assert.NoError(t, key.Close())
}

func TestPredefinedKeysAreSystem(t *testing.T) {
	k := Predefined[int32](engine.KeyTagUB)
	assert.Equal(t, engine.KeyTagUB, k.Raw())
	assert.True(t, Kind{}.IsSystem(engine.KeyWinDispUnit))
	assert.False(t, Kind{}.IsSystem(engine.Keyval(101)))
}
