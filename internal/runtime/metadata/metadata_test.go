package metadata

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneDoesNotAlias(t *testing.T) {
	original := Metadata{"a": "1", "b": "2"}
	clone := original.Clone()
	clone["a"] = "changed"

	assert.Equal(t, "1", original["a"])
	assert.Len(t, clone, len(original))
}

func TestCloneEmpty(t *testing.T) {
	var m Metadata
	cloned := m.Clone()
	require.NotNil(t, cloned)
	assert.Empty(t, cloned)
}

func TestWithLeavesBaseUntouched(t *testing.T) {
	base := Metadata{"foo": "bar"}
	enriched := base.With("baz", "qux")
	assert.NotContains(t, base, "baz")
	assert.Equal(t, "qux", enriched["baz"])
}

func TestNewIgnoresDanglingKey(t *testing.T) {
	md := New("a", "1", "b")
	assert.Equal(t, Metadata{"a": "1"}, md)
}

func TestForEnvelope(t *testing.T) {
	md := ForEnvelope("job-1", "put", 2, 0)
	assert.Equal(t, "job-1", md[KeyJob])
	assert.Equal(t, "put", md[KeyKind])

	src, ok := md.Rank(KeySource)
	require.True(t, ok)
	assert.Equal(t, int32(2), src)

	dst, ok := md.Rank(KeyDest)
	require.True(t, ok)
	assert.Equal(t, int32(0), dst)
}

func TestRankRejectsGarbage(t *testing.T) {
	_, ok := Metadata{KeySource: "two"}.Rank(KeySource)
	assert.False(t, ok)
	_, ok = Metadata{}.Rank(KeySource)
	assert.False(t, ok)
}

func TestWatermillRoundTrip(t *testing.T) {
	md := ForEnvelope("j", "p2p", 1, 3)
	wm := ToWatermill(md)
	assert.Equal(t, "p2p", wm.Get(KeyKind))
	assert.Equal(t, md, FromWatermill(wm))

	assert.Equal(t, message.Metadata{}, ToWatermill(nil))
	assert.Equal(t, Metadata{}, FromWatermill(nil))
}
