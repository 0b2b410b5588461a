package fabric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/mpiflow/internal/engine"
)

func TestEnvelope_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		env  envelope
	}{
		{"empty p2p", envelope{Kind: kindP2P, Ctx: "w", Dtype: engine.Uint8}},
		{"payload", envelope{Kind: kindP2P, Ctx: "w.1#c", Src: 3, Tag: 42, Dtype: engine.Int64, Count: 2, Seq: 9, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}}},
		{"negative fields", envelope{Kind: kindRMAReply, Ctx: "w/w1", Tag: -1, Disp: -5, Code: engine.ErrRMASync, OpID: 77}},
		{"lock", envelope{Kind: kindLock, Ctx: "w/w2", Src: 1, Lock: engine.LockExclusive, OpID: 1 << 40}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := unmarshalEnvelope(tt.env.marshal())
			require.NoError(t, err)
			assert.Equal(t, tt.env, *got)
		})
	}
}

func TestEnvelope_Malformed(t *testing.T) {
	_, err := unmarshalEnvelope([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "p2p", kindP2P.String())
	assert.Equal(t, "unlock_ack", kindUnlockAck.String())
	assert.Equal(t, "unknown", kind(99).String())
}
