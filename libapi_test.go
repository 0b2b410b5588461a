package mpiflow

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/drblury/mpiflow/transport/transports"
)

func TestMain(m *testing.M) {
	restore := SetViolationHandler(PanicOnViolation)
	code := m.Run()
	restore()
	os.Exit(code)
}

func TestRunLocalThroughExports(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := RunLocal(ctx, 3, func(rt *Runtime) error {
		rank, err := rt.World().Rank()
		if err != nil {
			return err
		}
		sum, err := AllReduceValue(rt.World(), Sum[int32](), rank)
		if err != nil {
			return err
		}
		assert.Equal(t, int32(3), sum)

		all, err := AllGather(rt.World(), float64(rank))
		if err != nil {
			return err
		}
		assert.Equal(t, []float64{0, 1, 2}, all)
		return nil
	}, WithJobID(NewJobID()), WithLogger(NewTextServiceLogger(os.Stderr, slog.LevelError)))
	require.NoError(t, err)
}

func TestErrorExports(t *testing.T) {
	_, err := Init(nil)
	assert.True(t, errors.Is(err, ErrEngineRequired))

	err = ValidateConfig(nil)
	assert.ErrorIs(t, err, ErrConfigRequired)

	v, ok := AsViolation(&ContractViolation{Op: "send", Rank: 1, Detail: "bad"})
	require.True(t, ok)
	assert.Equal(t, "send", v.Op)
}

func TestTransportExports(t *testing.T) {
	assert.True(t, DefaultTransportRegistry.Has("channel"))
	assert.Equal(t, "channel", GetCapabilities("channel").Name)
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"hello": "world"}
	data, err := Marshal(payload)
	require.NoError(t, err)

	var out map[string]string
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, payload, out)
}
