package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func TestKVSensorStore_ReadSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("full record", func(t *testing.T) {
		kv := newFakeKV()
		kv.data["cafe:sensors:Sensores"] = `{"temperature":21.4,"humidity":58,"timestamp":1760000000}`
		rec, err := NewKVSensorStore(kv).ReadSnapshot(ctx, "Sensores")
		require.NoError(t, err)
		require.NotNil(t, rec.Temperature)
		require.NotNil(t, rec.Humidity)
		require.NotNil(t, rec.CapturedAt)
		assert.Equal(t, 21.4, *rec.Temperature)
		assert.Equal(t, 58.0, *rec.Humidity)
		assert.Equal(t, int64(1760000000), rec.CapturedAt.Unix())
	})

	t.Run("partial record keeps nil fields", func(t *testing.T) {
		kv := newFakeKV()
		kv.data["cafe:sensors:Sensores"] = `{"temperature":21.4}`
		rec, err := NewKVSensorStore(kv).ReadSnapshot(ctx, "Sensores")
		require.NoError(t, err)
		assert.NotNil(t, rec.Temperature)
		assert.Nil(t, rec.Humidity)
		assert.Nil(t, rec.CapturedAt)
	})

	t.Run("missing node", func(t *testing.T) {
		_, err := NewKVSensorStore(newFakeKV()).ReadSnapshot(ctx, "Sensores")
		assert.ErrorIs(t, err, ErrNodeNotFound)
	})

	t.Run("null node", func(t *testing.T) {
		kv := newFakeKV()
		kv.data["cafe:sensors:Sensores"] = "null"
		_, err := NewKVSensorStore(kv).ReadSnapshot(ctx, "Sensores")
		assert.ErrorIs(t, err, ErrNodeNotFound)
	})

	t.Run("malformed", func(t *testing.T) {
		kv := newFakeKV()
		kv.data["cafe:sensors:Sensores"] = `{"temperature":"warm"`
		_, err := NewKVSensorStore(kv).ReadSnapshot(ctx, "Sensores")
		assert.ErrorIs(t, err, ErrMalformedSnapshot)
	})

	t.Run("backend error is wrapped", func(t *testing.T) {
		kv := newFakeKV()
		kv.getErr = errConnRefused
		_, err := NewKVSensorStore(kv).ReadSnapshot(ctx, "Sensores")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errConnRefused))
		assert.False(t, errors.Is(err, ErrNodeNotFound))
	})
}

func TestKVSensorStore_WriteThenRead(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKV()
	s := NewKVSensorStore(kv)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.WriteSnapshot(ctx, "Sensores", SnapshotRecord{
		Temperature: f64(19.5), Humidity: f64(70), CapturedAt: &at,
	}, 0))

	rec, err := s.ReadSnapshot(ctx, "Sensores")
	require.NoError(t, err)
	assert.Equal(t, 19.5, *rec.Temperature)
	assert.Equal(t, 70.0, *rec.Humidity)
	assert.True(t, at.Equal(*rec.CapturedAt))
}
