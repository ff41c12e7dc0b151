package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
)

type recordingWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func testAsset() domain.PublishedAsset {
	return domain.PublishedAsset{
		Unit:        domain.UnitKey{Event: "EMSR692", AOI: "AOI01"},
		EventID:     "EMSR692",
		AOI:         "AOI01",
		Bucket:      "floods",
		ObjectName:  "tropical-floods-ground-truth/EMSR692_AOI01_ground_truth_merged.tif",
		URI:         "gs://floods/tropical-floods-ground-truth/EMSR692_AOI01_ground_truth_merged.tif",
		Metadata:    map[string]string{"event_id": "EMSR692", "aoi": "AOI01", "event_date": "2023-03-12"},
		PublishedAt: time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC),
	}
}

func TestSerializeToMessage(t *testing.T) {
	asset := testAsset()

	msg, err := serializeToMessage(asset)
	require.NoError(t, err)

	assert.Equal(t, []byte("EMSR692_AOI01"), msg.Key)
	assert.Contains(t, string(msg.Value), `"uri":"gs://floods/tropical-floods-ground-truth/EMSR692_AOI01_ground_truth_merged.tif"`)
	assert.Contains(t, string(msg.Value), `"event_date":"2023-03-12"`)
	assert.NotContains(t, string(msg.Value), "LocalPath")
	assert.Len(t, msg.Headers, 2)
	assert.Equal(t, "event_id", msg.Headers[0].Key)
	assert.Equal(t, []byte("EMSR692"), msg.Headers[0].Value)
	assert.Equal(t, "published_at", msg.Headers[1].Key)
	assert.Equal(t, []byte("2024-04-26T15:10:00Z"), msg.Headers[1].Value)
}

func TestNotifier_Notify(t *testing.T) {
	w := &recordingWriter{}
	n := &Notifier{writer: w, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	require.NoError(t, n.Notify(context.Background(), testAsset()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("EMSR692_AOI01"), w.msgs[0].Key)

	require.NoError(t, n.Close())
	assert.True(t, w.closed)
}

func TestNotifier_NotifyFailureIsTransient(t *testing.T) {
	w := &recordingWriter{err: errors.New("leader not available")}
	n := &Notifier{writer: w, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	err := n.Notify(context.Background(), testAsset())
	require.Error(t, err)
	assert.Equal(t, domain.KindTransient, domain.KindOf(err))
}
