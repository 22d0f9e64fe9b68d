package kvstore_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/kvstash/kvstash/internal/blobs"
	"github.com/kvstash/kvstash/internal/kvstore"
	"github.com/kvstash/kvstash/internal/locator"
	"github.com/kvstash/kvstash/internal/records"
)

const testMaxItemSize = 256

func TestStoreReadRoundTrip(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "user:42", []byte("hello"), "text/plain"))

	value, err := store.Read(ctx, "user:42")
	require.NoError(t, err)
	require.Equal(t, "text/plain", value.ContentType)
	require.Equal(t, []byte("hello"), value.Body)
	require.Equal(t, kvstore.TierRecords, value.Tier)

	require.NoError(t, store.Delete(ctx, "user:42"))
	_, err = store.Read(ctx, "user:42")
	require.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestStoreOverwrite(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "k", []byte("b1"), "text/plain"))
	require.NoError(t, store.Store(ctx, "k", []byte("b2"), "text/plain"))

	value, err := store.Read(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "b2", string(value.Body))
}

func TestDeleteMissingKeySucceeds(t *testing.T) {
	store, _, _ := newTestStore(t)
	require.NoError(t, store.Delete(context.Background(), "never-stored"))
}

func TestLargeValueFallsBackToBlobs(t *testing.T) {
	store, recs, blobStore := newTestStore(t)
	ctx := context.Background()
	big := []byte(strings.Repeat("x", testMaxItemSize*4))

	require.NoError(t, store.Store(ctx, "big", big, "application/octet-stream"))
	require.Equal(t, 0, recs.Len())
	require.Equal(t, 1, blobStore.Len())

	value, err := store.Read(ctx, "big")
	require.NoError(t, err)
	require.Equal(t, big, value.Body)
	require.Equal(t, "application/octet-stream", value.ContentType)
	require.Equal(t, kvstore.TierBlobs, value.Tier)
}

func TestStaleBlobRemainsAfterShrinkingOverwrite(t *testing.T) {
	store, _, blobStore := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "k", []byte(strings.Repeat("x", testMaxItemSize*2)), "text/plain"))
	require.NoError(t, store.Store(ctx, "k", []byte("small"), "text/plain"))

	value, err := store.Read(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "small", string(value.Body))
	require.Equal(t, 1, blobStore.Len(), "the old blob is intentionally left in place")
}

func TestStoreDoesNotFallBackOnOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	blobStore := blobs.NewMemory()
	store := mustTieredStore(t, failingRecords{err: boom}, blobStore)

	err := store.Store(context.Background(), "k", []byte("v"), "text/plain")
	require.ErrorIs(t, err, boom)
	require.Equal(t, 0, blobStore.Len())
}

func TestReadTreatsBackendFailureAsMiss(t *testing.T) {
	ctx := context.Background()
	blobStore := blobs.NewMemory()
	p := locator.Derive("k").String()
	require.NoError(t, blobStore.Put(ctx, p, []byte("from-blob"), kvstore.BlobMetadata{ContentType: "text/plain", Key: "k"}))

	store := mustTieredStore(t, failingRecords{err: kvstore.ErrBackendUnavailable}, blobStore)
	value, err := store.Read(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "from-blob", string(value.Body))

	_, err = store.Read(ctx, "other")
	require.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestReadDoesNotFallBackToBlobWhenRecordsHit(t *testing.T) {
	ctx := context.Background()
	recs := records.NewMemory(0)
	store := mustTieredStore(t, recs, failingBlobs{})

	require.NoError(t, store.Store(ctx, "k", []byte("v"), "text/plain"))
	value, err := store.Read(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", string(value.Body))
}

func TestReadManyPreservesOrder(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Store(ctx, "b", []byte("2"), "text/plain"))
	require.NoError(t, store.Store(ctx, "a", []byte("1"), "text/plain"))

	batch, err := store.ReadMany(ctx, []string{"b", "missing", "a"})
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, batch.Keys)
	require.Equal(t, "1", string(batch.Values["a"].Body))

	_, err = store.ReadMany(ctx, []string{"x", "y"})
	require.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestReadManyKeepsEmptyBodies(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Store(ctx, "empty", nil, "text/plain"))

	batch, err := store.ReadMany(ctx, []string{"empty"})
	require.NoError(t, err)
	require.Equal(t, 1, batch.Len())
	require.Empty(t, batch.Values["empty"].Body)
}

func TestBackendTimeoutApplied(t *testing.T) {
	store, err := kvstore.NewTieredStore(deadlineRecords{}, blobs.NewMemory(), discardLogger(), kvstore.Options{Timeout: time.Millisecond})
	require.NoError(t, err)

	err = store.Store(context.Background(), "k", []byte("v"), "text/plain")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewTieredStoreValidatesDependencies(t *testing.T) {
	_, err := kvstore.NewTieredStore(nil, blobs.NewMemory(), discardLogger(), kvstore.Options{})
	require.Error(t, err)
	_, err = kvstore.NewTieredStore(records.NewMemory(0), nil, discardLogger(), kvstore.Options{})
	require.Error(t, err)
	_, err = kvstore.NewTieredStore(records.NewMemory(0), blobs.NewMemory(), nil, kvstore.Options{})
	require.Error(t, err)
}

func newTestStore(t *testing.T) (*kvstore.TieredStore, *records.Memory, *blobs.Memory) {
	t.Helper()
	recs := records.NewMemory(testMaxItemSize)
	blobStore := blobs.NewMemory()
	return mustTieredStore(t, recs, blobStore), recs, blobStore
}

func mustTieredStore(t *testing.T, recs kvstore.RecordStore, blobStore kvstore.BlobStore) *kvstore.TieredStore {
	t.Helper()
	store, err := kvstore.NewTieredStore(recs, blobStore, discardLogger(), kvstore.Options{})
	require.NoError(t, err)
	return store
}

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type failingRecords struct{ err error }

func (f failingRecords) Put(context.Context, string, kvstore.Record) error { return f.err }
func (f failingRecords) Get(context.Context, string) (*kvstore.Record, error) {
	return nil, f.err
}
func (f failingRecords) Delete(context.Context, string) error { return f.err }

type failingBlobs struct{}

func (failingBlobs) Put(context.Context, string, []byte, kvstore.BlobMetadata) error {
	return kvstore.ErrBackendUnavailable
}
func (failingBlobs) Get(context.Context, string) ([]byte, kvstore.BlobMetadata, error) {
	return nil, kvstore.BlobMetadata{}, kvstore.ErrBackendUnavailable
}

// deadlineRecords blocks until the context expires.
type deadlineRecords struct{}

func (deadlineRecords) Put(ctx context.Context, _ string, _ kvstore.Record) error {
	<-ctx.Done()
	return ctx.Err()
}
func (deadlineRecords) Get(ctx context.Context, _ string) (*kvstore.Record, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (deadlineRecords) Delete(ctx context.Context, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}
