package cache

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTranscoder writes a fixed payload and counts invocations.
type stubTranscoder struct {
	calls int32
	delay time.Duration
	err   error
}

func (s *stubTranscoder) Transcode(ctx context.Context, rawAudioURL, outputPath string) error {
	atomic.AddInt32(&s.calls, 1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return s.err
	}
	return os.WriteFile(outputPath, []byte("opus"), 0o644)
}

func (s *stubTranscoder) count() int32 {
	return atomic.LoadInt32(&s.calls)
}

// fakeObjectStore is an in-memory object tier.
type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string]time.Time
	puts    int
	removes int
	statErr error
	putErr  error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string]time.Time)}
}

func (f *fakeObjectStore) ObjectKey(trackID string) string { return "opus/" + trackID + ".opus" }

func (f *fakeObjectStore) Put(ctx context.Context, key string, reader io.Reader, size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[key] = time.Now()
	f.puts++
	return nil
}

func (f *fakeObjectStore) Stat(ctx context.Context, key string) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statErr != nil {
		return time.Time{}, false, f.statErr
	}
	modTime, ok := f.objects[key]
	return modTime, ok, nil
}

func (f *fakeObjectStore) SignedURL(ctx context.Context, key string) (string, error) {
	return "https://objects.example/" + key + "?sig=abc", nil
}

func (f *fakeObjectStore) Remove(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.removes++
	return nil
}

func newTestEngine(t *testing.T, opts Options, transcoder Transcoder, objects ObjectStore) *Engine {
	t.Helper()
	if opts.CacheDir == "" {
		opts.CacheDir = t.TempDir()
	}
	return NewEngine(opts, transcoder, objects, nil)
}

func TestResolveTranscodesOnce(t *testing.T) {
	transcoder := &stubTranscoder{}
	engine := newTestEngine(t, Options{TTL: time.Hour}, transcoder, nil)

	ref, err := engine.Resolve(context.Background(), "track-1", "https://cdn.example/a.mp3")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, engine.LocalPath("track-1"), ref.LocalPath)
	assert.Empty(t, ref.SignedURL)

	// Second resolve serves the cached artifact.
	_, err = engine.Resolve(context.Background(), "track-1", "https://cdn.example/a.mp3")
	require.NoError(t, err)
	assert.Equal(t, int32(1), transcoder.count())
}

func TestConcurrentResolveSharesOneFlight(t *testing.T) {
	transcoder := &stubTranscoder{delay: 50 * time.Millisecond}
	engine := newTestEngine(t, Options{TTL: time.Hour}, transcoder, nil)

	const waiters = 16
	var wg sync.WaitGroup
	refs := make([]string, waiters)
	wg.Add(waiters)
	for i := 0; i < waiters; i++ {
		go func(i int) {
			defer wg.Done()
			ref, err := engine.Resolve(context.Background(), "track-1", "https://cdn.example/a.mp3")
			assert.NoError(t, err)
			if ref != nil {
				refs[i] = ref.LocalPath
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), transcoder.count(), "concurrent resolves must share one transcode")
	for _, path := range refs {
		assert.Equal(t, engine.LocalPath("track-1"), path)
	}
}

func TestResolveErrorsAreNotCached(t *testing.T) {
	transcoder := &stubTranscoder{err: errors.New("encode blew up")}
	engine := newTestEngine(t, Options{TTL: time.Hour}, transcoder, nil)

	_, err := engine.Resolve(context.Background(), "track-1", "u")
	require.Error(t, err)

	transcoder.err = nil
	ref, err := engine.Resolve(context.Background(), "track-1", "u")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, int32(2), transcoder.count())
}

func TestTTLExpiryTriggersReencode(t *testing.T) {
	transcoder := &stubTranscoder{}
	engine := newTestEngine(t, Options{TTL: time.Hour}, transcoder, nil)

	_, err := engine.Resolve(context.Background(), "track-1", "u")
	require.NoError(t, err)

	// Reads inside the TTL do not re-encode and do not extend freshness.
	engine.now = func() time.Time { return time.Now().Add(59 * time.Minute) }
	_, err = engine.Resolve(context.Background(), "track-1", "u")
	require.NoError(t, err)
	assert.Equal(t, int32(1), transcoder.count())

	// At the TTL boundary the artifact is expired.
	engine.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = engine.Resolve(context.Background(), "track-1", "u")
	require.NoError(t, err)
	assert.Equal(t, int32(2), transcoder.count())
}

func TestZeroTTLNeverExpires(t *testing.T) {
	transcoder := &stubTranscoder{}
	engine := newTestEngine(t, Options{TTL: 0}, transcoder, nil)

	_, err := engine.Resolve(context.Background(), "track-1", "u")
	require.NoError(t, err)

	engine.now = func() time.Time { return time.Now().Add(1000 * time.Hour) }
	_, err = engine.Resolve(context.Background(), "track-1", "u")
	require.NoError(t, err)
	assert.Equal(t, int32(1), transcoder.count())
}

func TestFreshObjectServesSignedURL(t *testing.T) {
	transcoder := &stubTranscoder{}
	objects := newFakeObjectStore()
	objects.objects[objects.ObjectKey("track-1")] = time.Now()

	engine := newTestEngine(t, Options{TTL: time.Hour}, transcoder, objects)

	ref, err := engine.Resolve(context.Background(), "track-1", "u")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Empty(t, ref.LocalPath)
	assert.Contains(t, ref.SignedURL, objects.ObjectKey("track-1"))
	assert.Equal(t, int32(0), transcoder.count(), "a fresh object copy must not re-encode")
}

func TestStaleObjectIsDeletedAndReencoded(t *testing.T) {
	transcoder := &stubTranscoder{}
	objects := newFakeObjectStore()
	objects.objects[objects.ObjectKey("track-1")] = time.Now().Add(-2 * time.Hour)

	engine := newTestEngine(t, Options{TTL: time.Hour}, transcoder, objects)

	ref, err := engine.Resolve(context.Background(), "track-1", "u")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.NotEmpty(t, ref.LocalPath)
	assert.Equal(t, 1, objects.removes)
	assert.Equal(t, int32(1), transcoder.count())
}

func TestObjectTierOutageFallsBackToLocal(t *testing.T) {
	transcoder := &stubTranscoder{}
	objects := newFakeObjectStore()
	objects.statErr = errors.New("connection refused")

	engine := newTestEngine(t, Options{TTL: time.Hour}, transcoder, objects)

	ref, err := engine.Resolve(context.Background(), "track-1", "u")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.NotEmpty(t, ref.LocalPath)
	assert.Equal(t, int32(1), transcoder.count())
}

func TestObjectPrimaryUploadsAndDropsLocalCopy(t *testing.T) {
	transcoder := &stubTranscoder{}
	objects := newFakeObjectStore()
	engine := newTestEngine(t, Options{TTL: time.Hour, ObjectPrimary: true}, transcoder, objects)

	ref, err := engine.Resolve(context.Background(), "track-1", "u")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.NotEmpty(t, ref.SignedURL)
	assert.Empty(t, ref.LocalPath)
	assert.Equal(t, 1, objects.puts)

	_, statErr := os.Stat(engine.LocalPath("track-1"))
	assert.True(t, os.IsNotExist(statErr), "local duplicate must be removed after upload")
}

func TestObjectPrimaryUploadFailureKeepsLocal(t *testing.T) {
	transcoder := &stubTranscoder{}
	objects := newFakeObjectStore()
	objects.putErr = errors.New("tier down")

	engine := newTestEngine(t, Options{TTL: time.Hour, ObjectPrimary: true}, transcoder, objects)

	ref, err := engine.Resolve(context.Background(), "track-1", "u")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.NotEmpty(t, ref.LocalPath)
	assert.Empty(t, ref.SignedURL)

	_, statErr := os.Stat(engine.LocalPath("track-1"))
	assert.NoError(t, statErr, "local artifact must survive a failed upload")
}
