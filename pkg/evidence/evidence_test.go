package evidence

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"

	"github.com/mscno/safereport/pkg/upload"
)

type flakyUploader struct {
	fail  map[string]bool
	delay map[string]time.Duration
	calls atomic.Int32
}

func (f *flakyUploader) Upload(ctx context.Context, obj upload.Object) (upload.Locator, error) {
	f.calls.Add(1)
	if d := f.delay[obj.Name]; d > 0 {
		time.Sleep(d)
	}
	if f.fail[obj.Name] {
		return upload.Locator{}, errors.New("quota exceeded")
	}
	return upload.Locator{URL: "https://cdn.example.org/" + obj.Folder + "/" + obj.Name, ID: "id-" + obj.Name}, nil
}

func TestIngest_Empty(t *testing.T) {
	up := &flakyUploader{}
	i := NewIngestor(upload.NewGateway(up, time.Second, nil), nil)
	got := i.Ingest(context.Background(), nil)
	assert.Equal(t, 0, len(got))
	assert.True(t, got != nil)
	assert.Equal(t, int32(0), up.calls.Load())
}

func TestIngest_PreservesOrderAndIsolatesFailures(t *testing.T) {
	up := &flakyUploader{
		fail: map[string]bool{"b.jpg": true},
		// Finish in reverse order so slot assignment is exercised.
		delay: map[string]time.Duration{"a.jpg": 30 * time.Millisecond, "b.jpg": 15 * time.Millisecond},
	}
	i := NewIngestor(upload.NewGateway(up, time.Second, nil), nil)
	files := []File{{Name: "a.jpg", Data: []byte("a")}, {Name: "b.jpg", Data: []byte("b")}, {Name: "c.jpg", Data: []byte("c")}}

	got := i.Ingest(context.Background(), files)
	assert.Equal(t, 3, len(got))
	assert.Equal(t, "https://cdn.example.org/evidence/a.jpg", got[0].URL)
	assert.True(t, got[1].IsLocal())
	assert.Contains(t, got[1].URL, "b.jpg")
	assert.Equal(t, "https://cdn.example.org/evidence/c.jpg", got[2].URL)
	assert.Equal(t, int32(3), up.calls.Load())
}

func TestIngest_BoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	storer := storerFunc(func(ctx context.Context, data []byte, name, folder string) upload.Locator {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return upload.Locator{URL: "https://x/" + folder + "/" + name, ID: name}
	})

	files := make([]File, 10)
	for n := range files {
		files[n] = File{Name: fmt.Sprintf("%d.bin", n)}
	}
	got := NewIngestor(storer, nil, WithConcurrency(2), WithFolder("case-1")).Ingest(context.Background(), files)
	assert.Equal(t, 10, len(got))
	for n, l := range got {
		assert.Equal(t, fmt.Sprintf("https://x/case-1/%d.bin", n), l.URL)
	}
	assert.True(t, peak.Load() <= 2)
}

type storerFunc func(ctx context.Context, data []byte, name, folder string) upload.Locator

func (f storerFunc) Store(ctx context.Context, data []byte, name, folder string) upload.Locator {
	return f(ctx, data, name, folder)
}
