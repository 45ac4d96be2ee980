package upload

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
)

type uploaderFunc func(ctx context.Context, obj Object) (Locator, error)

func (f uploaderFunc) Upload(ctx context.Context, obj Object) (Locator, error) {
	return f(ctx, obj)
}

var fixedTime = time.UnixMilli(1700000000123)

func fixedClock() time.Time { return fixedTime }

func TestGateway_LocalMode(t *testing.T) {
	g := NewGateway(nil, 0, nil, WithClock(fixedClock))
	loc := g.Store(context.Background(), []byte("data"), "photo.jpg", "evidence")
	assert.Equal(t, "local://uploads/1700000000123-photo.jpg", loc.URL)
	assert.True(t, strings.HasPrefix(loc.ID, "local/1700000000123-photo.jpg-"), loc.ID)
	assert.True(t, loc.IsLocal())
}

func TestGateway_LocalModeSameNameSameInstant(t *testing.T) {
	g := NewGateway(nil, 0, nil, WithClock(fixedClock))
	a := g.Store(context.Background(), []byte("one"), "photo.jpg", "evidence")
	b := g.Store(context.Background(), []byte("two"), "photo.jpg", "evidence")
	assert.Equal(t, a.URL, b.URL)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestGateway_PanickingProviderFallsBack(t *testing.T) {
	up := uploaderFunc(func(ctx context.Context, obj Object) (Locator, error) {
		var index map[string]Locator
		index[obj.Name] = Locator{URL: "https://cdn.example.org/" + obj.Name}
		return index[obj.Name], nil
	})
	g := NewGateway(up, time.Second, nil, WithClock(fixedClock))
	var loc Locator
	assert.NotPanics(t, func() {
		loc = g.Store(context.Background(), []byte("data"), "photo.jpg", "evidence")
	})
	assert.Equal(t, "local://uploads/1700000000123-photo.jpg", loc.URL)
	assert.True(t, loc.IsLocal())
}

func TestGateway_RemoteSuccess(t *testing.T) {
	var got Object
	up := uploaderFunc(func(ctx context.Context, obj Object) (Locator, error) {
		got = obj
		return Locator{URL: "https://cdn.example.org/" + obj.Name, ID: "remote-1"}, nil
	})
	g := NewGateway(up, time.Second, nil, WithClock(fixedClock))
	loc := g.Store(context.Background(), []byte("data"), "../../etc/photo.jpg", "evidence")
	assert.Equal(t, "https://cdn.example.org/photo.jpg", loc.URL)
	assert.Equal(t, "remote-1", loc.ID)
	assert.False(t, loc.IsLocal())
	assert.Equal(t, "photo.jpg", got.Name)
	assert.Equal(t, "evidence", got.Folder)
	assert.Equal(t, fixedTime, got.Timestamp)
}

func TestGateway_RemoteFailureFallsBack(t *testing.T) {
	up := uploaderFunc(func(ctx context.Context, obj Object) (Locator, error) {
		return Locator{}, errors.New("provider rejected upload")
	})
	g := NewGateway(up, time.Second, nil, WithClock(fixedClock))
	loc := g.Store(context.Background(), []byte("data"), "voice note.m4a", "evidence")
	assert.Equal(t, "local://uploads/1700000000123-voice note.m4a", loc.URL)
}

func TestGateway_EmptyRemoteLocatorFallsBack(t *testing.T) {
	up := uploaderFunc(func(ctx context.Context, obj Object) (Locator, error) {
		return Locator{}, nil
	})
	g := NewGateway(up, time.Second, nil, WithClock(fixedClock))
	assert.True(t, g.Store(context.Background(), nil, "a.pdf", "").IsLocal())
}

func TestGateway_HungProviderFallsBack(t *testing.T) {
	up := uploaderFunc(func(ctx context.Context, obj Object) (Locator, error) {
		<-ctx.Done()
		return Locator{}, ctx.Err()
	})
	g := NewGateway(up, 20*time.Millisecond, nil, WithClock(fixedClock))
	start := time.Now()
	loc := g.Store(context.Background(), []byte("x"), "a.png", "evidence")
	assert.True(t, loc.IsLocal())
	assert.True(t, time.Since(start) < 2*time.Second)
}

func TestGateway_NeverReturnsEmptyLocator(t *testing.T) {
	names := []string{"", " ", ".", "/", "dir/", "normal.txt", `C:\Users\me\scan.pdf`}
	g := NewGateway(nil, 0, nil)
	for _, name := range names {
		loc := g.Store(context.Background(), nil, name, "")
		assert.NotEqual(t, "", loc.URL, name)
		assert.NotEqual(t, "", loc.ID, name)
		assert.False(t, strings.HasSuffix(loc.URL, "-"), name)
	}
}

func TestCleanName(t *testing.T) {
	assert.Equal(t, "scan.pdf", CleanName(`C:\Users\me\scan.pdf`))
	assert.Equal(t, "photo.jpg", CleanName("/tmp/photo.jpg"))
	assert.Equal(t, "attachment", CleanName(""))
	assert.Equal(t, "attachment", CleanName("/"))
}

func TestObjectKey(t *testing.T) {
	obj := Object{Name: "photo.final.jpg", Folder: "/evidence/", Timestamp: fixedTime}
	assert.Equal(t, "evidence/1700000000123_photo.final_ab12", ObjectKey(obj, "ab12"))

	obj = Object{Name: ".hidden", Timestamp: fixedTime}
	assert.Equal(t, "1700000000123_attachment", ObjectKey(obj, ""))
}

func TestConfig_Configured(t *testing.T) {
	tests := []struct {
		config Config
		want   bool
	}{
		{Config{}, false},
		{Config{Bucket: "  "}, false},
		{Config{Bucket: "your_bucket_name"}, false},
		{Config{Bucket: "evidence-prod", CredentialsFile: "/path/to/your-credentials.json"}, false},
		{Config{Bucket: "evidence-prod"}, true},
		{Config{Bucket: "evidence-prod", CredentialsFile: "/etc/safereport/sa.json"}, true},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.config.Configured(), "%+v", tc.config)
	}
}

func TestPublicURL(t *testing.T) {
	assert.Equal(t, "https://storage.googleapis.com/b/evidence/1_a%20b", publicURL("https://storage.googleapis.com/b", "evidence/1_a b"))
}
