package asset

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.UnixMilli(1700000000123)

func clock() time.Time { return fixedNow }

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	return img
}

func encodePNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage()))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(), nil))
	return buf.Bytes()
}

func encodeGIF(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, testImage(), nil))
	return buf.Bytes()
}

func TestTarget(t *testing.T) {
	doc := filepath.Join(string(filepath.Separator)+"notes", "todo.md")

	got, err := NewStore(WithClock(clock)).Target(doc)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(string(filepath.Separator)+"notes", "image", "todo", "1700000000123.png"), got.Path)
	assert.Equal(t, "image/todo/1700000000123.png", got.Link)
	assert.Equal(t, "1700000000123", got.Name)
	assert.Equal(t, "![1700000000123](image/todo/1700000000123.png)", got.Markdown())
}

func TestTargetWorkspaceBase(t *testing.T) {
	root := t.TempDir()
	doc := filepath.Join(root, "docs", "guide.md")

	s := NewStore(WithClock(clock), WithWorkspaceBase(root), WithTemplate("assets/${fileName}-${now}.png"))
	got, err := s.Target(doc)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "assets", "guide-1700000000123.png"), got.Path)
	assert.Equal(t, "../assets/guide-1700000000123.png", got.Link)
}

func TestTargetUntitled(t *testing.T) {
	_, err := NewStore().Target("")
	assert.ErrorIs(t, err, ErrUntitled)
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"png", encodePNG(t), "png"},
		{"jpeg", encodeJPEG(t), "jpeg"},
		{"gif", encodeGIF(t), "gif"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectBytes(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := DetectBytes([]byte("not an image"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "jpg", Extension("jpeg"))
	assert.Equal(t, "tif", Extension("tiff"))
	assert.Equal(t, "webp", Extension("webp"))
	assert.Equal(t, "png", Extension(""))
}

func TestSaveFixesExtension(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "a.md")
	s := NewStore(WithClock(clock))

	got, err := s.Save(doc, encodeJPEG(t))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "image", "a", "1700000000123.jpg"), got.Path)
	assert.Equal(t, "image/a/1700000000123.jpg", got.Link)
	assert.FileExists(t, got.Path)
	assert.NoFileExists(t, filepath.Join(dir, "image", "a", "1700000000123.png"))
}

func TestSaveKeepsMatchingExtension(t *testing.T) {
	dir := t.TempDir()
	got, err := NewStore(WithClock(clock)).Save(filepath.Join(dir, "a.md"), encodePNG(t))
	require.NoError(t, err)
	assert.Equal(t, "image/a/1700000000123.png", got.Link)
}

func TestSaveUnknownFormatDefaultsToPNG(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(WithClock(clock), WithTemplate("${now}.bin"))
	got, err := s.Save(filepath.Join(dir, "a.md"), []byte("raw"))
	require.NoError(t, err)
	assert.Equal(t, "1700000000123.png", got.Link)
	assert.FileExists(t, got.Path)
}

func TestSaveEmpty(t *testing.T) {
	_, err := NewStore().Save(filepath.Join(t.TempDir(), "a.md"), nil)
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		out     string
		want    Reply
		wantErr error
	}{
		{out: "/tmp/x.png\n", want: Reply{Saved: "/tmp/x.png"}},
		{out: "copied:/home/u/pic.gif", want: Reply{Copied: "/home/u/pic.gif"}},
		{out: "no image\n", wantErr: ErrNoImage},
		{out: "", wantErr: ErrNoImage},
		{out: "no xclip", wantErr: ErrMissingHelper},
	}
	for _, tt := range tests {
		got, err := ParseReply(tt.out)
		if tt.wantErr != nil {
			assert.ErrorIs(t, err, tt.wantErr, tt.out)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

type fakeHelper struct {
	reply string
	data  []byte
	err   error
	dest  string
}

func (f *fakeHelper) SaveClipboardImage(_ context.Context, dest string) (string, error) {
	f.dest = dest
	if f.err != nil {
		return "", f.err
	}
	if f.data != nil {
		if err := os.WriteFile(dest, f.data, 0o644); err != nil {
			return "", err
		}
		return dest + "\n", nil
	}
	return f.reply, nil
}

func TestPasteSaved(t *testing.T) {
	dir := t.TempDir()
	h := &fakeHelper{data: encodeGIF(t)}

	got, err := NewStore(WithClock(clock)).Paste(context.Background(), filepath.Join(dir, "a.md"), h)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "image", "a", "1700000000123.png"), h.dest)
	assert.Equal(t, "image/a/1700000000123.gif", got.Link)
	assert.FileExists(t, got.Path)
}

func TestPasteCopiedFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "shot.jpg")
	require.NoError(t, os.WriteFile(src, encodeJPEG(t), 0o644))

	got, err := NewStore(WithClock(clock)).Paste(context.Background(), filepath.Join(dir, "a.md"), &fakeHelper{reply: "copied:" + src})
	require.NoError(t, err)
	assert.Equal(t, "image/a/1700000000123.jpg", got.Link)
	assert.FileExists(t, src)
}

func TestPasteErrors(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "a.md")
	s := NewStore(WithClock(clock))
	ctx := context.Background()

	_, err := s.Paste(ctx, doc, &fakeHelper{reply: "no image"})
	assert.ErrorIs(t, err, ErrNoImage)

	_, err = s.Paste(ctx, doc, &fakeHelper{reply: "no xclip"})
	assert.ErrorIs(t, err, ErrMissingHelper)

	_, err = s.Paste(ctx, doc, &fakeHelper{reply: "copied:" + dir})
	assert.ErrorIs(t, err, ErrUnsupportedPaste)

	boom := errors.New("boom")
	_, err = s.Paste(ctx, doc, &fakeHelper{err: boom})
	assert.ErrorIs(t, err, boom)

	_, err = s.Paste(ctx, "", &fakeHelper{})
	assert.ErrorIs(t, err, ErrUntitled)
}

func TestScriptsEmbedded(t *testing.T) {
	for _, name := range []string{"linux.sh", "mac.applescript", "pc.ps1"} {
		data, err := scripts.ReadFile("scripts/" + name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, data, name)
	}
}
