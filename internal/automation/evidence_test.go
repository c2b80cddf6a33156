package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeShooter struct{ fail bool }

func (f *fakeShooter) Screenshot(ctx context.Context) ([]byte, error) {
	if f.fail {
		return nil, context.DeadlineExceeded
	}
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes(), nil
}

func TestEvidenceJobCapturesAndCaps(t *testing.T) {
	dir := t.TempDir()
	job, err := StartJob(dir, "assignment/with bad chars!", &fakeShooter{}, zerolog.Nop())
	require.NoError(t, err)

	for i := 0; i < MaxScreenshots+5; i++ {
		job.Capture(context.Background(), "search")
	}
	require.Len(t, job.Files(), MaxScreenshots)

	entries, err := os.ReadDir(job.Dir())
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(entries), MaxScreenshots)
}

func TestEvidenceJobCaptureFailureSwallowed(t *testing.T) {
	dir := t.TempDir()
	job, err := StartJob(dir, "a1", &fakeShooter{fail: true}, zerolog.Nop())
	require.NoError(t, err)
	job.Capture(context.Background(), "search")
	require.Empty(t, job.Files())
}

func TestEvidenceJobFinishWritesManifest(t *testing.T) {
	dir := t.TempDir()
	job, err := StartJob(dir, "a1", &fakeShooter{}, zerolog.Nop())
	require.NoError(t, err)
	job.Capture(context.Background(), "search")

	result, err := job.Finish(true, true, 30, "")
	require.NoError(t, err)
	require.Equal(t, 1, result.Count)

	raw, err := os.ReadFile(filepath.Join(job.Dir(), "result.json"))
	require.NoError(t, err)
	var decoded JobResult
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.True(t, decoded.Success)
	require.Equal(t, 1, decoded.Count)
}
