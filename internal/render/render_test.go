package render

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/autoedit/internal/media"
	"github.com/maauso/autoedit/internal/plan"
	"github.com/maauso/autoedit/internal/zoom"
)

var hd = media.Info{DurationSec: 60, Width: 1280, Height: 720, FPS: 30, HasAudio: true}

// zoomAt evaluates the zoom curve described by ws at local time t.
func zoomAt(ws []window, t float64) float64 {
	for _, w := range ws {
		if t < w.start || t > w.end {
			continue
		}
		p := (t - w.start) / (w.end - w.start)
		if w.easing == zoom.EasingEaseInOut {
			p = 0.5 * (1 - math.Cos(math.Pi*p))
		}
		return 1 + (w.scale-1)*p
	}
	return 1
}

func TestBuildGraph_TrimAndConcat(t *testing.T) {
	final := []plan.Segment{{Start: 0, End: 30}, {Start: 31, End: 60}}

	g := BuildGraph(final, nil, hd)

	want := "[0:v]trim=start=0:end=30,setpts=PTS-STARTPTS,setsar=1[v0];" +
		"[0:a]atrim=start=0:end=30,asetpts=PTS-STARTPTS[a0];" +
		"[0:v]trim=start=31:end=60,setpts=PTS-STARTPTS,setsar=1[v1];" +
		"[0:a]atrim=start=31:end=60,asetpts=PTS-STARTPTS[a1];" +
		"[v0][a0][v1][a1]concat=n=2:v=1:a=1[outv][outa]"
	assert.Equal(t, want, g.Filter)
	assert.Equal(t, []string{VideoOut, AudioOut}, g.Maps)
}

func TestBuildGraph_NoAudio(t *testing.T) {
	info := hd
	info.HasAudio = false

	g := BuildGraph([]plan.Segment{{Start: 1.5, End: 4}}, nil, info)

	assert.Equal(t, "[0:v]trim=start=1.5:end=4,setpts=PTS-STARTPTS,setsar=1[v0];[v0]concat=n=1:v=1:a=0[outv]", g.Filter)
	assert.Equal(t, []string{VideoOut}, g.Maps)
}

func TestBuildGraph_ZoomOnlyOnOverlappingSegment(t *testing.T) {
	final := []plan.Segment{{Start: 0, End: 10}, {Start: 20, End: 30}}
	zooms := zoom.Remap(final, []zoom.Zoom{{Start: 22, End: 24, Type: zoom.TypeIn, Scale: 1.08, Easing: zoom.EasingLinear}})

	g := BuildGraph(final, zooms, hd)
	parts := strings.Split(g.Filter, ";")

	assert.NotContains(t, parts[0], "zoompan")
	assert.Contains(t, parts[2], "setpts=PTS-STARTPTS,fps=30,zoompan=z='if(between(it,2,4),1+0.08*(it-2)/2,1)'")
	assert.Contains(t, parts[2], ":x='iw/2-iw/(2*zoom)':y='ih/2-ih/(2*zoom)':s=1280x720:fps=30")
}

func TestBuildGraph_SkipsZoomWithoutFrameSize(t *testing.T) {
	info := hd
	info.Width, info.Height = 0, 0
	zooms := []zoom.Zoom{{Start: 1, End: 2, Type: zoom.TypeIn, Scale: 1.05, Easing: zoom.EasingLinear}}

	g := BuildGraph([]plan.Segment{{Start: 0, End: 5}}, zooms, info)
	assert.NotContains(t, g.Filter, "zoompan")
}

func TestZoomExpr(t *testing.T) {
	ws := []window{
		{start: 1, end: 3, scale: 1.1, easing: zoom.EasingLinear},
		{start: 5, end: 6, scale: 1.04, easing: zoom.EasingEaseInOut},
	}

	got := zoomExpr(ws)
	assert.Equal(t,
		"if(between(it,1,3),1+0.1*(it-1)/2,if(between(it,5,6),1+0.04*0.5*(1-cos(PI*(it-5)/1)),1))",
		got)
	assert.Equal(t, "1", zoomExpr(nil))

	assert.InDelta(t, 1.0, zoomAt(ws, 0.5), 1e-9)
	assert.InDelta(t, 1.05, zoomAt(ws, 2), 1e-9)
	assert.InDelta(t, 1.1, zoomAt(ws, 3), 1e-9)
	assert.InDelta(t, 1.02, zoomAt(ws, 5.5), 1e-9)
	assert.InDelta(t, 1.0, zoomAt(ws, 4), 1e-9)
}

func TestLocalWindows(t *testing.T) {
	zooms := []zoom.Zoom{
		{Start: 9, End: 10, Scale: 1.05},
		{Start: 10, End: 11, Scale: 1.06},
	}

	first := localWindows(zooms, 0, 10)
	require.Len(t, first, 1)
	assert.Equal(t, window{start: 9, end: 10, scale: 1.05}, first[0])

	second := localWindows(zooms, 10, 10)
	require.Len(t, second, 1)
	assert.Equal(t, window{start: 0, end: 1, scale: 1.06}, second[0])
}

type fakeRunner struct {
	args   []string
	err    error
	output []byte
}

func (f *fakeRunner) Run(_ context.Context, args []string) (string, error) {
	f.args = args
	if f.err != nil {
		return "", f.err
	}
	return "", os.WriteFile(args[len(args)-1], f.output, 0600)
}

func TestEngine_Render_Args(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.mp4")
	r := &fakeRunner{output: []byte("mp4")}

	err := NewEngine(r).Render(context.Background(), "in.mp4", out, []plan.Segment{{Start: 0, End: 5}}, nil, hd)
	require.NoError(t, err)

	joined := strings.Join(r.args, " ")
	assert.Contains(t, joined, "-i in.mp4 -filter_complex ")
	assert.Contains(t, joined, "-map [outv] -map [outa]")
	assert.Contains(t, joined, "-c:v libx264 -preset veryfast -crf 20")
	assert.Contains(t, joined, "-c:a aac")
	assert.Equal(t, out, r.args[len(r.args)-1])
}

func TestEngine_Render_Failures(t *testing.T) {
	dir := t.TempDir()

	t.Run("ffmpeg error", func(t *testing.T) {
		ffErr := &media.FFmpegError{Stderr: "Invalid argument", Err: errors.New("exit status 1")}
		err := NewEngine(&fakeRunner{err: ffErr}).Render(context.Background(), "in.mp4", filepath.Join(dir, "a.mp4"), []plan.Segment{{Start: 0, End: 1}}, nil, hd)
		assert.ErrorIs(t, err, ErrRenderFailed)
		var got *media.FFmpegError
		assert.ErrorAs(t, err, &got)
	})

	t.Run("empty output", func(t *testing.T) {
		out := filepath.Join(dir, "b.mp4")
		err := NewEngine(&fakeRunner{}).Render(context.Background(), "in.mp4", out, []plan.Segment{{Start: 0, End: 1}}, nil, hd)
		assert.ErrorIs(t, err, ErrRenderFailed)
		assert.NoFileExists(t, out)
	})

	t.Run("no segments", func(t *testing.T) {
		err := NewEngine(&fakeRunner{}).Render(context.Background(), "in.mp4", filepath.Join(dir, "c.mp4"), nil, nil, hd)
		assert.ErrorIs(t, err, ErrRenderFailed)
	})
}

func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH, skipping test", bin)
		}
	}
}

func TestEngine_Render_FFmpeg(t *testing.T) {
	skipIfNoFFmpeg(t)

	dir := t.TempDir()
	input := filepath.Join(dir, "in.mp4")
	cmd := exec.Command("ffmpeg", "-y",
		"-f", "lavfi", "-i", "testsrc=s=160x120:r=25:d=6",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=6",
		"-c:v", "libx264", "-preset", "ultrafast", "-c:a", "aac", "-shortest", input)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test video: %v\n%s", err, out)
	}

	ff := media.NewFFmpeg("")
	info, err := ff.Probe(context.Background(), input)
	require.NoError(t, err)

	final := []plan.Segment{{Start: 0, End: 2}, {Start: 3, End: 5}}
	zooms := zoom.Remap(final, []zoom.Zoom{{Start: 1, End: 3.5, Type: zoom.TypeIn, Scale: 1.1, Easing: zoom.EasingEaseInOut}})

	output := filepath.Join(dir, "out.mp4")
	require.NoError(t, NewEngine(ff, WithEncoding("ultrafast", 28)).Render(context.Background(), input, output, final, zooms, info))

	got, err := ff.Probe(context.Background(), output)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, got.DurationSec, 0.25, fmt.Sprintf("duration %.3f", got.DurationSec))
	assert.Equal(t, 160, got.Width)
	assert.True(t, got.HasAudio)
}
