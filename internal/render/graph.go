package render

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/maauso/autoedit/internal/media"
	"github.com/maauso/autoedit/internal/plan"
	"github.com/maauso/autoedit/internal/zoom"
)

// Output pad labels of the filter graph.
const (
	VideoOut = "[outv]"
	AudioOut = "[outa]"
)

// Graph is a filter_complex description and the pads to map.
type Graph struct {
	Filter string
	Maps   []string
}

// window is a zoom in segment-local seconds.
type window struct {
	start, end float64
	scale      float64
	easing     zoom.Easing
}

// BuildGraph builds a filter graph that trims each final segment from
// input 0, applies the zooms overlapping it and concatenates the results.
// zooms are on the output timeline, as returned by zoom.Remap. Zooms are
// skipped when the frame size is unknown.
func BuildGraph(final []plan.Segment, zooms []zoom.Zoom, info media.Info) Graph {
	var b strings.Builder
	var pads strings.Builder
	canZoom := info.Width > 0 && info.Height > 0

	cursor := 0.0
	for i, seg := range final {
		start, end := num(seg.Start), num(seg.End)

		fmt.Fprintf(&b, "[0:v]trim=start=%s:end=%s,setpts=PTS-STARTPTS", start, end)
		if ws := localWindows(zooms, cursor, seg.Duration()); canZoom && len(ws) > 0 {
			fmt.Fprintf(&b, ",%s", zoomFilter(ws, info))
		}
		fmt.Fprintf(&b, ",setsar=1[v%d];", i)
		fmt.Fprintf(&pads, "[v%d]", i)

		if info.HasAudio {
			fmt.Fprintf(&b, "[0:a]atrim=start=%s:end=%s,asetpts=PTS-STARTPTS[a%d];", start, end, i)
			fmt.Fprintf(&pads, "[a%d]", i)
		}
		cursor += seg.Duration()
	}

	g := Graph{Maps: []string{VideoOut}}
	if info.HasAudio {
		fmt.Fprintf(&b, "%sconcat=n=%d:v=1:a=1%s%s", pads.String(), len(final), VideoOut, AudioOut)
		g.Maps = append(g.Maps, AudioOut)
	} else {
		fmt.Fprintf(&b, "%sconcat=n=%d:v=1:a=0%s", pads.String(), len(final), VideoOut)
	}
	g.Filter = b.String()
	return g
}

// localWindows returns the zooms overlapping the output span
// [cursor, cursor+length) in segment-local time.
func localWindows(zooms []zoom.Zoom, cursor, length float64) []window {
	var out []window
	for _, z := range zooms {
		s := math.Max(z.Start, cursor)
		e := math.Min(z.End, cursor+length)
		if e-s <= plan.Epsilon {
			continue
		}
		out = append(out, window{start: s - cursor, end: e - cursor, scale: z.Scale, easing: z.Easing})
	}
	return out
}

// zoomFilter builds a zoompan filter whose zoom follows the windows and
// stays 1 elsewhere, keeping the frame centred. zoompan stamps one output
// frame per input frame at its own fps, so the input is first resampled to
// that same constant rate.
func zoomFilter(ws []window, info media.Info) string {
	rate := num(info.FPS)
	return fmt.Sprintf("fps=%s,zoompan=z='%s':d=1:x='iw/2-iw/(2*zoom)':y='ih/2-ih/(2*zoom)':s=%dx%d:fps=%s",
		rate, zoomExpr(ws), info.Width, info.Height, rate)
}

// zoomExpr returns the nested conditional zoom expression over input time.
func zoomExpr(ws []window) string {
	expr := "1"
	for i := len(ws) - 1; i >= 0; i-- {
		w := ws[i]
		a, bnd := num(w.start), num(w.end)
		progress := fmt.Sprintf("(it-%s)/%s", a, num(w.end-w.start))
		if w.easing == zoom.EasingEaseInOut {
			progress = fmt.Sprintf("0.5*(1-cos(PI*%s))", progress)
		}
		expr = fmt.Sprintf("if(between(it,%s,%s),1+%s*%s,%s)", a, bnd, num(w.scale-1), progress, expr)
	}
	return expr
}

// num formats seconds and factors with microsecond precision.
func num(f float64) string {
	return strconv.FormatFloat(math.Round(f*1e6)/1e6, 'f', -1, 64)
}
