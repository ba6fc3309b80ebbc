package shape

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/go-text/typesetting/di"
	"github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/unicode/bidi"
)

// textPPEM is the pixel size used for glyph outline extraction. The
// mesh is normalized afterwards, so this only sets the curve
// resolution entering the flattener.
const textPPEM = 256

// outlineCacheCap bounds the per-Face glyph outline cache. Text rarely
// touches more distinct glyphs; past the cap the cache resets instead
// of tracking recency.
const outlineCacheCap = 512

// Face is a font prepared for text-shaped outlines. The font data is
// parsed twice: go-text drives HarfBuzz shaping, sfnt extracts the
// outlines of the shaped glyphs. Extracted outlines are cached per
// glyph, so repeated letters and rebuilt meshes skip the sfnt load.
//
// Face is safe for concurrent use.
type Face struct {
	shapeFont *font.Font

	mu      sync.Mutex // guards outline, buf and cache
	outline *sfnt.Font
	buf     sfnt.Buffer
	cache   map[sfnt.GlyphIndex][]sfnt.Segment
}

// ParseFont parses TTF or OTF font data into a Face.
func ParseFont(data []byte) (*Face, error) {
	gtFace, err := font.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("shape: parsing font for shaping: %w", err)
	}
	sf, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("shape: parsing font for outlines: %w", err)
	}
	return &Face{
		shapeFont: gtFace.Font,
		outline:   sf,
		cache:     make(map[sfnt.GlyphIndex][]sfnt.Segment),
	}, nil
}

// FromText shapes a string and triangulates the union of its glyph
// outlines into a mesh. Kerning, ligatures and right-to-left scripts
// follow from HarfBuzz shaping; the paragraph direction is detected
// with the Unicode bidi algorithm.
func FromText(face *Face, text string) (*Mesh, error) {
	if face == nil {
		return nil, fmt.Errorf("shape: nil face")
	}
	if text == "" {
		return nil, ErrEmptyShape
	}

	glyphs := shapeText(face, text)
	if len(glyphs) == 0 {
		return nil, ErrEmptyShape
	}

	// Build one path holding every glyph outline at its shaped pen
	// position. Coordinates are Y-down here; mesh normalization flips
	// to Y-up.
	path := NewPath()
	face.mu.Lock()
	for _, g := range glyphs {
		appendGlyphOutline(path, face, g)
	}
	face.mu.Unlock()

	if path.Empty() {
		return nil, ErrEmptyShape
	}

	// Half a pixel at the extraction size keeps curve fidelity well
	// above what a normalized mesh can show.
	return FromPath(path, 0.5)
}

// positionedGlyph is a glyph ID with its absolute pen position in
// pixels at textPPEM.
type positionedGlyph struct {
	gid  sfnt.GlyphIndex
	x, y float64
}

var shaperPool = sync.Pool{
	New: func() any { return &shaping.HarfbuzzShaper{} },
}

func shapeText(face *Face, text string) []positionedGlyph {
	runes := []rune(text)

	dir := di.DirectionLTR
	var para bidi.Paragraph
	para.SetString(text)
	if order, err := para.Order(); err == nil && order.Direction() == bidi.RightToLeft {
		dir = di.DirectionRTL
	}

	input := shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: dir,
		Face:      font.NewFace(face.shapeFont),
		Size:      fixed.Int26_6(textPPEM * 64),
		Script:    detectScript(runes),
		Language:  language.NewLanguage("en"),
	}

	hb := shaperPool.Get().(*shaping.HarfbuzzShaper)
	output := hb.Shape(input)
	shaperPool.Put(hb)

	out := make([]positionedGlyph, 0, len(output.Glyphs))
	var penX, penY float64
	for _, g := range output.Glyphs {
		// HarfBuzz offsets are Y-up; the outline path is Y-down.
		out = append(out, positionedGlyph{
			gid: sfnt.GlyphIndex(g.GlyphID),
			x:   penX + fixedToFloat(g.XOffset),
			y:   penY - fixedToFloat(g.YOffset),
		})
		penX += fixedToFloat(g.XAdvance)
		penY -= fixedToFloat(g.YAdvance)
	}
	return out
}

// detectScript returns the script of the first non-space rune.
func detectScript(runes []rune) language.Script {
	for _, r := range runes {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		return language.LookupScript(r)
	}
	return language.Latin
}

func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64.0
}

// glyphSegments returns the outline segments of one glyph at textPPEM,
// from the cache or freshly loaded. Caller holds face.mu.
func glyphSegments(face *Face, gid sfnt.GlyphIndex) []sfnt.Segment {
	if segs, ok := face.cache[gid]; ok {
		return segs
	}
	loaded, err := face.outline.LoadGlyph(&face.buf, gid, fixed.Int26_6(textPPEM*64), nil)
	if err != nil {
		loaded = nil
	}
	// LoadGlyph reuses the buffer's segment storage across calls; the
	// cache needs its own copy.
	segs := append([]sfnt.Segment(nil), loaded...)
	if len(face.cache) >= outlineCacheCap {
		face.cache = make(map[sfnt.GlyphIndex][]sfnt.Segment, 64)
	}
	face.cache[gid] = segs
	return segs
}

// appendGlyphOutline adds one glyph's segments to the path offset by
// the glyph position. Caller holds face.mu.
func appendGlyphOutline(path *Path, face *Face, g positionedGlyph) {
	segments := glyphSegments(face, g.gid)
	if len(segments) == 0 {
		// Blank glyphs (spaces) and missing outlines contribute
		// nothing but keep their advance.
		return
	}

	px := func(v fixed.Int26_6) float64 { return float64(v)/64.0 + g.x }
	py := func(v fixed.Int26_6) float64 { return float64(v)/64.0 + g.y }

	for _, seg := range segments {
		switch seg.Op {
		case sfnt.SegmentOpMoveTo:
			path.MoveTo(px(seg.Args[0].X), py(seg.Args[0].Y))
		case sfnt.SegmentOpLineTo:
			path.LineTo(px(seg.Args[0].X), py(seg.Args[0].Y))
		case sfnt.SegmentOpQuadTo:
			path.QuadraticTo(
				px(seg.Args[0].X), py(seg.Args[0].Y),
				px(seg.Args[1].X), py(seg.Args[1].Y),
			)
		case sfnt.SegmentOpCubeTo:
			path.CubicTo(
				px(seg.Args[0].X), py(seg.Args[0].Y),
				px(seg.Args[1].X), py(seg.Args[1].Y),
				px(seg.Args[2].X), py(seg.Args[2].Y),
			)
		}
	}
	path.Close()
}
