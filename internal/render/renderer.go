// Package render composites recipient names onto certificate templates.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg" // template decoding
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/certforge/backend/internal/models"
)

// styleFiles maps an event font style to a TrueType file in the font directory.
var styleFiles = map[string]string{
	models.FontStyleBold:       "DejaVuSans-Bold.ttf",
	models.FontStyleRegular:    "DejaVuSans.ttf",
	models.FontStyleItalic:     "DejaVuSans-Oblique.ttf",
	models.FontStyleBoldItalic: "DejaVuSans-BoldOblique.ttf",
}

// ValidStyle reports whether style is a known font style tag.
func ValidStyle(style string) bool {
	_, ok := styleFiles[style]
	return ok
}

// Layout is where and how the recipient name is drawn.
type Layout struct {
	X, Y      int
	FontSize  int
	Color     string
	FontStyle string
}

// LayoutFor returns the layout configured on an event.
func LayoutFor(e *models.Event) Layout {
	return Layout{
		X:         e.TextPositionX,
		Y:         e.TextPositionY,
		FontSize:  e.FontSize,
		Color:     e.FontColor,
		FontStyle: e.Style(),
	}
}

// Renderer draws text onto copies of template images. Safe for concurrent use.
type Renderer struct {
	fontDir string
	logger  *zap.Logger

	mu    sync.Mutex
	fonts map[string]*opentype.Font // nil entry: file unusable, use the bitmap face
}

// NewRenderer creates a renderer loading TrueType fonts from fontDir.
func NewRenderer(fontDir string, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{fontDir: fontDir, logger: logger, fonts: make(map[string]*opentype.Font)}
}

// DecodeTemplate decodes a PNG or JPEG template.
func DecodeTemplate(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}
	return img, nil
}

// Render draws text on a copy of tpl and returns the result as PNG. tpl is never modified.
func (r *Renderer) Render(tpl image.Image, text string, l Layout) ([]byte, error) {
	if tpl == nil {
		return nil, errors.New("render: nil template")
	}
	if l.FontSize <= 0 {
		return nil, models.Invalid("font_size", "must be positive")
	}
	col, err := ParseHexColor(l.Color)
	if err != nil {
		return nil, err
	}

	b := tpl.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, tpl, b.Min, draw.Src)

	face, err := r.face(l.FontStyle, l.FontSize)
	if err != nil {
		return nil, err
	}
	defer face.Close()

	// (X, Y) is the top-left of the line; the drawer wants the baseline.
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(b.Min.X+l.X, b.Min.Y+l.Y+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) face(style string, size int) (font.Face, error) {
	f := r.font(style)
	if f == nil {
		return basicfont.Face7x13, nil
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("font face: %w", err)
	}
	return face, nil
}

func (r *Renderer) font(style string) *opentype.Font {
	file, ok := styleFiles[style]
	if !ok {
		file = styleFiles[models.FontStyleBold]
	}
	path := filepath.Join(r.fontDir, file)

	r.mu.Lock()
	defer r.mu.Unlock()
	if f, seen := r.fonts[path]; seen {
		return f
	}
	var f *opentype.Font
	data, err := os.ReadFile(path)
	if err == nil {
		f, err = opentype.Parse(data)
	}
	if err != nil {
		r.logger.Info("font unavailable, using built-in bitmap font", zap.String("path", path), zap.Error(err))
		f = nil
	}
	r.fonts[path] = f
	return f
}

// ParseHexColor parses "#RRGGBB" (the leading # is optional) into an opaque color.
func ParseHexColor(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 {
		return color.RGBA{}, models.Invalid("font_color", "must be a #RRGGBB hex color")
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, models.Invalid("font_color", "must be a #RRGGBB hex color")
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
