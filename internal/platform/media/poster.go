// Package media renders poster frames for generated video scripts. Posters
// are deterministic per fact so re-rendering a script never churns CDN
// caches.
package media

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"strings"

	_ "image/jpeg"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"

	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/utils"
)

const (
	posterWidth  = 1080
	posterHeight = 1920

	marginX = 96
)

// PosterSpec describes one poster card.
type PosterSpec struct {
	// Title is the script hook line rendered as the headline.
	Title string
	// Topic is shown as a small label above the headline.
	Topic string
	// Seed selects the background color. Callers pass the fact ID so the
	// same fact always gets the same card.
	Seed string
}

type Renderer interface {
	RenderPoster(spec PosterSpec) ([]byte, error)
	// Thumbnail scales a rendered poster down to maxWidth, preserving
	// aspect ratio. Used for feed cards.
	Thumbnail(data []byte, maxWidth int) ([]byte, error)
}

type renderer struct {
	log       *logger.Logger
	palette   []color.NRGBA
	titleFace font.Face
	labelFace font.Face
}

func NewRenderer(baseLog *logger.Logger) (Renderer, error) {
	log := baseLog.With("component", "poster_renderer")

	fontPath := utils.GetEnv("POSTER_FONT_PATH", "", log)
	if strings.TrimSpace(fontPath) == "" {
		return nil, fmt.Errorf("media: POSTER_FONT_PATH is not set")
	}
	log.Info("Loading poster font", "font", fontPath)

	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("media: read font file: %w", err)
	}
	parsed, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("media: parse TTF: %w", err)
	}
	titleFace := truetype.NewFace(parsed, &truetype.Options{
		Size:    88,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	labelFace := truetype.NewFace(parsed, &truetype.Options{
		Size:    44,
		DPI:     72,
		Hinting: font.HintingNone,
	})

	palette := defaultPalette()
	if p := utils.GetEnv("POSTER_COLORS_JSON_PATH", "", log); strings.TrimSpace(p) != "" {
		loaded, err := loadPaletteFromFile(p)
		if err != nil {
			return nil, fmt.Errorf("media: load poster colors: %w", err)
		}
		if len(loaded) > 0 {
			palette = loaded
		}
	}

	return &renderer{
		log:       log,
		palette:   palette,
		titleFace: titleFace,
		labelFace: labelFace,
	}, nil
}

func (r *renderer) RenderPoster(spec PosterSpec) ([]byte, error) {
	title := strings.TrimSpace(spec.Title)
	if title == "" {
		return nil, fmt.Errorf("media: poster title required")
	}

	dc := gg.NewContext(posterWidth, posterHeight)

	base := r.pickColor(spec.Seed)
	dc.SetColor(base)
	dc.DrawRectangle(0, 0, posterWidth, posterHeight)
	dc.Fill()

	// Accent bar above the topic label, a lightened tint of the base.
	dc.SetColor(lighten(base, 0.55))
	dc.DrawRoundedRectangle(marginX, 560, 150, 14, 7)
	dc.Fill()

	if topic := strings.TrimSpace(spec.Topic); topic != "" {
		dc.SetFontFace(r.labelFace)
		dc.SetRGBA(1, 1, 1, 0.82)
		dc.DrawStringAnchored(strings.ToUpper(topic), marginX, 642, 0, 0.5)
	}

	dc.SetFontFace(r.titleFace)
	dc.SetColor(color.White)
	dc.DrawStringWrapped(title, posterWidth/2, posterHeight/2+60, 0.5, 0.5,
		posterWidth-2*marginX, 1.35, gg.AlignCenter)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("media: encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *renderer) Thumbnail(data []byte, maxWidth int) ([]byte, error) {
	if maxWidth <= 0 {
		maxWidth = 320
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("media: decode poster: %w", err)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > maxWidth {
		scale := float64(maxWidth) / float64(w)
		h = int(math.Round(float64(h) * scale))
		if h < 1 {
			h = 1
		}
		w = maxWidth
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)

	var out bytes.Buffer
	if err := png.Encode(&out, dst); err != nil {
		return nil, fmt.Errorf("media: encode thumbnail: %w", err)
	}
	return out.Bytes(), nil
}

func (r *renderer) pickColor(seed string) color.NRGBA {
	if len(r.palette) == 0 {
		return color.NRGBA{R: 0x1E, G: 0x29, B: 0x3B, A: 0xFF}
	}
	seed = strings.TrimSpace(seed)
	if seed == "" {
		return r.palette[0]
	}
	h := fnv.New32a()
	h.Write([]byte(seed))
	return r.palette[h.Sum32()%uint32(len(r.palette))]
}

func lighten(c color.NRGBA, f float64) color.NRGBA {
	mix := func(v uint8) uint8 {
		return uint8(math.Round(float64(v) + (255-float64(v))*f))
	}
	return color.NRGBA{R: mix(c.R), G: mix(c.G), B: mix(c.B), A: c.A}
}

// Dark backgrounds so the white headline stays readable.
func defaultPalette() []color.NRGBA {
	return []color.NRGBA{
		{R: 0x1E, G: 0x3A, B: 0x8A, A: 0xFF},
		{R: 0x06, G: 0x5F, B: 0x46, A: 0xFF},
		{R: 0x7C, G: 0x2D, B: 0x12, A: 0xFF},
		{R: 0x4C, G: 0x1D, B: 0x95, A: 0xFF},
		{R: 0x83, G: 0x18, B: 0x43, A: 0xFF},
		{R: 0x13, G: 0x4E, B: 0x4A, A: 0xFF},
		{R: 0x7F, G: 0x1D, B: 0x1D, A: 0xFF},
		{R: 0x1E, G: 0x29, B: 0x3B, A: 0xFF},
	}
}

func loadPaletteFromFile(jsonPath string) ([]color.NRGBA, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("read file error: %w", err)
	}
	var colors []color.NRGBA
	if err := json.Unmarshal(data, &colors); err != nil {
		return nil, fmt.Errorf("json unmarshal error: %w", err)
	}
	for i := range colors {
		if colors[i].A == 0 {
			colors[i].A = 0xFF
		}
	}
	return colors, nil
}
