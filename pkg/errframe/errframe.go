// Package errframe synthesizes visual fallback frames.
//
// When a node fails to load, set up or run, the pipeline stays live by
// publishing a synthesized JPEG in place of the real payload, so downstream
// consumers and gateways render the failure like any other stream. The same
// renderer produces the gateway's "NO SIGNAL" placeholder.
package errframe

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"time"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Kind selects the banner text.
type Kind int

const (
	// Setup marks a node whose setup failed permanently.
	Setup Kind = iota
	// Runtime marks a single failing loop iteration.
	Runtime
	// Load marks a worker that could not load its node at all.
	Load
	// NoSignal is the gateway placeholder for a starved stream.
	NoSignal
)

func (k Kind) banner() string {
	switch k {
	case Setup:
		return "SETUP ERR"
	case Runtime:
		return "RUNTIME ERROR"
	case Load:
		return "LOAD FAIL"
	default:
		return "NO SIGNAL"
	}
}

const (
	width  = 320
	height = 240

	// Detail text longer than this is cut with an ellipsis.
	maxDetailLen = 42
)

var (
	red   = color.RGBA{R: 0xE0, G: 0x20, B: 0x20, A: 0xFF}
	gray  = color.RGBA{R: 0x90, G: 0x90, B: 0x90, A: 0xFF}
	white = color.RGBA{R: 0xF0, G: 0xF0, B: 0xF0, A: 0xFF}
	bg    = color.RGBA{R: 0x18, G: 0x18, B: 0x18, A: 0xFF}
)

// Render draws a 320x240 JPEG carrying the kind banner, the shortened error
// text and the current wall-clock time. Rendering never fails: encoding
// errors fall back to a minimal solid frame.
func Render(kind Kind, detail string) []byte {
	return renderAt(kind, detail, time.Now())
}

func renderAt(kind Kind, detail string, now time.Time) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, xdraw.Src)

	bannerColor := red
	if kind == NoSignal {
		bannerColor = gray
	}
	drawBannerText(img, kind.banner(), bannerColor)

	if detail != "" {
		drawText(img, shorten(detail), white, 160)
	}
	drawText(img, now.Format("15:04:05"), gray, 200)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return solidFallback()
	}
	return buf.Bytes()
}

// drawBannerText renders the banner small, then scales it up 3x with nearest
// neighbor so it reads across a video tile.
func drawBannerText(dst *image.RGBA, text string, c color.RGBA) {
	face := basicfont.Face7x13
	w := font.MeasureString(face, text).Ceil()
	small := image.NewRGBA(image.Rect(0, 0, w+2, 16))

	d := font.Drawer{
		Dst:  small,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(1, 12),
	}
	d.DrawString(text)

	const scale = 3
	sw, sh := small.Bounds().Dx()*scale, small.Bounds().Dy()*scale
	x := (width - sw) / 2
	y := 60
	target := image.Rect(x, y, x+sw, y+sh)
	xdraw.NearestNeighbor.Scale(dst, target, small, small.Bounds(), xdraw.Over, nil)
}

func drawText(dst *image.RGBA, text string, c color.RGBA, baseline int) {
	face := basicfont.Face7x13
	w := font.MeasureString(face, text).Ceil()
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P((width-w)/2, baseline),
	}
	d.DrawString(text)
}

func shorten(s string) string {
	if len(s) <= maxDetailLen {
		return s
	}
	return s[:maxDetailLen-3] + "..."
}

func solidFallback() []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, xdraw.Src)
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, nil)
	return buf.Bytes()
}
