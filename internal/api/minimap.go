package api

import (
	"bytes"
	"image/color"
	"math"
	"net/http"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"arena-brawl/internal/game"
)

const (
	defaultMinimapWidth  = 400
	defaultMinimapHeight = 200
	maxMinimapSide       = 1600

	// minimapPad is world units of margin around the arena.
	minimapPad = 2.0

	// Names are drawn only on images at least this tall.
	minLabelHeight = 150
)

var (
	labelFace     font.Face
	labelFaceOnce sync.Once
)

// minimapLabelFace parses the embedded Go font once. Nil when parsing fails.
func minimapLabelFace() font.Face {
	labelFaceOnce.Do(func() {
		parsed, err := opentype.Parse(goregular.TTF)
		if err != nil {
			log.Printf("⚠️ Failed to parse minimap font: %v", err)
			return
		}
		labelFace, err = opentype.NewFace(parsed, &opentype.FaceOptions{
			Size:    10,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err != nil {
			log.Printf("⚠️ Failed to create minimap font face: %v", err)
			labelFace = nil
		}
	})
	return labelFace
}

// slotColors cycles per player slot.
var slotColors = []color.RGBA{
	{239, 71, 111, 255},
	{17, 138, 178, 255},
	{6, 214, 160, 255},
	{255, 209, 102, 255},
	{131, 56, 236, 255},
	{251, 133, 0, 255},
	{58, 134, 255, 255},
	{255, 0, 110, 255},
}

// tiledLevel is a level that can list its solid boxes.
type tiledLevel interface {
	Tiles() []game.Tile
}

// minimapView maps arena coordinates to image pixels. Y grows up in the
// arena and down in the image.
type minimapView struct {
	minX, maxX, minY, maxY float64
	w, h                   float64
}

func newMinimapView(level game.Level, snap *game.GameSnapshot, w, h int) minimapView {
	b := level.Bounds()
	v := minimapView{
		minX: b.MinX - minimapPad,
		maxX: b.MaxX + minimapPad,
		minY: b.MinY - minimapPad,
		maxY: b.MinY + 10,
		w:    float64(w),
		h:    float64(h),
	}
	if tl, ok := level.(tiledLevel); ok {
		for _, t := range tl.Tiles() {
			v.maxY = math.Max(v.maxY, t.Box.Max.Y+minimapPad)
		}
	}
	if snap != nil {
		for _, p := range snap.Players {
			v.maxY = math.Max(v.maxY, p.Position.Y+minimapPad)
		}
	}
	return v
}

func (v minimapView) x(wx float64) float64 {
	return (wx - v.minX) / (v.maxX - v.minX) * v.w
}

func (v minimapView) y(wy float64) float64 {
	return v.h - (wy-v.minY)/(v.maxY-v.minY)*v.h
}

// scale converts a world length to pixels along x.
func (v minimapView) scale(d float64) float64 {
	return d / (v.maxX - v.minX) * v.w
}

// RenderMinimap draws the level and snap as a side view.
func RenderMinimap(level game.Level, snap *game.GameSnapshot, w, h int) *gg.Context {
	dc := gg.NewContext(w, h)
	v := newMinimapView(level, snap, w, h)

	// Background
	dc.SetColor(color.RGBA{12, 12, 28, 255})
	dc.DrawRectangle(0, 0, v.w, v.h)
	dc.Fill()

	drawMinimapTiles(dc, v, level)

	// Arena walls
	b := level.Bounds()
	dc.SetColor(color.RGBA{255, 62, 62, 120})
	dc.SetLineWidth(1)
	dc.DrawLine(v.x(b.MinX), 0, v.x(b.MinX), v.h)
	dc.Stroke()
	dc.DrawLine(v.x(b.MaxX), 0, v.x(b.MaxX), v.h)
	dc.Stroke()

	if snap == nil {
		return dc
	}

	for _, p := range snap.Pickups {
		c := color.RGBA{200, 200, 200, 255}
		if p.Dropped {
			c.A = 140
		}
		dc.SetColor(c)
		dc.DrawRectangle(v.x(p.Position.X)-3, v.y(p.Position.Y)-3, 6, 6)
		dc.Fill()
	}

	if t := snap.Trophy; t != nil && t.Carrier == game.NoPlayer {
		dc.SetColor(color.RGBA{255, 215, 0, 255})
		dc.DrawRegularPolygon(5, v.x(t.Position.X), v.y(t.Position.Y), 6, 0)
		dc.Fill()
	}

	dc.SetColor(color.RGBA{255, 255, 255, 200})
	for _, pr := range snap.Projectiles {
		dc.DrawPoint(v.x(pr.Position.X), v.y(pr.Position.Y), 1.5)
		dc.Fill()
	}

	for i := range snap.Players {
		drawMinimapPlayer(dc, v, &snap.Players[i])
	}
	if h >= minLabelHeight {
		drawMinimapLabels(dc, v, snap)
	}
	return dc
}

func drawMinimapLabels(dc *gg.Context, v minimapView, snap *game.GameSnapshot) {
	face := minimapLabelFace()
	if face == nil {
		return
	}
	dc.SetFontFace(face)
	for i := range snap.Players {
		p := &snap.Players[i]
		if p.Dead {
			continue
		}
		radius := math.Max(v.scale(0.5), 3)
		dc.SetColor(color.RGBA{230, 230, 240, 220})
		dc.DrawStringAnchored(p.Name, v.x(p.Position.X), v.y(p.Position.Y)-radius-8, 0.5, 0)
	}
}

func drawMinimapTiles(dc *gg.Context, v minimapView, level game.Level) {
	tl, ok := level.(tiledLevel)
	if !ok {
		return
	}
	for _, t := range tl.Tiles() {
		if t.Ground {
			dc.SetColor(color.RGBA{70, 70, 90, 255})
		} else {
			dc.SetColor(color.RGBA{40, 40, 55, 255})
		}
		x0, x1 := v.x(t.Box.Min.X), v.x(t.Box.Max.X)
		y0, y1 := v.y(t.Box.Max.Y), v.y(t.Box.Min.Y)
		dc.DrawRectangle(x0, y0, x1-x0, math.Max(y1-y0, 1))
		dc.Fill()
	}
}

func drawMinimapPlayer(dc *gg.Context, v minimapView, p *game.PlayerSnapshot) {
	x, y := v.x(p.Position.X), v.y(p.Position.Y)
	radius := math.Max(v.scale(0.5), 3)
	c := slotColors[p.Slot%len(slotColors)]

	if p.Dead {
		// X for dead
		dc.SetColor(color.RGBA{255, 0, 0, 255})
		dc.SetLineWidth(2)
		dc.DrawLine(x-radius, y-radius, x+radius, y+radius)
		dc.Stroke()
		dc.DrawLine(x+radius, y-radius, x-radius, y+radius)
		dc.Stroke()
		return
	}

	if p.Invulnerable {
		dc.SetColor(color.RGBA{255, 255, 255, 77})
		dc.DrawCircle(x, y, radius+3)
		dc.Fill()
	}

	if p.Hurt {
		c.A = uint8(255 - 155*p.HurtAlpha)
	}
	dc.SetColor(c)
	dc.DrawCircle(x, y, radius)
	dc.Fill()

	if p.HasTrophy {
		dc.SetColor(color.RGBA{255, 215, 0, 255})
		dc.SetLineWidth(2)
		dc.DrawCircle(x, y, radius+1)
		dc.Stroke()
	}

	// Health bar
	if p.MaxHealth <= 0 {
		return
	}
	barWidth := radius * 3
	hpPercent := math.Max(0, math.Min(1, p.Health/p.MaxHealth))

	dc.SetColor(color.RGBA{51, 51, 51, 255})
	dc.DrawRectangle(x-barWidth/2, y-radius-5, barWidth, 3)
	dc.Fill()

	if hpPercent > 0.5 {
		dc.SetColor(color.RGBA{83, 255, 69, 255})
	} else if hpPercent > 0.25 {
		dc.SetColor(color.RGBA{255, 149, 0, 255})
	} else {
		dc.SetColor(color.RGBA{255, 62, 62, 255})
	}
	dc.DrawRectangle(x-barWidth/2, y-radius-5, barWidth*hpPercent, 3)
	dc.Fill()
}

func (h *routerHandlers) handleMinimap(w http.ResponseWriter, r *http.Request) {
	width, err := minimapSide(r, "width", defaultMinimapWidth)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	height, err := minimapSide(r, "height", defaultMinimapHeight)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	dc := RenderMinimap(h.engine.Level(), h.engine.Snapshot(), width, height)
	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	RecordRender(time.Since(start))

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func minimapSide(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 16 || n > maxMinimapSide {
		return 0, &paramError{key: key, value: raw}
	}
	return n, nil
}

type paramError struct {
	key, value string
}

func (e *paramError) Error() string {
	return "invalid " + e.key + " " + strconv.Quote(e.value)
}
