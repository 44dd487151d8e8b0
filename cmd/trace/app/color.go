package app

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/roman-kulish/pulse-hrv/internal/hrv"
)

const (
	// stress gauge runs from green (relaxed) to red (exhausted)
	hueRelaxed   = 120.0
	hueExhausted = 0.0

	stressScaleMax = 60.0
)

var (
	frameColor    = color.Black
	gridColor     = color.RGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 0xff}
	rawColor      = color.RGBA{R: 0xb0, G: 0xb0, B: 0xb0, A: 0xff}
	smoothedColor = color.RGBA{R: 0x1f, G: 0x5f, B: 0xbf, A: 0xff}
	beatColor     = color.RGBA{R: 0xd0, G: 0x20, B: 0x20, A: 0xff}
	runStartColor = color.RGBA{R: 0xf0, G: 0x90, B: 0x10, A: 0xff}
	noDataColor   = color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}
)

// stressColor maps a stress index onto the gauge hue; nil has no color
func stressColor(si *float64) color.Color {
	if si == nil {
		return noDataColor
	}

	normalized := math.Max(0, math.Min(1, *si/stressScaleMax))
	hue := hueRelaxed - normalized*(hueRelaxed-hueExhausted)
	return colorful.Hsv(hue, 0.85, 0.85)
}

// stressLabel formats the stress index with its gauge level
func stressLabel(si *float64) string {
	return hrv.ClassifyStress(si).String()
}
