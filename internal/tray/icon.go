package tray

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

// statusColors maps pipeline status names to indicator colors.
var statusColors = map[string]color.RGBA{
	"idle":       {128, 128, 128, 255},
	"listening":  {255, 255, 255, 255},
	"recording":  {255, 59, 48, 255},
	"processing": {0, 122, 255, 255},
	"done":       {52, 199, 89, 255},
	"error":      {255, 149, 0, 255},
}

const iconSize = 22

// statusIcon renders a filled circle in the status color as PNG bytes.
// Unknown statuses render gray.
func statusIcon(status string) []byte {
	c, ok := statusColors[status]
	if !ok {
		c = statusColors["idle"]
	}

	img := image.NewRGBA(image.Rect(0, 0, iconSize, iconSize))
	center := iconSize / 2
	radius := iconSize/2 - 2
	for y := 0; y < iconSize; y++ {
		for x := 0; x < iconSize; x++ {
			dx, dy := x-center, y-center
			if dx*dx+dy*dy <= radius*radius {
				img.SetRGBA(x, y, c)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fallbackIcon()
	}
	return buf.Bytes()
}

func fallbackIcon() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.Black)
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}
