// Package report renders a PNG usage report of a container: a summary
// of the header fields and a per-block allocation map.
package report

import (
	"fmt"
	"os"

	"github.com/fogleman/gg"

	"github.com/keks/containerfs/codec"
	"github.com/keks/containerfs/container"
)

var fontPaths = []string{
	"/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans-Bold.ttf",
	"/Library/Fonts/Arial Bold.ttf",
}

const (
	width    = 800
	cell     = 8.0
	rowH     = 25.0
	perRow   = 96
	gridPadX = 16.0
)

// Usage writes the usage report for c as a PNG at imagePath.
func Usage(c *container.Container, imagePath string) error {
	stats := c.Stats()
	bits := c.BitmapBytes()

	rows := (stats.BlockCount + perRow - 1) / perRow
	height := 220 + rows*int(cell)
	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	withText := loadFont(dc)

	y := 20.0

	dc.SetRGB(0, 0.4, 0.4)
	dc.DrawRectangle(0, y, width, 30)
	dc.Fill()
	if withText {
		dc.SetRGB(1, 1, 1)
		dc.DrawStringAnchored("CONTAINER USAGE REPORT", width/2, y+15, 0.5, 0.5)
	}
	y += 40

	rowsData := [][2]string{
		{"Name", stats.Name},
		{"Created", codec.FormatTime(stats.Created)},
		{"Block size", fmt.Sprintf("%d bytes", stats.BlockSize)},
		{"Blocks", fmt.Sprintf("%d (%d free)", stats.BlockCount, stats.FreeBlocks)},
		{"Capacity", fmt.Sprintf("%d bytes (%d free)", stats.TotalBytes, stats.FreeBytes)},
	}
	for _, row := range rowsData {
		dc.SetRGB(0.9, 0.9, 0.9)
		dc.DrawRectangle(0, y, width, rowH)
		dc.Fill()
		if withText {
			dc.SetRGB(0, 0, 0)
			dc.DrawStringAnchored(row[0], 20, y+rowH/2, 0, 0.5)
			dc.DrawStringAnchored(row[1], 250, y+rowH/2, 0, 0.5)
		}
		y += rowH
	}
	y += 20

	for idx := 0; idx < stats.BlockCount; idx++ {
		free := bits[idx/8]&(1<<uint(idx%8)) != 0
		switch {
		case idx < 2:
			dc.SetRGB(0, 0.4, 0.4) // header and root
		case free:
			dc.SetRGB(0.92, 0.92, 0.92)
		default:
			dc.SetRGB(0.4, 0.6, 1)
		}

		x := gridPadX + float64(idx%perRow)*cell
		dc.DrawRectangle(x, y+float64(idx/perRow)*cell, cell-1, cell-1)
		dc.Fill()
	}

	if err := dc.SavePNG(imagePath); err != nil {
		return fmt.Errorf("save report %s: %w", imagePath, err)
	}

	return nil
}

// loadFont tries the known font locations; the report is drawn
// without labels when none is present.
func loadFont(dc *gg.Context) bool {
	for _, p := range fontPaths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := dc.LoadFontFace(p, 16); err == nil {
			return true
		}
	}

	return false
}
