package main

import (
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// renderQR draws content as a terminal QR code. Each line packs two
// module rows into upper and lower half blocks.
func renderQR(content string) string {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "  (QR generation failed: " + err.Error() + ")\n"
	}
	bitmap := qr.Bitmap()

	var sb strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		sb.WriteString("  ")
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bottom := y+1 < len(bitmap) && bitmap[y+1][x]
			sb.WriteRune(halfBlock(top, bottom))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func halfBlock(top, bottom bool) rune {
	switch {
	case top && bottom:
		return '█'
	case top:
		return '▀'
	case bottom:
		return '▄'
	default:
		return ' '
	}
}
