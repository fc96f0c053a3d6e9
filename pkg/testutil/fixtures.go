// Package testutil holds document fixtures and helpers shared by tests.
package testutil

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"strings"
)

// EICAR is the industry-standard antivirus test string.
const EICAR = `X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// PDF builds a single-page PDF whose page shows text. The file is at least
// minSize bytes; padding goes into an unreferenced stream object so the text
// layer is unaffected.
func PDF(text string, minSize int) []byte {
	content := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", escapePDFString(text))

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	}

	render := func(padding int) []byte {
		objs := objects
		if padding > 0 {
			objs = append(append([]string(nil), objects...),
				fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", padding, strings.Repeat("0", padding)))
		}

		var buf bytes.Buffer
		buf.WriteString("%PDF-1.4\n")
		offsets := make([]int, len(objs))
		for i, body := range objs {
			offsets[i] = buf.Len()
			fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
		}
		xref := buf.Len()
		fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
		buf.WriteString("0000000000 65535 f \n")
		for _, off := range offsets {
			fmt.Fprintf(&buf, "%010d 00000 n \n", off)
		}
		fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
		return buf.Bytes()
	}

	out := render(0)
	if len(out) >= minSize {
		return out
	}
	// The padding object adds a fixed overhead; size the padding so the
	// result lands on or just past minSize.
	overhead := len(render(1)) - len(out) - 1
	padding := minSize - len(out) - overhead
	if padding < 1 {
		padding = 1
	}
	for {
		out = render(padding)
		if len(out) >= minSize {
			return out
		}
		padding += minSize - len(out)
	}
}

// PNG encodes a solid w x h image.
func PNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fill := color.RGBA{R: 200, G: 200, B: 200, A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func escapePDFString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
