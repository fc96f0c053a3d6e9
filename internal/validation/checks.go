package validation

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
)

const mimeUnknown = "application/octet-stream"

func (p *Pipeline) checkFormat(_ context.Context, in *input, res *CheckResult) {
	if in.mime == mimeUnknown || in.mime == "" {
		res.Errors = append(res.Errors, "file type could not be determined from content")
		return
	}
	if !p.cfg.allowsMIME(in.mime) {
		res.Errors = append(res.Errors, fmt.Sprintf("file type %s is not allowed", in.mime))
	}
	if !in.meta.Category.Allows(in.mime) {
		res.Errors = append(res.Errors, fmt.Sprintf("file type %s is not accepted for %s", in.mime, in.meta.Category.ID))
	}
	declared := normalizeMIME(in.meta.DeclaredMIME)
	switch {
	case declared == "":
		res.Warnings = append(res.Warnings, "no declared MIME type; detected type used")
	case !in.detected.Is(declared):
		res.Errors = append(res.Errors, fmt.Sprintf("declared type %s does not match detected type %s", declared, in.mime))
	}
}

func (p *Pipeline) checkSize(_ context.Context, in *input, res *CheckResult) {
	n := int64(len(in.buf))
	limit := p.cfg.MaxSize
	if c := in.meta.Category.MaxSize; c > 0 && c < limit {
		limit = c
	}
	if n < p.cfg.MinSize {
		res.Errors = append(res.Errors, fmt.Sprintf("file is %d bytes; minimum is %d", n, p.cfg.MinSize))
	}
	if n > limit {
		res.Errors = append(res.Errors, fmt.Sprintf("file is %d bytes; maximum is %d", n, limit))
	} else if float64(n) > 0.9*float64(limit) {
		res.Warnings = append(res.Warnings, "file is close to the size limit")
	}

	if declared := in.meta.DeclaredSize; declared > 0 {
		diff := float64(n-declared) / float64(declared)
		if diff < 0 {
			diff = -diff
		}
		switch {
		case diff > p.cfg.SizeTolerance:
			res.Errors = append(res.Errors, fmt.Sprintf("declared size %d differs from actual size %d", declared, n))
		case diff > 0:
			res.Warnings = append(res.Warnings, fmt.Sprintf("declared size %d differs slightly from actual size %d", declared, n))
		}
	}
	if len(res.Errors) > 0 {
		res.Score = 0
	}
}

// checkContent verifies that the bytes parse as the declared type and then
// applies the format-specific rule for the detected type.
func (p *Pipeline) checkContent(_ context.Context, in *input, res *CheckResult) {
	if declared := normalizeMIME(in.meta.DeclaredMIME); declared != "" && !in.detected.Is(declared) {
		res.Errors = append(res.Errors, fmt.Sprintf("content does not parse as declared type %s", declared))
	}

	switch {
	case in.mime == "application/pdf":
		text, pages, err := extractPDFText(in.buf)
		switch {
		case err != nil:
			res.Errors = append(res.Errors, "PDF could not be parsed")
		case pages == 0:
			res.Errors = append(res.Errors, "PDF has no pages")
		case strings.TrimSpace(text) == "":
			res.Errors = append(res.Errors, "PDF contains no extractable text")
		default:
			in.text = text
		}
	case strings.HasPrefix(in.mime, "image/"):
		cfg, _, err := image.DecodeConfig(bytes.NewReader(in.buf))
		if err != nil {
			res.Errors = append(res.Errors, "image could not be decoded")
			break
		}
		if cfg.Width < p.cfg.MinImageWidth || cfg.Height < p.cfg.MinImageHeight {
			res.Errors = append(res.Errors, fmt.Sprintf("image is %dx%d; minimum is %dx%d",
				cfg.Width, cfg.Height, p.cfg.MinImageWidth, p.cfg.MinImageHeight))
		}
		if cfg.Width > p.cfg.MaxImageWidth || cfg.Height > p.cfg.MaxImageHeight {
			res.Errors = append(res.Errors, fmt.Sprintf("image is %dx%d; maximum is %dx%d",
				cfg.Width, cfg.Height, p.cfg.MaxImageWidth, p.cfg.MaxImageHeight))
		}
	default:
		res.Errors = append(res.Errors, fmt.Sprintf("content of type %s cannot be inspected", in.mime))
	}
}

func (p *Pipeline) checkSecurity(_ context.Context, in *input, res *CheckResult) {
	name := strings.TrimSpace(in.meta.Filename)
	switch {
	case name == "":
		res.Errors = append(res.Errors, "filename is required")
	case strings.ContainsAny(name, "/\\\x00"):
		res.Errors = append(res.Errors, "filename contains path or control characters")
	}

	ext := strings.ToLower(filepath.Ext(name))
	if !p.cfg.allowsExtension(ext) {
		res.Errors = append(res.Errors, fmt.Sprintf("file extension %q is not allowed", ext))
	} else if !sameExtension(ext, in.detected.Extension()) {
		res.Errors = append(res.Errors, fmt.Sprintf("file extension %q does not match content", ext))
	}
	if inner := filepath.Ext(strings.TrimSuffix(name, filepath.Ext(name))); inner != "" {
		res.Warnings = append(res.Warnings, "filename has multiple extensions")
	}

	n := int64(len(in.buf))
	if n == 0 {
		res.Errors = append(res.Errors, "file is empty")
	}
	if n > p.cfg.HardMaxSize {
		res.Errors = append(res.Errors, "file exceeds the hard size ceiling")
	}
}

// checkExtraction never fails: weak or missing matches become warnings.
func (p *Pipeline) checkExtraction(_ context.Context, in *input, res *CheckResult) {
	cat := in.meta.Category
	field := cat.ExtractionField
	if field == "" {
		field = "value"
	}
	re, err := compilePattern(cat.ExtractionPattern)
	if err != nil {
		res.Warnings = append(res.Warnings, "extraction pattern is invalid")
		return
	}
	if in.text == "" {
		if strings.HasPrefix(in.mime, "image/") {
			res.Warnings = append(res.Warnings, "structured extraction is not available for images")
		} else {
			res.Warnings = append(res.Warnings, "no text available for structured extraction")
		}
		return
	}

	candidates := distinct(re.FindAllString(in.text, -1))
	if len(candidates) == 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("no %s found in document", field))
		return
	}
	confidence := 1.0 / float64(len(candidates))
	res.Score = confidence * 100
	if confidence < p.cfg.MinConfidence {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s is ambiguous (%d candidates)", field, len(candidates)))
		return
	}
	in.extracted = map[string]string{field: candidates[0]}
}

func extractPDFText(buf []byte) (text string, pages int, err error) {
	// The PDF reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parse panic: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return "", 0, err
	}
	pages = r.NumPage()
	plain, err := r.GetPlainText()
	if err != nil {
		return "", pages, err
	}
	var b bytes.Buffer
	if _, err := io.Copy(&b, plain); err != nil {
		return "", pages, err
	}
	return b.String(), pages, nil
}

var patterns sync.Map

func compilePattern(expr string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(expr); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	patterns.Store(expr, re)
	return re, nil
}

func normalizeMIME(m string) string {
	m = baseMIME(m)
	if m == "image/jpg" || m == "image/pjpeg" {
		return "image/jpeg"
	}
	return m
}

func baseMIME(m string) string {
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return strings.ToLower(strings.TrimSpace(m))
}

func sameExtension(a, b string) bool {
	norm := func(e string) string {
		if e == ".jpeg" {
			return ".jpg"
		}
		return e
	}
	return norm(a) == norm(b)
}

func distinct(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
