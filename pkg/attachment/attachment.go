// Package attachment turns local files into llm.Attachments that can ride
// along with a user message: images become data URLs, text files are
// inlined, and PDFs are described by a placeholder.
package attachment

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/papercomputeco/reel/pkg/llm"
)

const (
	// MaxSize is the largest file accepted, in bytes.
	MaxSize = 20 << 20

	// MaxTextRunes bounds inlined text content.
	MaxTextRunes = 50_000

	// TruncationMarker is appended to text content cut at MaxTextRunes.
	TruncationMarker = "\n\n[file content truncated...]"
)

var (
	ErrTooLarge    = fmt.Errorf("file exceeds the size limit (%s)", FormatSize(MaxSize))
	ErrUnsupported = errors.New("unsupported file type")
)

// AllowedTypes lists the exact MIME types accepted besides the text/* and
// image/* families.
var AllowedTypes = []string{
	"text/plain",
	"text/markdown",
	"application/json",
	"text/csv",
	"application/pdf",
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
}

// extensionTypes covers extensions the platform MIME table often lacks.
var extensionTypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".csv":      "text/csv",
	".json":     "application/json",
	".txt":      "text/plain",
	".webp":     "image/webp",
}

// File is a named blob awaiting processing.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// Error names the file that failed processing.
type Error struct {
	Name string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type kind int

const (
	kindOther kind = iota
	kindText
	kindImage
	kindPDF
)

func classify(mimeType string) kind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return kindImage
	case strings.HasPrefix(mimeType, "text/"), mimeType == "application/json":
		return kindText
	case mimeType == "application/pdf":
		return kindPDF
	default:
		return kindOther
	}
}

// Validate checks f against the size limit and the accepted types.
func Validate(f File) error {
	if len(f.Data) > MaxSize {
		return &Error{Name: f.Name, Err: ErrTooLarge}
	}
	if classify(f.MimeType) == kindOther && !slices.Contains(AllowedTypes, f.MimeType) {
		return &Error{Name: f.Name, Err: fmt.Errorf("%w: %q", ErrUnsupported, f.MimeType)}
	}
	return nil
}

// Process validates f and converts it into an attachment.
func Process(f File) (llm.Attachment, error) {
	if err := Validate(f); err != nil {
		return llm.Attachment{}, err
	}

	att := llm.Attachment{
		ID:       uuid.NewString(),
		Type:     llm.AttachmentFile,
		Name:     f.Name,
		Size:     int64(len(f.Data)),
		MimeType: f.MimeType,
	}

	switch classify(f.MimeType) {
	case kindImage:
		att.Type = llm.AttachmentImage
		att.Content = DataURL(f.MimeType, f.Data)
	case kindPDF:
		att.Content = pdfPlaceholder(f.Name, att.Size)
	default:
		att.Content = textContent(f.Data)
	}

	return att, nil
}

// ProcessAll converts every file. It is all-or-nothing: if any file fails,
// no attachments are returned and the error joins every failure.
func ProcessAll(files []File) ([]llm.Attachment, error) {
	out := make([]llm.Attachment, 0, len(files))
	var errs []error

	for _, f := range files {
		att, err := Process(f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, att)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// ReadFile loads path, refusing oversized files before reading them.
func ReadFile(path string) (File, error) {
	name := filepath.Base(path)

	info, err := os.Stat(path)
	if err != nil {
		return File{}, &Error{Name: name, Err: err}
	}
	if info.IsDir() {
		return File{}, &Error{Name: name, Err: errors.New("is a directory")}
	}
	if info.Size() > MaxSize {
		return File{}, &Error{Name: name, Err: ErrTooLarge}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, &Error{Name: name, Err: err}
	}

	return File{Name: name, MimeType: DetectType(name, data), Data: data}, nil
}

// ProcessPaths reads and converts local files, all-or-nothing.
func ProcessPaths(paths ...string) ([]llm.Attachment, error) {
	files := make([]File, 0, len(paths))
	var errs []error

	for _, p := range paths {
		f, err := ReadFile(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		files = append(files, f)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return ProcessAll(files)
}

// DetectType returns the media type for a file, without parameters. The
// extension wins; content sniffing is the fallback.
func DetectType(name string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(name))

	t := extensionTypes[ext]
	if t == "" {
		t = mime.TypeByExtension(ext)
	}
	if t == "" {
		t = http.DetectContentType(data)
	}

	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return t
}

// DataURL encodes data as a base64 data URL.
func DataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// FormatSize renders a byte count with a binary unit, e.g. "1.5 MB".
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}

	units := []string{"B", "KB", "MB", "GB"}
	i := min(int(math.Floor(math.Log(float64(bytes))/math.Log(1024))), len(units)-1)
	v := math.Round(float64(bytes)/math.Pow(1024, float64(i))*100) / 100

	return strconv.FormatFloat(v, 'f', -1, 64) + " " + units[i]
}

func textContent(data []byte) string {
	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "\uFFFD")
	}

	if utf8.RuneCountInString(text) <= MaxTextRunes {
		return text
	}
	return string([]rune(text)[:MaxTextRunes]) + TruncationMarker
}

func pdfPlaceholder(name string, size int64) string {
	return fmt.Sprintf("[PDF file: %s, size: %s]\n\nNote: PDF text extraction is not supported; only the file details are included.",
		name, FormatSize(size))
}
