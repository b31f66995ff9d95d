package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/docquery/docquery/internal/log"
)

// Sentinel errors for file ingestion.
var (
	// ErrUnsupportedFormat indicates a file extension no extractor handles.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrExtractionFailed indicates the PDF or OCR extractor failed.
	// The underlying cause is preserved in the wrapped error.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrNotDirectory indicates a directory ingestion on a non-directory path.
	ErrNotDirectory = errors.New("not a directory")
)

// Scanned-PDF detection defaults. A PDF whose first few pages average
// fewer extracted characters than the threshold is treated as scanned
// and re-processed through OCR. The threshold is an empirical trade-off:
// it avoids always running OCR at the risk of misclassifying a genuinely
// sparse text PDF.
const (
	DefaultScannedThreshold   = 100
	DefaultScannedSamplePages = 3
)

// Page is one page of extracted text. Number is 1-based.
type Page struct {
	Text   string
	Number int
}

// PDFExtractor extracts page-level text from a PDF, either directly from
// the text layer or by rasterizing and running OCR.
type PDFExtractor interface {
	ExtractPages(ctx context.Context, path string) ([]Page, error)
	OCRPages(ctx context.Context, path string) ([]Page, error)
}

// ImageExtractor runs OCR over a single image file.
type ImageExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tiff": true,
	".bmp":  true,
	".webp": true,
}

// FileSourceConfig contains parameters for a FileSource.
type FileSourceConfig struct {
	PDF    PDFExtractor
	Image  ImageExtractor
	Logger log.Logger

	// ScannedThreshold and ScannedSamplePages tune the OCR fallback
	// heuristic. Zero values use the package defaults.
	ScannedThreshold   int
	ScannedSamplePages int
}

// FileSource produces Documents from files on disk, one per logical unit:
// a PDF yields one Document per page, an image yields one Document.
type FileSource struct {
	pdf         PDFExtractor
	image       ImageExtractor
	logger      log.Logger
	threshold   int
	samplePages int
}

// NewFileSource creates a FileSource from cfg.
func NewFileSource(cfg FileSourceConfig) (*FileSource, error) {
	if cfg.PDF == nil {
		return nil, errors.New("pdf extractor is required")
	}
	if cfg.Image == nil {
		return nil, errors.New("image extractor is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}

	threshold := cfg.ScannedThreshold
	if threshold == 0 {
		threshold = DefaultScannedThreshold
	}
	samplePages := cfg.ScannedSamplePages
	if samplePages == 0 {
		samplePages = DefaultScannedSamplePages
	}

	return &FileSource{
		pdf:         cfg.PDF,
		image:       cfg.Image,
		logger:      cfg.Logger,
		threshold:   threshold,
		samplePages: samplePages,
	}, nil
}

// Documents extracts path into per-unit Documents. forceOCR skips the
// scanned-PDF heuristic and always runs PDFs through OCR.
//
// A missing file returns an error wrapping fs.ErrNotExist; an extension
// with no extractor returns ErrUnsupportedFormat.
func (s *FileSource) Documents(ctx context.Context, path string, forceOCR bool) ([]Document, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".pdf":
		return s.pdfDocuments(ctx, path, forceOCR)
	case imageExtensions[ext]:
		return s.imageDocuments(ctx, path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// DirectoryDocuments walks dir recursively and extracts every supported
// file into Documents. Files with unsupported extensions are skipped, not
// failed; an extraction failure on a supported file fails the whole call.
// A missing or non-directory path returns an error wrapping the fs error.
func (s *FileSource) DirectoryDocuments(ctx context.Context, dir string, forceOCR bool) ([]Document, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}

	var docs []Document
	skipped := 0
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".pdf" && !imageExtensions[ext] {
			skipped++
			return nil
		}

		fileDocs, err := s.Documents(ctx, path, forceOCR)
		if err != nil {
			return err
		}
		docs = append(docs, fileDocs...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("directory extracted",
		"dir", dir,
		"documents", len(docs),
		"skipped_files", skipped,
	)
	return docs, nil
}

func (s *FileSource) pdfDocuments(ctx context.Context, path string, forceOCR bool) ([]Document, error) {
	filename := filepath.Base(path)

	pages, err := s.pdf.ExtractPages(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: pdf %s: %w", ErrExtractionFailed, filename, err)
	}

	method := "text"
	if forceOCR || s.looksScanned(pages) {
		s.logger.Info("treating pdf as scanned, running ocr",
			"file", filename, "forced", forceOCR)
		pages, err = s.pdf.OCRPages(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("%w: pdf ocr %s: %w", ErrExtractionFailed, filename, err)
		}
		method = "ocr"
	}

	docs := make([]Document, 0, len(pages))
	for _, page := range pages {
		docs = append(docs, Document{
			Text: page.Text,
			Metadata: map[string]any{
				"type":        "pdf",
				"method":      method,
				"filename":    filename,
				"page":        page.Number,
				"total_pages": len(pages),
			},
		})
	}
	return docs, nil
}

// looksScanned applies the scanned-PDF heuristic: average extracted text
// length over the first few pages below the threshold.
func (s *FileSource) looksScanned(pages []Page) bool {
	if len(pages) == 0 {
		return true
	}

	sample := len(pages)
	if sample > s.samplePages {
		sample = s.samplePages
	}

	total := 0
	for _, page := range pages[:sample] {
		total += len(strings.TrimSpace(page.Text))
	}
	return total/sample < s.threshold
}

func (s *FileSource) imageDocuments(ctx context.Context, path string) ([]Document, error) {
	filename := filepath.Base(path)

	text, err := s.image.ExtractText(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: image %s: %w", ErrExtractionFailed, filename, err)
	}

	return []Document{{
		Text: text,
		Metadata: map[string]any{
			"type":     "image",
			"method":   "ocr",
			"filename": filename,
		},
	}}, nil
}
