// Package upload stores prescription and lab-report files and extracts their
// text for analysis.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"github.com/rxcheck/rxcheck/internal/platform/apperr"
	"github.com/rxcheck/rxcheck/internal/platform/blobstore"
)

const DefaultMaxDimension = 2048

const uploadFailedMessage = "File upload failed."

// TextExtractor runs OCR over a document. *llm.Gemini satisfies it.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte, mimeType string) (string, error)
}

// File is one uploaded document.
type File struct {
	Name        string
	ContentType string
	UserID      string
	Content     io.Reader
}

// Result is the outcome of an upload. OCRText is empty when extraction
// failed; the stored file is still valid.
type Result struct {
	URL     string
	OCRText string
	Blob    *blobstore.BlobMetadata
}

type Service struct {
	store  blobstore.BlobStore
	ocr    TextExtractor
	maxDim int
	logger zerolog.Logger
}

// NewService creates an upload service. ocr may be nil to skip extraction.
func NewService(store blobstore.BlobStore, ocr TextExtractor, maxDim int, logger zerolog.Logger) *Service {
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	return &Service{
		store:  store,
		ocr:    ocr,
		maxDim: maxDim,
		logger: logger.With().Str("component", "upload").Logger(),
	}
}

// Upload stores f and extracts its text.
func (s *Service) Upload(ctx context.Context, f File) (*Result, error) {
	meta := blobstore.BlobMetadata{
		FileName:    f.Name,
		ContentType: f.ContentType,
		UserID:      f.UserID,
	}
	if err := blobstore.Validate(meta); err != nil {
		return nil, apperr.Validation(validationMessage(err))
	}

	data, err := io.ReadAll(io.LimitReader(f.Content, blobstore.MaxFileSize+1))
	if err != nil {
		return nil, apperr.Persistence(uploadFailedMessage, fmt.Errorf("read upload: %w", err))
	}
	if len(data) > blobstore.MaxFileSize {
		return nil, apperr.Validation(validationMessage(blobstore.ErrFileTooLarge))
	}

	stored, err := s.store.Upload(ctx, meta, bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, blobstore.ErrInvalidContentType) || errors.Is(err, blobstore.ErrFileTooLarge) || errors.Is(err, blobstore.ErrMissingFileName) {
			return nil, apperr.Validation(validationMessage(err))
		}
		s.logger.Error().Err(err).Str("file_name", f.Name).Msg("store upload failed")
		return nil, apperr.Persistence(uploadFailedMessage, err)
	}

	res := &Result{URL: stored.URL, Blob: stored}
	if s.ocr == nil {
		return res, nil
	}

	ocrData, ocrType := s.prepareForOCR(data, stored.ContentType)
	text, err := s.ocr.ExtractText(ctx, ocrData, ocrType)
	if err != nil {
		s.logger.Warn().Err(err).Str("blob_id", stored.ID).Msg("text extraction failed, returning upload without text")
		return res, nil
	}
	res.OCRText = text

	s.logger.Info().
		Str("blob_id", stored.ID).
		Str("user_id", f.UserID).
		Int64("size", stored.Size).
		Int("ocr_chars", len(text)).
		Msg("document uploaded")
	return res, nil
}

// prepareForOCR downsizes PNG and JPEG images so neither side exceeds
// maxDim. Other formats, and images that fail to decode, pass through.
func (s *Service) prepareForOCR(data []byte, contentType string) ([]byte, string) {
	if contentType != "image/png" && contentType != "image/jpeg" {
		return data, contentType
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		s.logger.Debug().Err(err).Msg("image decode failed, sending original")
		return data, contentType
	}
	b := img.Bounds()
	if b.Dx() <= s.maxDim && b.Dy() <= s.maxDim {
		return data, contentType
	}

	resized := imaging.Fit(img, s.maxDim, s.maxDim, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return data, contentType
	}
	return buf.Bytes(), "image/jpeg"
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return "File exceeds the 10 MB limit."
	case errors.Is(err, blobstore.ErrInvalidContentType):
		return "File type not allowed. Upload a PNG, JPEG, WebP or PDF."
	case errors.Is(err, blobstore.ErrMissingFileName):
		return "No file uploaded."
	}
	return err.Error()
}
