package server

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-chi/chi/v5"
	"github.com/jdeng/goheif"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/MHMDHIDR/expenses-tracker/internal/models"
	"github.com/MHMDHIDR/expenses-tracker/internal/observability"
)

const thumbMaxDim = 500

// ImageService stores receipt images and derives thumbnails and capture
// dates from them.
type ImageService struct {
	basePath      string
	maxFileSize   int64
	allowedExts   map[string]bool
	logger        *observability.Logger
}

// NewImageService creates an ImageService rooted at basePath
func NewImageService(basePath string, allowedExtensions []string, maxFileSizeMB int64) (*ImageService, error) {
	if err := os.MkdirAll(filepath.Join(basePath, "thumbs"), 0755); err != nil {
		return nil, err
	}
	exts := make(map[string]bool, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		exts[strings.ToLower(ext)] = true
	}
	return &ImageService{
		basePath:    basePath,
		maxFileSize: maxFileSizeMB * 1024 * 1024,
		allowedExts: exts,
		logger:      observability.GetLogger().WithField("component", "image-service"),
	}, nil
}

// Store saves the image for a receipt, writes a thumbnail, and extracts the
// EXIF capture date when present.
func (s *ImageService) Store(receiptID, filename string, data []byte) (*models.ImageUploadResult, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !s.allowedExts[ext] {
		return nil, fmt.Errorf("file type %s is not allowed", ext)
	}
	if int64(len(data)) > s.maxFileSize {
		return nil, fmt.Errorf("file exceeds the %dMB limit", s.maxFileSize/(1024*1024))
	}

	storedName := receiptID + ext
	storedPath := filepath.Join(s.basePath, storedName)
	if err := os.WriteFile(storedPath, data, 0644); err != nil {
		return nil, err
	}

	result := &models.ImageUploadResult{
		ReceiptID: receiptID,
		ImagePath: storedName,
	}

	if taken, err := captureDate(data); err == nil && taken != nil {
		result.SuggestedDate = taken
	}

	thumbName, err := s.writeThumbnail(storedName, data, ext)
	if err != nil {
		// Thumbnails are derived data; the upload itself succeeded
		s.logger.Warnf("thumbnail for %s: %v", storedName, err)
	} else {
		result.ThumbnailPath = thumbName
	}

	return result, nil
}

// Path resolves a stored image name to its absolute path
func (s *ImageService) Path(storedName string) string {
	return filepath.Join(s.basePath, filepath.Base(storedName))
}

func (s *ImageService) writeThumbnail(storedName string, data []byte, ext string) (string, error) {
	var img image.Image
	var err error
	if ext == ".heic" || ext == ".heif" {
		img, err = goheif.Decode(bytes.NewReader(data))
	} else {
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return "", fmt.Errorf("decoding image: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width > thumbMaxDim || height > thumbMaxDim {
		if width >= height {
			img = imaging.Resize(img, thumbMaxDim, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, thumbMaxDim, imaging.Lanczos)
		}
	}

	thumbName := filepath.Join("thumbs", strings.TrimSuffix(filepath.Base(storedName), ext)+".jpg")
	thumbPath := filepath.Join(s.basePath, thumbName)
	if err := imaging.Save(img, thumbPath, imaging.JPEGQuality(85)); err != nil {
		return "", err
	}
	return thumbName, nil
}

// captureDate pulls the EXIF original date; nil when the image has none
func captureDate(data []byte) (*time.Time, error) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil
	}
	taken, err := x.DateTime()
	if err != nil {
		return nil, nil
	}
	utc := taken.UTC()
	return &utc, nil
}

// UploadReceiptImage handles POST /receipts/{id}/image (multipart)
func (h *Handler) UploadReceiptImage(w http.ResponseWriter, r *http.Request) {
	if h.images == nil {
		h.respondError(w, http.StatusNotFound, "Image storage is not configured.")
		return
	}
	id := chi.URLParam(r, "id")

	receipt, err := h.repo.GetReceipt(r.Context(), id)
	if err != nil {
		var nf models.NotFoundError
		if errors.As(err, &nf) {
			h.respondError(w, http.StatusNotFound, "Receipt not found.")
			return
		}
		h.logger.Errorf("fetching receipt %s: %v", id, err)
		h.respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.respondError(w, http.StatusBadRequest, "Request must be multipart/form-data.")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "No file provided or file is empty.")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to read file.")
		return
	}

	result, err := h.images.Store(receipt.ID, header.Filename, data)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.repo.UpdateReceipt(r.Context(), id, models.ReceiptPatch{ImagePath: &result.ImagePath}); err != nil {
		h.logger.Errorf("stamping image path on receipt %s: %v", id, err)
		h.respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}

	h.notify("receipt", "update", id)
	h.respondJSON(w, http.StatusOK, result)
}

// GetReceiptImage handles GET /receipts/{id}/image
func (h *Handler) GetReceiptImage(w http.ResponseWriter, r *http.Request) {
	if h.images == nil {
		h.respondError(w, http.StatusNotFound, "Image storage is not configured.")
		return
	}
	id := chi.URLParam(r, "id")

	receipt, err := h.repo.GetReceipt(r.Context(), id)
	if err != nil {
		var nf models.NotFoundError
		if errors.As(err, &nf) {
			h.respondError(w, http.StatusNotFound, "Receipt not found.")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}
	if receipt.ImagePath == nil {
		h.respondError(w, http.StatusNotFound, "Receipt has no image.")
		return
	}

	http.ServeFile(w, r, h.images.Path(*receipt.ImagePath))
}
