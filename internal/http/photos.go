package httpserver

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/Clark-Hu/tourist-hub/internal/domain"
	"github.com/Clark-Hu/tourist-hub/internal/metrics"
	"github.com/Clark-Hu/tourist-hub/internal/repository"
)

const maxCaptionLength = 500

// allowedImageTypes maps accepted MIME types to the stored file extension.
var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

type photoResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	PlaceID     *string   `json:"place_id"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	Caption     string    `json:"caption"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Server) handleListPhotos(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var filters repository.PhotoListFilters
	if val := strings.TrimSpace(query.Get("user_id")); val != "" {
		filters.UserID = &val
	}
	if val := strings.TrimSpace(query.Get("place_id")); val != "" {
		filters.PlaceID = &val
	}
	if val := strings.TrimSpace(query.Get("limit")); val != "" {
		limit, err := strconv.Atoi(val)
		if err != nil || limit < 0 {
			s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid limit value")
			return
		}
		filters.Limit = limit
	}

	photos, err := s.repo.Photos.List(r.Context(), filters)
	if err != nil {
		s.respondRepoError(w, r, err, "list photos")
		return
	}
	resp := make([]photoResponse, 0, len(photos))
	for _, p := range photos {
		resp = append(resp, toPhotoResponse(p))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	photo, err := s.repo.Photos.Get(r.Context(), urlParam(r, "photoID"))
	if err != nil {
		s.respondRepoError(w, r, err, "fetch photo")
		return
	}
	s.respondJSON(w, http.StatusOK, toPhotoResponse(photo))
}

func (s *Server) handleUploadPhoto(w http.ResponseWriter, r *http.Request) {
	// Leave room for the multipart envelope and the text fields.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.UploadMaxBytes+maxRequestBody)
	if err := r.ParseMultipartForm(s.cfg.UploadMaxBytes); err != nil {
		var maxBytesError *http.MaxBytesError
		if errors.As(err, &maxBytesError) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Photo is too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "Expected a multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("photo")
	if err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "photo is required")
		return
	}
	defer file.Close()
	if header.Size > s.cfg.UploadMaxBytes {
		s.respondError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Photo is too large")
		return
	}

	caption := strings.TrimSpace(r.FormValue("caption"))
	if len(caption) > maxCaptionLength {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "caption must be at most 500 characters")
		return
	}
	placeID := strings.TrimSpace(r.FormValue("place_id"))
	if placeID != "" && !repository.ValidID(placeID) {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "place_id must be a valid identifier")
		return
	}

	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "Unable to read photo")
		return
	}
	contentType := strings.SplitN(mtype.String(), ";", 2)[0]
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		s.respondError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "Only JPEG, PNG, WebP and GIF images are accepted")
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to store photo")
		return
	}

	fileName := uuid.NewString() + ext
	written, err := s.saveUpload(fileName, file)
	if err != nil {
		s.logger.Error().Err(err).Str("file", fileName).Msg("store upload failed")
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to store photo")
		return
	}

	params := repository.PhotoCreateParams{
		UserID:      currentUser(r),
		FileName:    fileName,
		ContentType: contentType,
		Caption:     caption,
	}
	if placeID != "" {
		params.PlaceID = &placeID
	}
	photo, err := s.repo.Photos.Create(r.Context(), params)
	if err != nil {
		s.removeUpload(fileName)
		s.respondRepoError(w, r, err, "save photo")
		return
	}
	metrics.UploadedBytes.Add(float64(written))

	w.Header().Set("Location", "/photos/"+photo.ID)
	s.respondJSON(w, http.StatusCreated, toPhotoResponse(photo))
}

func (s *Server) handleDeletePhoto(w http.ResponseWriter, r *http.Request) {
	photo, err := s.repo.Photos.Delete(r.Context(), urlParam(r, "photoID"), currentUser(r))
	if err != nil {
		s.respondRepoError(w, r, err, "delete photo")
		return
	}
	s.removeUpload(photo.FileName)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) saveUpload(name string, src io.Reader) (int64, error) {
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return 0, err
	}
	path := filepath.Join(s.cfg.UploadDir, name)
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, err
	}
	written, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, err
	}
	return written, nil
}

// removeUpload deletes a stored file. Failures are only logged.
func (s *Server) removeUpload(name string) {
	path := filepath.Join(s.cfg.UploadDir, filepath.Base(name))
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn().Err(err).Str("file", name).Msg("remove upload failed")
	}
}

func toPhotoResponse(p domain.Photo) photoResponse {
	return photoResponse{
		ID:          p.ID,
		UserID:      p.UserID,
		PlaceID:     p.PlaceID,
		URL:         "/uploads/" + p.FileName,
		ContentType: p.ContentType,
		Caption:     p.Caption,
		CreatedAt:   p.CreatedAt,
	}
}
