package handlers

import (
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/pneumoscan-labs/pneumoscan-go-sdk/models"
	"go.uber.org/zap"
)

// UploadHandler owns the single currently-selected file. Click-to-browse
// and drag-and-drop on the surface both arrive as the same select_file
// event, so both paths land here.
type UploadHandler struct {
	session *TriageSession

	mu       sync.Mutex
	selected *models.SelectedFile
}

func InitUploadHandler(session *TriageSession) *UploadHandler {
	session.Logger.Info("Initializing Upload Handler...")
	return &UploadHandler{session: session}
}

// SelectFile replaces the current selection with the incoming payload.
// No validation happens here; the backend's X-ray gate decides whether
// the file is usable.
func (h *UploadHandler) SelectFile(name, mimeType, b64 string) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		h.session.Logger.Error("Failed to decode selected file payload", zap.Error(err))
		return
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	file := &models.SelectedFile{
		Name:     name,
		MimeType: mimeType,
		Data:     data,
	}

	h.mu.Lock()
	h.selected = file
	h.mu.Unlock()

	h.session.Logger.Debug("File selected",
		zap.String("name", name),
		zap.String("mime_type", mimeType),
		zap.Int("bytes", len(data)))

	go h.decodePreview(file)
}

// decodePreview builds the data URI for the local preview and tells the
// surfaces to swap the placeholder prompt for the image.
func (h *UploadHandler) decodePreview(file *models.SelectedFile) {
	uri := fmt.Sprintf("data:%s;base64,%s", file.MimeType, base64.StdEncoding.EncodeToString(file.Data))
	h.session.Broadcast("preview_ready", map[string]string{
		"name":     file.Name,
		"data_uri": uri,
	})
}

func (h *UploadHandler) Selected() *models.SelectedFile {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.selected
}

func (h *UploadHandler) Clear() {
	h.mu.Lock()
	h.selected = nil
	h.mu.Unlock()
}
