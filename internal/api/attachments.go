package api

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pcorbett/issuedeck/internal/middleware"
	"github.com/pcorbett/issuedeck/internal/policy"
	"github.com/pcorbett/issuedeck/internal/store"
)

const maxUploadSize = 50 << 20 // 50 MB

var allowedAttachmentMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"text/plain": true,
	"text/csv":   true,
}

// AttachmentsHandler serves ticket file attachments. Files live on disk
// under UploadsDir; the store holds the records.
type AttachmentsHandler struct {
	Attachments *store.AttachmentStore
	Tickets     *store.TicketStore
	Projects    *store.ProjectStore
	UploadsDir  string
}

// Upload handles POST /api/attachments/tickets/{id}/upload. The file is
// written to disk first; if the record insert then fails the file is
// removed so no orphans accumulate.
func (h *AttachmentsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	ticket, err := h.Tickets.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleStoreError(w, "get ticket", err)
		return
	}
	isMember, err := h.Projects.IsMember(r.Context(), ticket.ProjectID, identity.UserID)
	if err != nil {
		handleStoreError(w, "check membership", err)
		return
	}
	if !isMember {
		sendError(w, http.StatusForbidden, "not a project member")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+1024)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		if strings.Contains(err.Error(), "request body too large") {
			sendError(w, http.StatusRequestEntityTooLarge, "file too large (max 50MB)")
			return
		}
		sendError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		sendError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	if header.Size > maxUploadSize {
		sendError(w, http.StatusRequestEntityTooLarge, "file too large (max 50MB)")
		return
	}

	mimeType := detectMimeType(file, header.Filename)
	if !allowedAttachmentMimeTypes[mimeType] {
		sendError(w, http.StatusUnsupportedMediaType, "unsupported attachment type")
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		sendError(w, http.StatusInternalServerError, "failed to process file")
		return
	}

	attachment, err := h.saveUpload(r.Context(), ticket.ID, identity.UserID, file, header.Filename, mimeType)
	if err != nil {
		handleStoreError(w, "store attachment", err)
		return
	}

	sendJSON(w, http.StatusCreated, attachment)
}

// saveUpload writes the file to disk, then inserts the record. A failed
// insert removes the file again so no orphans accumulate under UploadsDir.
func (h *AttachmentsHandler) saveUpload(ctx context.Context, ticketID, uploaderID string, file io.Reader, originalFilename, mimeType string) (*store.Attachment, error) {
	storedName := uuid.NewString() + strings.ToLower(filepath.Ext(originalFilename))
	if err := os.MkdirAll(h.UploadsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir %s: %w", h.UploadsDir, err)
	}
	filePath := filepath.Join(h.UploadsDir, storedName)

	dst, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("create attachment file %s: %w", filePath, err)
	}
	written, err := io.Copy(dst, file)
	closeErr := dst.Close()
	if err != nil || closeErr != nil {
		os.Remove(filePath)
		return nil, fmt.Errorf("write attachment file %s: copy=%v close=%v", filePath, err, closeErr)
	}

	attachment, err := h.Attachments.Create(ctx, store.CreateAttachmentInput{
		TicketID:         ticketID,
		UploadedBy:       uploaderID,
		Filename:         storedName,
		OriginalFilename: originalFilename,
		FilePath:         filePath,
		FileSize:         written,
		MimeType:         mimeType,
	})
	if err != nil {
		os.Remove(filePath)
		return nil, err
	}
	return attachment, nil
}

// List handles GET /api/attachments/tickets/{id}.
func (h *AttachmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	ticket, err := h.Tickets.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleStoreError(w, "get ticket", err)
		return
	}
	isMember, err := h.Projects.IsMember(r.Context(), ticket.ProjectID, identity.UserID)
	if err != nil {
		handleStoreError(w, "check membership", err)
		return
	}
	if !isMember {
		sendError(w, http.StatusForbidden, "not a project member")
		return
	}

	attachments, err := h.Attachments.ListByTicket(r.Context(), ticket.ID)
	if err != nil {
		handleStoreError(w, "list attachments", err)
		return
	}
	sendJSON(w, http.StatusOK, attachments)
}

// Download streams the file with its original filename.
func (h *AttachmentsHandler) Download(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	attachment, ok := h.memberAttachment(w, r, identity.UserID)
	if !ok {
		return
	}

	f, err := os.Open(attachment.FilePath)
	if err != nil {
		log.Printf("attachment file missing: id=%s path=%s err=%v", attachment.ID, attachment.FilePath, err)
		sendError(w, http.StatusNotFound, "attachment file not found")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", attachment.MimeType)
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": attachment.OriginalFilename}))
	http.ServeContent(w, r, attachment.OriginalFilename, attachment.CreatedAt, f)
}

// Delete removes the record, then unlinks the file. A failed unlink is
// logged; the record is already gone so the download path cannot resurrect
// the file.
func (h *AttachmentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	attachment, ok := h.memberAttachment(w, r, identity.UserID)
	if !ok {
		return
	}

	ticket, err := h.Tickets.GetByID(r.Context(), attachment.TicketID)
	if err != nil {
		handleStoreError(w, "get attachment ticket", err)
		return
	}
	role, err := h.Projects.MemberRole(r.Context(), ticket.ProjectID, identity.UserID)
	if err != nil {
		handleStoreError(w, "check membership", err)
		return
	}
	if !policy.CanDeleteAttachment(attachment.UploadedBy, identity.UserID, role) {
		sendError(w, http.StatusForbidden, "insufficient permission to delete this attachment")
		return
	}

	if err := h.Attachments.Delete(r.Context(), attachment.ID); err != nil {
		handleStoreError(w, "delete attachment", err)
		return
	}
	if err := os.Remove(attachment.FilePath); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to remove attachment file %s: %v", attachment.FilePath, err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AttachmentsHandler) memberAttachment(w http.ResponseWriter, r *http.Request, userID string) (*store.Attachment, bool) {
	attachment, err := h.Attachments.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleStoreError(w, "get attachment", err)
		return nil, false
	}
	ticket, err := h.Tickets.GetByID(r.Context(), attachment.TicketID)
	if err != nil {
		handleStoreError(w, "get attachment ticket", err)
		return nil, false
	}
	isMember, err := h.Projects.IsMember(r.Context(), ticket.ProjectID, userID)
	if err != nil {
		handleStoreError(w, "check membership", err)
		return nil, false
	}
	if !isMember {
		sendError(w, http.StatusForbidden, "not a project member")
		return nil, false
	}
	return attachment, true
}

// detectMimeType sniffs the first 512 bytes and falls back to the file
// extension for formats the sniffer reports as octet-stream.
func detectMimeType(file multipart.File, filename string) string {
	buf := make([]byte, 512)
	n, _ := file.Read(buf)
	mimeType := "application/octet-stream"
	if n > 0 {
		mimeType = http.DetectContentType(buf[:n])
	}
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = parsed
	}
	if mimeType == "application/octet-stream" || mimeType == "application/zip" {
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".pdf":
			return "application/pdf"
		case ".doc":
			return "application/msword"
		case ".docx":
			return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
		case ".xls":
			return "application/vnd.ms-excel"
		case ".xlsx":
			return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		case ".csv":
			return "text/csv"
		case ".txt":
			return "text/plain"
		}
	}
	if mimeType == "text/plain" && strings.ToLower(filepath.Ext(filename)) == ".csv" {
		return "text/csv"
	}
	return mimeType
}
