package api

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcorbett/issuedeck/internal/store"
)

func TestSaveUploadRemovesFileWhenInsertFails(t *testing.T) {
	db := setupTestDB(t)

	uploadsDir := t.TempDir()
	handler := &AttachmentsHandler{
		Attachments: store.NewAttachmentStore(db),
		Tickets:     store.NewTicketStore(db),
		Projects:    store.NewProjectStore(db),
		UploadsDir:  uploadsDir,
	}

	// Well-formed IDs that reference no rows, so the record insert fails
	// after the file has been written.
	missingTicketID := "00000000-0000-4000-8000-000000000001"
	missingUserID := "00000000-0000-4000-8000-000000000002"

	attachment, err := handler.saveUpload(
		context.Background(),
		missingTicketID,
		missingUserID,
		strings.NewReader("orphan candidate"),
		"notes.txt",
		"text/plain",
	)
	require.Error(t, err)
	assert.Nil(t, attachment)

	entries, err := os.ReadDir(uploadsDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed insert must not leave files behind")
}
