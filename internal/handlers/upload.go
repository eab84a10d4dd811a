package handlers

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	api "github.com/mrhollen/SalesAgent/internal/api/documents"
	"github.com/mrhollen/SalesAgent/internal/parsing"
	"github.com/mrhollen/SalesAgent/internal/rag"
)

// MaxUploadSize caps the request body of an upload.
const MaxUploadSize = 10 * 1024 * 1024 // 10 MB

type UploadHandler struct {
	Service *rag.Service
	Logger  *slog.Logger
}

// UploadFile extracts the text of a PDF or plain text upload and indexes it.
func (u *UploadHandler) UploadFile(userID string, w http.ResponseWriter, r *http.Request) {
	logger := loggerOr(u.Logger)

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)

	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		logger.Debug("error parsing multipart form", "error", err)
		writeError(w, http.StatusBadRequest, "The uploaded file is too big. Please choose a file that's less than 10MB in size")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid file upload")
		return
	}
	defer file.Close()

	if !parsing.Supported(header.Filename) {
		writeError(w, http.StatusBadRequest, "Please upload a PDF or text file")
		return
	}

	chunkSize := 0
	if v := r.FormValue("chunk_size"); v != "" {
		chunkSize, err = strconv.Atoi(v)
		if err != nil || chunkSize <= 0 {
			writeError(w, http.StatusBadRequest, "chunk_size must be positive")
			return
		}
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, file)
	if err != nil {
		logger.Error("error reading the file", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to read uploaded file")
		return
	}
	logger.Debug("file uploaded", "filename", header.Filename, "bytes", n)

	text, err := parsing.ExtractText(header.Filename, buf.Bytes())
	if err != nil {
		logger.Info("error extracting text", "filename", header.Filename, "error", err)
		writeError(w, http.StatusUnprocessableEntity, "Failed to extract text from file")
		return
	}

	res, err := u.Service.Index(r.Context(), userID, header.Filename, text, chunkSize)
	if err != nil {
		writeServiceError(logger, w, "Failed to index uploaded file", err)
		return
	}

	writeJSON(w, http.StatusCreated, api.AddDocumentResponse{
		DocumentID: res.DocumentID,
		ChunkCount: res.ChunkCount,
	})
}
