package v1

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/record"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/service"
	"github.com/gin-gonic/gin"
)

// multipartOverhead leaves room for form fields and boundaries on top of
// the file itself.
const multipartOverhead = 1 << 20

type RecordHandler struct {
	records        *service.RecordService
	links          *service.ShareLinkService
	publicBaseURL  string
	maxUploadBytes int64
}

func NewRecordHandler(records *service.RecordService, links *service.ShareLinkService, publicBaseURL string, maxUploadBytes int64) *RecordHandler {
	return &RecordHandler{
		records:        records,
		links:          links,
		publicBaseURL:  publicBaseURL,
		maxUploadBytes: maxUploadBytes,
	}
}

// Upload accepts multipart/form-data with a "file" part plus description and
// either doctor_id (patients) or patient_id (doctors).
func (h *RecordHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			respondServiceError(c, record.ErrFileTooLarge)
		case errors.Is(err, http.ErrMissingFile):
			respondServiceError(c, record.ErrFileRequired)
		default:
			respondError(c, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		}
		return
	}

	doctorID, ok := parseOptionalUUID(c, "doctor_id", c.PostForm("doctor_id"))
	if !ok {
		return
	}
	patientID, ok := parseOptionalUUID(c, "patient_id", c.PostForm("patient_id"))
	if !ok {
		return
	}

	f, err := fh.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "cannot read uploaded file")
		return
	}
	defer f.Close()

	rec, err := h.records.Upload(c.Request.Context(), principal(c), &service.UploadCommand{
		PatientID:   patientID,
		DoctorID:    doctorID,
		Description: c.PostForm("description"),
		FileName:    fh.Filename,
		Size:        fh.Size,
		Content:     f,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, toRecordResponse(rec))
}

func (h *RecordHandler) List(c *gin.Context) {
	page, err := h.records.List(c.Request.Context(), principal(c),
		parseQueryInt(c, "page", 1), parseQueryInt(c, "page_size", 20))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toPagedRecords(page))
}

func (h *RecordHandler) Get(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	rec, err := h.records.Get(c.Request.Context(), principal(c), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toRecordResponse(rec))
}

func (h *RecordHandler) Download(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	rec, rc, err := h.records.Open(c.Request.Context(), principal(c), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	defer rc.Close()
	sendFile(c, rec, rc)
}

type shareRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *RecordHandler) Share(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req shareRequest
	if !bindJSON(c, &req) {
		return
	}
	target, ok := parseOptionalUUID(c, "user_id", req.UserID)
	if !ok {
		return
	}
	rec, err := h.records.ShareWithUser(c.Request.Context(), principal(c), id, *target)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toRecordResponse(rec))
}

func (h *RecordHandler) CreateShareLink(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	link, err := h.links.IssueForRecord(c.Request.Context(), principal(c), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, ShareLinkResponse{
		Link:      h.publicBaseURL + "/api/v1/share/" + link.Token,
		Token:     link.Token,
		ExpiresAt: link.ExpiresAt,
	})
}

func (h *RecordHandler) Delete(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	if err := h.records.Delete(c.Request.Context(), principal(c), id); err != nil {
		respondServiceError(c, err)
		return
	}
	respondMessage(c, "record deleted")
}

func sendFile(c *gin.Context, rec *record.Record, body io.Reader) {
	contentType := rec.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, rec.SizeBytes, contentType, body, map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": rec.FileName}),
	})
}
