package controllers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/obralink/oraculo/internal/services"
	"github.com/obralink/oraculo/pkg/domain"

	"github.com/gin-gonic/gin"
)

// maxDocumentBytes bounds uploads before they reach the OCR provider.
const maxDocumentBytes = 20 << 20

type validateController struct {
	pipeline services.PipelineService
}

func NewValidateController(pipeline services.PipelineService) *validateController {
	return &validateController{pipeline: pipeline}
}

type validateResponse struct {
	IsValid        bool                  `json:"is_valid"`
	Reasons        []string              `json:"reasons,omitempty"`
	Extracted      domain.ExtractionOut  `json:"extracted"`
	IdempotencyKey string                `json:"idempotency_key"`
	Oracle         *oracleSubmissionView `json:"oracle,omitempty"`
}

type oracleSubmissionView struct {
	State  domain.SubmissionState `json:"state"`
	TxHash string                 `json:"transaction_hash,omitempty"`
	Reason domain.FailureReason   `json:"failure_reason,omitempty"`
	Result *domain.OracleResult   `json:"result,omitempty"`
}

// Handle accepts a multipart upload: the report under "document" plus
// building_id and milestone_number form fields. A document that fails the
// business rules is a successful validation with is_valid=false, not an error.
func (h *validateController) Handle(c *gin.Context) {
	ref, ok := milestoneFromForm(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("document")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing 'document' file"})
		return
	}
	if fileHeader.Size > maxDocumentBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "document too large"})
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable document"})
		return
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, maxDocumentBytes+1))
	if err != nil || len(content) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty or unreadable document"})
		return
	}
	if len(content) > maxDocumentBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "document too large"})
		return
	}

	doc := domain.RawDocument{
		Content:   content,
		MediaType: domain.DetectMediaType(fileHeader.Filename, content),
		Filename:  fileHeader.Filename,
	}

	res, err := h.pipeline.Process(c.Request.Context(), doc, ref)
	if err != nil {
		var xerr *domain.ExtractionError
		if errors.As(err, &xerr) {
			c.JSON(http.StatusBadGateway, gin.H{"error": xerr.Error(), "stage": xerr.Stage})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	resp := validateResponse{
		IsValid:        res.Verdict.Valid(),
		Reasons:        res.Verdict.Reasons,
		Extracted:      res.Entities.Out(),
		IdempotencyKey: res.Key.String(),
	}
	if res.Submission != nil {
		resp.Oracle = &oracleSubmissionView{
			State:  res.Submission.State,
			TxHash: res.Submission.TxHash,
			Reason: res.Submission.Reason,
			Result: res.Submission.Result,
		}
	}
	c.JSON(http.StatusOK, resp)
}

func milestoneFromForm(c *gin.Context) (domain.MilestoneReference, bool) {
	buildingID, err := strconv.ParseUint(c.PostForm("building_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'building_id'"})
		return domain.MilestoneReference{}, false
	}
	milestone, err := strconv.ParseUint(c.PostForm("milestone_number"), 10, 8)
	if err != nil || milestone == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'milestone_number' (1-255)"})
		return domain.MilestoneReference{}, false
	}
	return domain.MilestoneReference{BuildingID: buildingID, MilestoneNumber: uint8(milestone)}, true
}
