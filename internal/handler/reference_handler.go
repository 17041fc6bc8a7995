package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/dto"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/models"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/service"
	appErrors "github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/errors"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/response"
)

type referenceService interface {
	Submit(ctx context.Context, actor models.Actor, req dto.SubmitReferencesRequest) (*dto.SubmitReferencesResult, error)
	ListMine(ctx context.Context, userID string) ([]models.Reference, error)
	List(ctx context.Context, query dto.ReferenceQuery) ([]models.Reference, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Reference, error)
}

type statusChanger interface {
	ChangeStatus(ctx context.Context, id string, status models.ReferenceStatus, actor models.Actor) (*dto.StatusChangeResult, error)
}

type auditTrail interface {
	Trail(ctx context.Context, referenceID string) ([]models.AuditLog, error)
}

type outreachExporter interface {
	Outreach(ctx context.Context, format dto.ExportFormat, query dto.ReferenceQuery) (*service.ExportFile, error)
}

// ReferenceHandler exposes reference intake and administration endpoints.
type ReferenceHandler struct {
	references referenceService
	workflow   statusChanger
	audit      auditTrail
	exporter   outreachExporter
}

// NewReferenceHandler builds a new handler.
func NewReferenceHandler(references referenceService, workflow statusChanger, audit auditTrail, exporter outreachExporter) *ReferenceHandler {
	return &ReferenceHandler{references: references, workflow: workflow, audit: audit, exporter: exporter}
}

// Submit godoc
// @Summary Submit references
// @Description Stores up to 10 references for the calling voter and notifies them over WhatsApp. Contacts already on file are skipped.
// @Tags References
// @Accept json
// @Produce json
// @Param payload body dto.SubmitReferencesRequest true "Reference batch"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope "every reference already existed"
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /references [post]
func (h *ReferenceHandler) Submit(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SubmitReferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	result, err := h.references.Submit(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if len(result.Created) > 0 {
		status = http.StatusCreated
	}
	response.JSON(c, status, result, nil)
}

// ListMine godoc
// @Summary List my references
// @Tags References
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /references [get]
func (h *ReferenceHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	refs, err := h.references.ListMine(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, refs, nil)
}

// AdminList godoc
// @Summary List references
// @Tags Admin References
// @Produce json
// @Param userId query string false "Nominating voter"
// @Param status query string false "Comma separated statuses (PENDING, CONTACTED, APPLIED)"
// @Param whatsappSent query bool false "Notification delivered"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/references [get]
func (h *ReferenceHandler) AdminList(c *gin.Context) {
	query, err := referenceQueryFromRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	refs, pagination, err := h.references.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, refs, pagination)
}

// AdminGet godoc
// @Summary Get reference detail
// @Tags Admin References
// @Produce json
// @Param id path string true "Reference ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/references/{id} [get]
func (h *ReferenceHandler) AdminGet(c *gin.Context) {
	ref, err := h.references.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ref, nil)
}

// ChangeStatus godoc
// @Summary Change reference status
// @Tags Admin References
// @Accept json
// @Produce json
// @Param id path string true "Reference ID"
// @Param payload body dto.ChangeStatusRequest true "New status"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/references/{id}/status [patch]
func (h *ReferenceHandler) ChangeStatus(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	status := models.ReferenceStatus(strings.ToUpper(strings.TrimSpace(string(req.Status))))

	result, err := h.workflow.ChangeStatus(c.Request.Context(), c.Param("id"), status, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// AuditTrail godoc
// @Summary Reference audit trail
// @Tags Admin References
// @Produce json
// @Param id path string true "Reference ID"
// @Success 200 {object} response.Envelope
// @Router /admin/references/{id}/audit [get]
func (h *ReferenceHandler) AuditTrail(c *gin.Context) {
	entries, err := h.audit.Trail(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Export godoc
// @Summary Export outreach report
// @Description Contacts are masked in every format.
// @Tags Admin References
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Param userId query string false "Nominating voter"
// @Param status query string false "Comma separated statuses"
// @Param whatsappSent query bool false "Notification delivered"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /admin/references/export [get]
func (h *ReferenceHandler) Export(c *gin.Context) {
	query, err := referenceQueryFromRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exporter.Outreach(c.Request.Context(), dto.ExportFormat(c.DefaultQuery("format", string(dto.ExportFormatCSV))), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

func referenceQueryFromRequest(c *gin.Context) (dto.ReferenceQuery, error) {
	query := dto.ReferenceQuery{UserID: strings.TrimSpace(c.Query("userId"))}
	var problems []appErrors.FieldError

	for _, raw := range c.QueryArray("status") {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
				query.Status = append(query.Status, models.ReferenceStatus(part))
			}
		}
	}
	if raw := c.Query("whatsappSent"); raw != "" {
		sent, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, appErrors.FieldError{Field: "whatsappSent", Message: "must be true or false"})
		} else {
			query.WhatsappSent = &sent
		}
	}
	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			problems = append(problems, appErrors.FieldError{Field: "page", Message: "must be a positive integer"})
		}
		query.Page = page
	}
	if raw := c.Query("limit"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			problems = append(problems, appErrors.FieldError{Field: "limit", Message: "must be a positive integer"})
		}
		query.PageSize = size
	}

	if len(problems) > 0 {
		return query, appErrors.Validation("invalid filter", problems)
	}
	return query, nil
}
