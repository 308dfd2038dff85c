package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/lead-service/internal/api/dto"
	"github.com/spec-kit/lead-service/internal/domain"
	"github.com/spec-kit/lead-service/internal/service"
	apperrors "github.com/spec-kit/lead-service/pkg/util"
)

const (
	defaultSkip  = 0
	defaultLimit = 10
	resumeField  = "resume"
)

// LeadService is the subset of *service.LeadService used by the handler.
type LeadService interface {
	Create(ctx context.Context, input service.LeadCreateInput) (*domain.Lead, error)
	List(ctx context.Context, input service.LeadListInput) (*service.LeadPage, error)
	UpdateState(ctx context.Context, leadID string, next domain.LeadState) (*domain.Lead, error)
}

// LeadsHandler manages lead endpoints.
type LeadsHandler struct {
	service LeadService
}

// NewLeadsHandler constructs handler.
func NewLeadsHandler(leadService LeadService) *LeadsHandler {
	return &LeadsHandler{service: leadService}
}

// CreateLead POST /leads.
func (h *LeadsHandler) CreateLead(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return fiberErr
		}
		return apperrors.NewInvalidInput("expected multipart/form-data body", nil)
	}

	resume, err := readResume(form)
	if err != nil {
		return err
	}

	lead, err := h.service.Create(c.UserContext(), service.LeadCreateInput{
		FirstName: formValue(form, "first_name"),
		LastName:  formValue(form, "last_name"),
		Email:     formValue(form, "email"),
		Resume:    resume,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.NewLeadResponse(lead))
}

// ListLeads GET /leads.
func (h *LeadsHandler) ListLeads(c *fiber.Ctx) error {
	var query dto.LeadListQuery
	if err := c.QueryParser(&query); err != nil {
		return apperrors.NewInvalidInput("invalid query", nil)
	}

	skip, err := intParam("skip", query.Skip, defaultSkip)
	if err != nil {
		return err
	}
	limit, err := intParam("limit", query.Limit, defaultLimit)
	if err != nil {
		return err
	}

	input := service.LeadListInput{Skip: skip, Limit: limit}
	if query.State != "" {
		state, err := domain.ParseLeadState(query.State)
		if err != nil {
			return apperrors.NewInvalidInput("unknown state", map[string]any{"state": query.State})
		}
		input.State = &state
	}

	page, err := h.service.List(c.UserContext(), input)
	if err != nil {
		return err
	}

	items := make([]dto.LeadResponse, 0, len(page.Leads))
	for i := range page.Leads {
		items = append(items, dto.NewLeadResponse(&page.Leads[i]))
	}
	return c.JSON(dto.LeadListResponse{
		Leads: items,
		Total: page.Total,
		Skip:  page.Skip,
		Limit: page.Limit,
	})
}

// UpdateLeadState PATCH /leads/:id/state.
func (h *LeadsHandler) UpdateLeadState(c *fiber.Ctx) error {
	var req dto.UpdateLeadStateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewInvalidInput("invalid payload", nil)
	}
	state, err := domain.ParseLeadState(req.State)
	if err != nil {
		return apperrors.NewInvalidInput("unknown state", map[string]any{"state": req.State})
	}

	lead, err := h.service.UpdateState(c.UserContext(), c.Params("id"), state)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewLeadResponse(lead))
}

func formValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}

func readResume(form *multipart.Form) (service.ResumeUpload, error) {
	files := form.File[resumeField]
	if len(files) == 0 {
		return service.ResumeUpload{}, apperrors.NewInvalidInput("resume file is required", map[string]any{"field": resumeField})
	}
	header := files[0]

	file, err := header.Open()
	if err != nil {
		return service.ResumeUpload{}, apperrors.NewInvalidInput("unreadable resume file", map[string]any{"field": resumeField})
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return service.ResumeUpload{}, apperrors.NewInvalidInput("unreadable resume file", map[string]any{"field": resumeField})
	}

	return service.ResumeUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get(fiber.HeaderContentType),
		Data:        data,
	}, nil
}

func intParam(name, raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewInvalidInput(name+" must be an integer", map[string]any{name: raw})
	}
	return val, nil
}
