package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/spec-kit/lead-service/internal/domain"
	"github.com/spec-kit/lead-service/internal/events"
	"github.com/spec-kit/lead-service/internal/observability"
	"github.com/spec-kit/lead-service/internal/repository"
	"github.com/spec-kit/lead-service/internal/storage"
	apperrors "github.com/spec-kit/lead-service/pkg/util"
)

const (
	defaultListLimit   = 10
	maxListLimit       = 100
	maxIDAttempts      = 5
	defaultContentType = "application/pdf"
	cleanupTimeout     = 10 * time.Second
)

// LeadService coordinates lead intake and the staff workflow.
type LeadService struct {
	leads      repository.LeadRepository
	blobs      storage.BlobStore
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	validate   *validator.Validate
	urlTTL     time.Duration
	now        func() time.Time
}

// LeadDependencies bundles collaborators for the lead service.
type LeadDependencies struct {
	LeadRepo     repository.LeadRepository
	BlobStore    storage.BlobStore
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	ResumeURLTTL time.Duration
	Clock        func() time.Time
}

// ResumeUpload is the uploaded resume as received from the client.
type ResumeUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// LeadCreateInput describes lead submission payload.
type LeadCreateInput struct {
	FirstName string `json:"first_name" validate:"required,min=1,max=100"`
	LastName  string `json:"last_name" validate:"required,min=1,max=100"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Resume    ResumeUpload `json:"-" validate:"-"`
}

// LeadListInput describes staff listing parameters.
type LeadListInput struct {
	Skip  int
	Limit int
	State *domain.LeadState
}

// LeadPage is one page of leads plus the size of the full matching set.
type LeadPage struct {
	Leads []domain.Lead
	Total int
	Skip  int
	Limit int
}

// NewLeadService constructs the service.
func NewLeadService(deps LeadDependencies) *LeadService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	ttl := deps.ResumeURLTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &LeadService{
		leads:      deps.LeadRepo,
		blobs:      deps.BlobStore,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		validate:   v,
		urlTTL:     ttl,
		now:        clock,
	}
}

// Create validates a submission, stores the resume and persists a PENDING lead.
// The returned lead has no resume URL.
func (s *LeadService) Create(ctx context.Context, input LeadCreateInput) (*domain.Lead, error) {
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	input.Email = strings.TrimSpace(input.Email)

	if err := s.validate.Struct(input); err != nil {
		return nil, validationError(err)
	}

	contentType, ext, err := checkResume(input.Resume)
	if err != nil {
		return nil, err
	}

	// Postgres keeps microseconds; truncating keeps the returned lead identical to the stored row.
	now := s.now().UTC().Truncate(time.Microsecond)

	for attempt := 1; attempt <= maxIDAttempts; attempt++ {
		lead := &domain.Lead{
			ID:        domain.NewLeadID(input.LastName),
			FirstName: input.FirstName,
			LastName:  input.LastName,
			Email:     input.Email,
			State:     domain.LeadStatePending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		lead.ResumeBlobKey = storage.ResumeKey(lead.ID, ext)

		// The key is derived from the id; uploading under a taken id would overwrite that lead's resume.
		taken, err := s.idTaken(ctx, lead.ID)
		if err != nil {
			return nil, apperrors.NewPersistenceFailure("failed to check lead id", err)
		}
		if taken {
			s.logger.Warn("lead id collision; regenerating",
				zap.String("lead_id", lead.ID),
				zap.Int("attempt", attempt),
			)
			continue
		}

		metadata := map[string]string{
			storage.MetaOriginalFilename: input.Resume.Filename,
			storage.MetaLeadID:           lead.ID,
		}
		if err := s.blobs.Put(ctx, lead.ResumeBlobKey, input.Resume.Data, contentType, metadata); err != nil {
			return nil, apperrors.NewUpstreamFailure("failed to store resume", err)
		}

		err = s.leads.Insert(ctx, lead)
		if err == nil {
			s.metrics.RecordLeadCreated()
			s.publishEvent(ctx, events.NewEvent(events.EventLeadCreated, lead.ID, events.LeadCreatedPayload{
				FirstName: lead.FirstName,
				LastName:  lead.LastName,
				Email:     lead.Email,
				CreatedAt: lead.CreatedAt,
			}))
			return lead, nil
		}

		if errors.Is(err, repository.ErrDuplicateID) {
			// A concurrent submission claimed the id after the check; the blob now belongs to its row.
			s.logger.Warn("lead id claimed concurrently; regenerating",
				zap.String("lead_id", lead.ID),
				zap.Int("attempt", attempt),
			)
			continue
		}
		s.discardBlob(ctx, lead.ResumeBlobKey)
		return nil, apperrors.NewPersistenceFailure("failed to save lead", err)
	}

	return nil, apperrors.NewPersistenceFailure("failed to allocate a unique lead id", repository.ErrDuplicateID)
}

// List returns a page of leads, most recent first, each with a fresh resume URL.
func (s *LeadService) List(ctx context.Context, input LeadListInput) (*LeadPage, error) {
	if input.Skip < 0 {
		return nil, apperrors.NewInvalidInput("skip must be >= 0", map[string]any{"skip": input.Skip})
	}
	if input.Limit <= 0 || input.Limit > maxListLimit {
		return nil, apperrors.NewInvalidInput(fmt.Sprintf("limit must be between 1 and %d", maxListLimit),
			map[string]any{"limit": input.Limit})
	}
	if input.State != nil && !input.State.Valid() {
		return nil, apperrors.NewInvalidInput("unknown state", map[string]any{"state": string(*input.State)})
	}

	leads, total, err := s.leads.List(ctx, repository.LeadFilter{
		State:  input.State,
		Limit:  input.Limit,
		Offset: input.Skip,
	})
	if err != nil {
		return nil, apperrors.NewPersistenceFailure("failed to list leads", err)
	}

	for i := range leads {
		s.attachResumeURL(ctx, &leads[i])
	}

	return &LeadPage{Leads: leads, Total: total, Skip: input.Skip, Limit: input.Limit}, nil
}

// UpdateState moves a lead forward in its workflow.
func (s *LeadService) UpdateState(ctx context.Context, leadID string, next domain.LeadState) (*domain.Lead, error) {
	if !next.Valid() {
		return nil, apperrors.NewInvalidInput("unknown state", map[string]any{"state": string(next)})
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	lead, err := s.leads.UpdateState(ctx, leadID, next, domain.AllowedPredecessors(next), now)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewPersistenceFailure("failed to update lead", err)
		}
		return nil, s.explainMissedUpdate(ctx, leadID, next)
	}

	s.metrics.RecordStateChange(string(next))
	s.publishEvent(ctx, events.NewEvent(events.EventLeadStateChanged, lead.ID, events.LeadStateChangedPayload{
		NewState: string(next),
	}))
	s.attachResumeURL(ctx, lead)
	return lead, nil
}

func (s *LeadService) idTaken(ctx context.Context, leadID string) (bool, error) {
	_, err := s.leads.GetByID(ctx, leadID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, repository.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// explainMissedUpdate distinguishes an unknown id from a disallowed transition.
func (s *LeadService) explainMissedUpdate(ctx context.Context, leadID string, next domain.LeadState) error {
	current, err := s.leads.GetByID(ctx, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("lead", map[string]any{"id": leadID})
		}
		return apperrors.NewPersistenceFailure("failed to load lead", err)
	}
	return apperrors.NewInvalidTransition(
		fmt.Sprintf("cannot move lead from %s to %s", current.State, next),
		map[string]any{"from": string(current.State), "to": string(next)},
	)
}

func (s *LeadService) attachResumeURL(ctx context.Context, lead *domain.Lead) {
	if lead.ResumeBlobKey == "" {
		return
	}
	url, err := s.blobs.PresignedURL(ctx, lead.ResumeBlobKey, s.urlTTL)
	if err != nil {
		s.logger.Warn("failed to presign resume url", zap.String("lead_id", lead.ID), zap.Error(err))
		lead.ResumeURL = nil
		return
	}
	lead.ResumeURL = &url
}

// discardBlob removes an upload whose row was never written. Best effort.
func (s *LeadService) discardBlob(ctx context.Context, key string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := s.blobs.Delete(cleanupCtx, key); err != nil {
		s.logger.Warn("failed to delete orphaned resume", zap.String("key", key), zap.Error(err))
	}
}

func (s *LeadService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event",
			zap.String("event_type", string(event.Type)),
			zap.String("lead_id", event.LeadID),
			zap.Error(err),
		)
	}
}

func checkResume(resume ResumeUpload) (contentType, ext string, err error) {
	if len(resume.Data) == 0 {
		return "", "", apperrors.NewInvalidInput("resume file is required", map[string]any{"field": "resume"})
	}

	contentType = storage.NormalizeContentType(resume.ContentType)
	if contentType == "" {
		contentType = defaultContentType
	}
	if err := storage.ValidateContentType(contentType); err != nil {
		return "", "", apperrors.NewInvalidInput("Invalid file type. Only PDF and DOC/DOCX allowed.",
			map[string]any{"field": "resume", "content_type": contentType})
	}

	ext, err = storage.ResumeExtension(resume.Filename)
	if err != nil {
		return "", "", apperrors.NewInvalidInput("Invalid file extension. Only .pdf, .doc and .docx allowed.",
			map[string]any{"field": "resume", "filename": resume.Filename})
	}
	return contentType, ext, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.NewInvalidInput("invalid submission", nil)
	}
	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	return apperrors.NewInvalidInput("invalid submission", details)
}
