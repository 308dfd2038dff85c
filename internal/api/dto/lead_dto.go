package dto

import (
	"time"

	"github.com/spec-kit/lead-service/internal/domain"
)

// LeadResponse is the wire form of a lead.
type LeadResponse struct {
	ID            string           `json:"id"`
	FirstName     string           `json:"first_name"`
	LastName      string           `json:"last_name"`
	Email         string           `json:"email"`
	ResumeBlobKey string           `json:"resume_blob_key"`
	ResumeURL     *string          `json:"resume_url"`
	State         domain.LeadState `json:"state"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// LeadListResponse is one page of leads.
type LeadListResponse struct {
	Leads []LeadResponse `json:"leads"`
	Total int            `json:"total"`
	Skip  int            `json:"skip"`
	Limit int            `json:"limit"`
}

// UpdateLeadStateRequest payload.
type UpdateLeadStateRequest struct {
	State string `json:"state"`
}

// LeadListQuery captures raw query parameters for GET /leads.
type LeadListQuery struct {
	Skip  string `query:"skip"`
	Limit string `query:"limit"`
	State string `query:"state"`
}

// NewLeadResponse maps a domain lead.
func NewLeadResponse(lead *domain.Lead) LeadResponse {
	return LeadResponse{
		ID:            lead.ID,
		FirstName:     lead.FirstName,
		LastName:      lead.LastName,
		Email:         lead.Email,
		ResumeBlobKey: lead.ResumeBlobKey,
		ResumeURL:     lead.ResumeURL,
		State:         lead.State,
		CreatedAt:     lead.CreatedAt,
		UpdatedAt:     lead.UpdatedAt,
	}
}
