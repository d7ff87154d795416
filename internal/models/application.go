// internal/models/application.go
package models

import "time"

// PipelineState is the application's current stage in the intake pipeline.
type PipelineState string

const (
	StateNew             PipelineState = "NEW"
	StateRequiresDocs    PipelineState = "REQUIRES_DOCS"
	StateUnderReview     PipelineState = "UNDER_REVIEW"
	StateLenderSubmitted PipelineState = "LENDER_SUBMITTED"
	StateApproved        PipelineState = "APPROVED"
	StateDeclined        PipelineState = "DECLINED"
)

// ProductType selects which document requirements apply to an application.
type ProductType string

const (
	ProductStandard ProductType = "standard"
)

type Application struct {
	ID            string                 `json:"id"`
	OwnerUserID   string                 `json:"ownerUserId"`
	Name          string                 `json:"name"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	ProductType   ProductType            `json:"productType"`
	PipelineState PipelineState          `json:"pipelineState"`
	CreatedAt     time.Time              `json:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt"`
}
