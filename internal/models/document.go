// internal/models/document.go
package models

import "time"

// DocumentType is the category a document fills toward the product's
// requirements.
type DocumentType string

const (
	DocTypeBankStatement DocumentType = "bank_statement"
	DocTypeIDDocument    DocumentType = "id_document"
)

// VersionStatus is the review outcome of one document version.
type VersionStatus string

const (
	VersionPending  VersionStatus = "PENDING"
	VersionAccepted VersionStatus = "ACCEPTED"
	VersionRejected VersionStatus = "REJECTED"
)

type Document struct {
	ID                   string       `json:"id"`
	ApplicationID        string       `json:"applicationId"`
	Title                string       `json:"title"`
	DocumentType         DocumentType `json:"documentType"`
	CurrentVersionNumber int          `json:"currentVersionNumber"`
}

// DocumentVersion is one immutable, numbered upload of a document. The
// highest version number is the current one; older versions are history.
type DocumentVersion struct {
	ID            string                 `json:"id"`
	DocumentID    string                 `json:"documentId"`
	VersionNumber int                    `json:"versionNumber"`
	Status        VersionStatus          `json:"status"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	ContentRef    string                 `json:"contentRef"`
	CreatedAt     time.Time              `json:"createdAt"`
}
