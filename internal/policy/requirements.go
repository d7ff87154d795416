// internal/policy/requirements.go
package policy

import "loan-pipeline/internal/models"

// requiredTypes maps a product to the document types that must each have an
// accepted current version before the application may leave REQUIRES_DOCS.
// Consulted by both document review and lender submission so the two cannot
// drift.
var requiredTypes = map[models.ProductType][]models.DocumentType{
	models.ProductStandard: {
		models.DocTypeBankStatement,
		models.DocTypeIDDocument,
	},
}

// allowedMimeTypes is the upload allowlist per document type.
var allowedMimeTypes = map[models.DocumentType][]string{
	models.DocTypeBankStatement: {"application/pdf", "image/png", "image/jpeg"},
	models.DocTypeIDDocument:    {"application/pdf", "image/png", "image/jpeg"},
}

// RequiredTypes returns the document types required for a product. Unknown
// products require nothing.
func RequiredTypes(product models.ProductType) []models.DocumentType {
	return requiredTypes[product]
}

// KnownDocumentType reports whether the document type appears in the
// allowlist table.
func KnownDocumentType(docType models.DocumentType) bool {
	_, ok := allowedMimeTypes[docType]
	return ok
}

// MimeAllowed reports whether the mime type may be uploaded for the document
// type.
func MimeAllowed(docType models.DocumentType, mimeType string) bool {
	for _, m := range allowedMimeTypes[docType] {
		if m == mimeType {
			return true
		}
	}
	return false
}
