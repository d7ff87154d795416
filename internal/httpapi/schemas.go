// internal/httpapi/schemas.go
package httpapi

import (
	"fmt"
	"strings"

	"loan-pipeline/internal/common/errors"

	"github.com/xeipuuv/gojsonschema"
)

// Request bodies are validated against JSON schemas before any service call,
// so malformed requests surface as missing_fields with no side effects.

const createApplicationSchema = `{
	"type": "object",
	"required": ["ownerUserId", "name", "productType"],
	"properties": {
		"ownerUserId": {"type": "string", "minLength": 1},
		"name": {"type": "string", "minLength": 1},
		"productType": {"type": "string", "minLength": 1},
		"metadata": {"type": "object"}
	}
}`

const uploadDocumentSchema = `{
	"type": "object",
	"required": ["title", "documentType", "mimeType"],
	"properties": {
		"documentId": {"type": "string"},
		"title": {"type": "string", "minLength": 1},
		"documentType": {"type": "string", "minLength": 1},
		"mimeType": {"type": "string", "minLength": 1},
		"contentRef": {"type": "string"},
		"metadata": {"type": "object"}
	}
}`

const changePipelineSchema = `{
	"type": "object",
	"required": ["state"],
	"properties": {
		"state": {"type": "string", "minLength": 1},
		"override": {"type": "boolean"}
	}
}`

const createSubmissionSchema = `{
	"type": "object",
	"required": ["applicationId", "idempotencyKey", "lenderId"],
	"properties": {
		"applicationId": {"type": "string", "minLength": 1},
		"idempotencyKey": {"type": "string", "minLength": 1},
		"lenderId": {"type": "string", "minLength": 1}
	}
}`

func validateBody(schema string, body []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewBytesLoader(body),
	)
	if err != nil {
		return errors.NewMissingFieldsError(fmt.Sprintf("invalid JSON body: %v", err))
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		return errors.NewMissingFieldsError(strings.Join(details, "; "))
	}
	return nil
}
