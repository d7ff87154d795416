// internal/lender/gateway.go
package lender

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"loan-pipeline/internal/common/errors"
	commonhttp "loan-pipeline/internal/common/http"
	"loan-pipeline/internal/models"
)

// Gateway is the abstract external lending counterparty. A nil return means
// the lender accepted the submission. The service bounds every call with a
// timeout; implementations must respect ctx.
type Gateway interface {
	Submit(ctx context.Context, app *models.Application, lenderID string) error
}

// HTTPGateway submits applications to a lender API over HTTP.
type HTTPGateway struct {
	client  *commonhttp.Client
	baseURL string
	apiKey  string
}

func NewHTTPGateway(client *commonhttp.Client, baseURL, apiKey string) *HTTPGateway {
	return &HTTPGateway{client: client, baseURL: baseURL, apiKey: apiKey}
}

func (g *HTTPGateway) Submit(ctx context.Context, app *models.Application, lenderID string) error {
	body, err := json.Marshal(map[string]interface{}{
		"applicationId": app.ID,
		"name":          app.Name,
		"productType":   app.ProductType,
		"metadata":      app.Metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal submission payload: %w", err)
	}

	url := fmt.Sprintf("%s/lenders/%s/submissions", g.baseURL, lenderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build submission request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("lender returned status %d", resp.StatusCode)
	}
	return nil
}

// classifyFailure maps a gateway error to the stable failure reason recorded
// on the submission row.
func classifyFailure(err error) errors.ErrorCode {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.ErrCodeLenderTimeout
	}
	var se *errors.StandardError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return errors.ErrCodeLenderRejected
}
