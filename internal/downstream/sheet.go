package downstream

import (
	"context"
	"net/http"

	"github.com/imrishuroy/marketplace-orderflow/internal/upstream"
)

// SheetClient posts state changes to the spreadsheet webhook.
type SheetClient struct {
	http       *upstream.Client
	webhookURL string
}

// NewSheetClient returns a SheetClient.
func NewSheetClient(httpClient *upstream.Client, webhookURL string) *SheetClient {
	return &SheetClient{http: httpClient, webhookURL: webhookURL}
}

type sheetPayload struct {
	Identifier string `json:"identifier"`
	Estado     string `json:"estado"`
}

// Notify reports the new state of the instance identified by identifier.
func (c *SheetClient) Notify(ctx context.Context, identifier, state string) error {
	return c.http.Do(ctx, upstream.Request{
		Method:   http.MethodPost,
		URL:      c.webhookURL,
		Resource: "sheet_webhook",
		JSON:     sheetPayload{Identifier: identifier, Estado: state},
	}, nil)
}
