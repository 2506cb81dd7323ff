package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"terracrm/models"
)

// GraphSender delivers outbound text messages through the Meta Graph API.
// It implements pipeline.Sender for both WhatsApp and Instagram channels.
type GraphSender struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewGraphSender(baseURL string) *GraphSender {
	return &GraphSender{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SendText pushes one text message to the provider. The channel carries the
// credentials; recipientID is the provider-scoped contact id.
func (g *GraphSender) SendText(ctx context.Context, channel models.Channel, recipientID, text string) error {
	if channel.AccessToken == "" {
		return fmt.Errorf("channel %d has no access token", channel.ID)
	}

	var url string
	var reqBody map[string]any

	switch channel.Type {
	case models.ChannelTypeWhatsApp:
		url = fmt.Sprintf("%s/%s/messages", g.BaseURL, channel.PhoneNumberID)
		reqBody = map[string]any{
			"messaging_product": "whatsapp",
			"to":                recipientID,
			"type":              "text",
			"text":              map[string]any{"body": text},
		}
	case models.ChannelTypeInstagram:
		url = fmt.Sprintf("%s/me/messages", g.BaseURL)
		reqBody = map[string]any{
			"recipient": map[string]any{"id": recipientID},
			"message":   map[string]any{"text": text},
		}
	default:
		return fmt.Errorf("unsupported channel type %q", channel.Type)
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+channel.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("graph api error: status=%d body=%s", resp.StatusCode, string(body))
	}
	return nil
}
