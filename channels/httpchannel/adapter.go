package httpchannel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/velora-labs/conversa/channels"
	"github.com/velora-labs/conversa/engine"
	"github.com/velora-labs/conversa/pkg/kernel"
)

// Adapter despacha contenido saliente contra la pasarela HTTP de mensajería
// y registra el tránsito en el log de mensajes. Implementa el puerto de canal
// del runtime.
type Adapter struct {
	client   *http.Client
	config   channels.GatewayConfig
	messages channels.MessageLog
}

var _ engine.ChannelAdapter = (*Adapter)(nil)

func NewAdapter(config channels.GatewayConfig, messages channels.MessageLog, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Adapter{
		client:   &http.Client{Timeout: timeout},
		config:   config,
		messages: messages,
	}
}

// gatewayRequest cuerpo del POST a la pasarela
type gatewayRequest struct {
	To        string  `json:"to"`
	Type      string  `json:"type"`
	Text      string  `json:"text,omitempty"`
	MediaURL  string  `json:"media_url,omitempty"`
	Caption   string  `json:"caption,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

type gatewayResponse struct {
	MessageID string `json:"message_id"`
}

func (a *Adapter) Send(ctx context.Context, address string, content engine.OutboundContent) (engine.MessageHandle, error) {
	if a.config.BaseURL == "" {
		return engine.MessageHandle{}, channels.ErrProviderNotConfigured().
			WithDetail("reason", "gateway base URL is empty")
	}
	if address == "" {
		return engine.MessageHandle{}, channels.ErrInvalidRecipient().
			WithDetail("reason", "empty channel address")
	}

	payload, err := json.Marshal(gatewayRequest{
		To:        address,
		Type:      content.Type,
		Text:      content.Text,
		MediaURL:  content.MediaURL,
		Caption:   content.Caption,
		Latitude:  content.Latitude,
		Longitude: content.Longitude,
	})
	if err != nil {
		return engine.MessageHandle{}, channels.ErrMessageSendFailed().
			WithDetail("reason", err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return engine.MessageHandle{}, channels.ErrMessageSendFailed().
			WithDetail("reason", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if a.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.config.Token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return engine.MessageHandle{}, channels.ErrMessageSendFailed().
			WithDetail("address", address).
			WithDetail("reason", err.Error())
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return engine.MessageHandle{}, channels.ErrProviderAPIError().
			WithDetail("address", address).
			WithDetail("status", fmt.Sprintf("%d", resp.StatusCode)).
			WithDetail("body", string(body))
	}

	var gw gatewayResponse
	if err := json.Unmarshal(body, &gw); err != nil || gw.MessageID == "" {
		// Pasarelas viejas no retornan id; se genera uno local
		gw.MessageID = uuid.NewString()
	}

	log.Printf("📤 Message sent to %s (id: %s)", address, gw.MessageID)
	return engine.MessageHandle{ID: kernel.NewMessageID(gw.MessageID)}, nil
}

func (a *Adapter) RecordOutbound(ctx context.Context, handle engine.MessageHandle, executionID kernel.ExecutionID) error {
	return a.record(ctx, handle, executionID, channels.DirectionOutbound)
}

func (a *Adapter) RecordInbound(ctx context.Context, handle engine.MessageHandle, executionID kernel.ExecutionID) error {
	return a.record(ctx, handle, executionID, channels.DirectionInbound)
}

func (a *Adapter) record(ctx context.Context, handle engine.MessageHandle, executionID kernel.ExecutionID, direction channels.Direction) error {
	if a.messages == nil {
		return nil
	}
	return a.messages.Save(ctx, channels.Message{
		ID:          handle.ID,
		ExecutionID: executionID,
		Direction:   direction,
		CreatedAt:   time.Now(),
	})
}
