package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-battle/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultEndpoint = "wss://api.deepgram.com/v1/speak"

// Client synthesizes speech through Deepgram's websocket speak API. Every
// call opens its own connection, so a Client can be shared freely.
type Client struct {
	apiKey   string
	endpoint string
	dialer   *websocket.Dialer
	options  texttospeech.SynthesisOptions
}

type ClientOption func(*Client)

// WithEndpoint points the client at a different speak endpoint, mostly
// useful for tests.
func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) { c.endpoint = endpoint }
}

func WithSynthesisOptions(opts ...texttospeech.SynthesisOption) ClientOption {
	return func(c *Client) {
		for _, opt := range opts {
			opt(&c.options)
		}
	}
}

func NewClient(apiKey string, opts ...ClientOption) *Client {
	client := &Client{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		dialer:   websocket.DefaultDialer,
		options:  texttospeech.DefaultSynthesisOptions(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// SynthesizeSpeech speaks text with the given voice and returns the raw
// audio in the client's encoding. An empty voiceID selects [DefaultVoice].
func (c *Client) SynthesizeSpeech(ctx context.Context, text, voiceID string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "synthesize speech")
	defer span.End()

	if c == nil || c.apiKey == "" {
		return nil, texttospeech.ErrNotConfigured
	}

	voice := Voice(voiceID)
	if voice == "" {
		voice = DefaultVoice
	}
	if !slices.Contains(GetAvailableVoices(), voice) {
		err := fmt.Errorf("invalid voice %q", voiceID)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("request.voice", string(voice)),
		attribute.Int("request.text_length", len(text)),
	)

	audio, err := c.speak(ctx, voice, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("response.audio_bytes", len(audio)))
	return audio, nil
}

func (c *Client) speak(ctx context.Context, voice Voice, text string) ([]byte, error) {
	conn, err := c.connect(ctx, voice)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	// Unblocks ReadMessage when the caller gives up.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := conn.WriteJSON(speakMessage{Type: "Speak", Text: text}); err != nil {
		return nil, contextOr(ctx, fmt.Errorf("failed to send text to deepgram: %w", err))
	}
	if err := conn.WriteJSON(controlMessage{Type: "Flush"}); err != nil {
		return nil, contextOr(ctx, fmt.Errorf("failed to flush deepgram buffer: %w", err))
	}

	var audio []byte
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			return nil, contextOr(ctx, fmt.Errorf("failed to read from deepgram: %w", err))
		}

		switch msgType {
		case websocket.BinaryMessage:
			audio = append(audio, msg...)
		case websocket.TextMessage:
			var parsedMsg serverMessage
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				logger.WarnContext(ctx, "failed to unmarshal deepgram message", "error", err)
				continue
			}

			switch parsedMsg.Type {
			case "Flushed":
				if err := conn.WriteJSON(controlMessage{Type: "Close"}); err != nil {
					logger.DebugContext(ctx, "failed to send close message to deepgram", "error", err)
				}
				return audio, nil
			case "Warning":
				logger.WarnContext(ctx, "deepgram warning", "description", parsedMsg.Description)
			case "Error":
				return nil, fmt.Errorf("deepgram error: %s", parsedMsg.Description)
			}
		}
	}
}

func (c *Client) connect(ctx context.Context, voice Voice) (*websocket.Conn, error) {
	endpoint, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid deepgram endpoint: %w", err)
	}

	encodingInfo := c.options.EncodingInfo
	query := endpoint.Query()
	query.Set("encoding", encodingInfo.Format.Name())
	query.Set("sample_rate", strconv.Itoa(encodingInfo.SampleRate))
	query.Set("model", string(voice))
	query.Set("container", "none")
	endpoint.RawQuery = query.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, endpoint.String(), http.Header{"Authorization": {"token " + c.apiKey}})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("deepgram rejected credentials: %w", texttospeech.ErrNotConfigured)
		}
		return nil, contextOr(ctx, fmt.Errorf("failed to open socket connection to deepgram: %w", err))
	}

	return conn, nil
}

// contextOr prefers the context error so cancellation is reported as such
// rather than as a broken connection.
func contextOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Join(ctxErr, err)
	}
	return err
}

type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type controlMessage struct {
	Type string `json:"type"`
}

type serverMessage struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}
