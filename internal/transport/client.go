package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"voiceloop/internal/domain"
	"voiceloop/internal/logging"
	"voiceloop/internal/metrics"
)

var log = logging.L("transport")

// uploadFieldName and uploadFileName are fixed by the pipeline's chat
// endpoint contract.
const (
	uploadFieldName = "file"
	uploadFileName  = "recording.wav"
)

// Client talks to the pipeline's HTTP endpoints: the per-session chat
// upload and the text-only query.
type Client struct {
	baseURL string
	http    *http.Client
	metrics *metrics.Metrics
}

func NewClient(baseURL string, timeout time.Duration, m *metrics.Metrics) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		metrics: m,
	}
}

// ChatUpload posts one turn's WAV recording to the per-session endpoint
// and decodes the reply. Any transport-level failure or non-2xx status
// wraps domain.ErrTransportFailed.
func (c *Client) ChatUpload(ctx context.Context, session string, wavData []byte) (domain.TurnResult, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, uploadFieldName, uploadFileName))
	header.Set("Content-Type", "audio/wav")
	part, err := writer.CreatePart(header)
	if err != nil {
		return domain.TurnResult{}, fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := part.Write(wavData); err != nil {
		return domain.TurnResult{}, fmt.Errorf("failed to write upload payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return domain.TurnResult{}, fmt.Errorf("failed to finish upload form: %w", err)
	}

	endpoint := c.baseURL + "/agent/chat/" + url.PathEscape(session)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return domain.TurnResult{}, fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	started := time.Now()
	result, err := c.do(req)
	if err != nil {
		return domain.TurnResult{}, err
	}
	if c.metrics != nil {
		c.metrics.UploadDuration.Observe(time.Since(started).Seconds())
		c.metrics.BytesUploaded.Add(float64(len(wavData)))
	}
	return result, nil
}

// QueryText posts a text-only turn to the pipeline's query endpoint.
func (c *Client) QueryText(ctx context.Context, text string) (domain.TurnResult, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return domain.TurnResult{}, fmt.Errorf("failed to encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/llm/query", bytes.NewReader(payload))
	if err != nil {
		return domain.TurnResult{}, fmt.Errorf("failed to build query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *Client) do(req *http.Request) (domain.TurnResult, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.TurnResult{}, fmt.Errorf("%w: %v", domain.ErrTransportFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 512)
		return domain.TurnResult{}, fmt.Errorf("%w: pipeline returned status %d", domain.ErrTransportFailed, resp.StatusCode)
	}

	var reply chatReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return domain.TurnResult{}, fmt.Errorf("%w: undecodable pipeline reply: %v", domain.ErrTransportFailed, err)
	}

	return reply.toResult(), nil
}

// chatReply mirrors the pipeline's JSON reply. "text" is the legacy
// alias some deployments still send instead of "transcription".
type chatReply struct {
	Transcription string `json:"transcription"`
	Text          string `json:"text"`
	AudioBase64   string `json:"audio_base64"`
}

func (r chatReply) toResult() domain.TurnResult {
	transcription := r.Transcription
	if transcription == "" {
		transcription = r.Text
	}
	return domain.TurnResult{
		Transcription: transcription,
		AudioBase64:   r.AudioBase64,
		Replied:       true,
	}
}
