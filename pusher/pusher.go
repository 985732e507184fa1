// Package pusher delivers assembled chunks to a receiver over HTTP and
// interprets its ACK/NACK response, retrying transport failures and NACKs a
// bounded number of times before giving up on a chunk.
package pusher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/tabflow/horosafe"
	"github.com/hazyhaar/tabflow/recordsource"
)

// ChunkPayload is the wire body POSTed for one chunk.
type ChunkPayload struct {
	IngestionID string                `json:"ingestion_id"`
	ChunkNumber int                   `json:"chunk_number"`
	ChunkID     string                `json:"chunk_id"`
	Checksum    string                `json:"checksum"`
	Records     []recordsource.Record `json:"records"`
	IsLast      bool                  `json:"is_last"`
}

// ackResponse is the receiver's reply: ack=true means the chunk is durably
// accepted; ack=false carries a human-readable reason in Error.
type ackResponse struct {
	Ack   bool   `json:"ack"`
	Error string `json:"error,omitempty"`
}

// CompletionPayload is POSTed to callback_url once the final chunk has been
// acknowledged, separately from the chunk payloads themselves.
type CompletionPayload struct {
	IngestionID  string `json:"ingestion_id"`
	Status       string `json:"status"`
	ChunkNumber  int    `json:"chunk_number"`
	TotalRecords int    `json:"total_records"`
}

// Option configures a Pusher.
type Option func(*Pusher)

// WithHTTPClient overrides the default HTTP client (e.g. for tests pointed
// at an httptest.Server, or to share one client across ingestions).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Pusher) { p.client = c }
}

// WithMaxAttempts sets the total number of attempts (first try plus
// retries) for one chunk. Default: 3.
func WithMaxAttempts(n int) Option {
	return func(p *Pusher) { p.maxAttempts = n }
}

// WithLogger attaches a structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pusher) { p.logger = l }
}

// Pusher POSTs chunk payloads and retries on failure with no backoff: a
// failed attempt is retried immediately, up to maxAttempts total. The
// receiver's dedup-by-chunk-id contract is what makes an immediate retry
// safe rather than wasteful — a duplicate delivery is just acknowledged
// again.
type Pusher struct {
	client      *http.Client
	maxAttempts int
	logger      *slog.Logger
}

// New builds a Pusher with a 60-second per-request timeout and 3 total
// attempts per chunk.
func New(opts ...Option) *Pusher {
	p := &Pusher{
		client:      &http.Client{Timeout: 60 * time.Second},
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Push delivers payload to url, retrying immediately on transport errors,
// non-2xx responses, unparseable bodies, or an explicit NACK. It returns
// nil only once the receiver ACKs.
func (p *Pusher) Push(ctx context.Context, url string, payload ChunkPayload) error {
	if err := horosafe.ValidateURL(url); err != nil {
		return fmt.Errorf("pusher: refusing target url: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pusher: chunk %s: %w", payload.ChunkID, err)
		}
		err := p.attempt(ctx, url, payload)
		if err == nil {
			return nil
		}
		lastErr = err
		p.logger.Warn("chunk push failed",
			"chunk_id", payload.ChunkID,
			"attempt", attempt,
			"max_attempts", p.maxAttempts,
			"error", err)
	}
	return fmt.Errorf("pusher: chunk %s: exhausted %d attempts: %w", payload.ChunkID, p.maxAttempts, lastErr)
}

func (p *Pusher) attempt(ctx context.Context, url string, payload ChunkPayload) error {
	ack, err := p.post(ctx, url, payload)
	if err != nil {
		return err
	}
	if !ack.Ack {
		if ack.Error != "" {
			return fmt.Errorf("nack: %s", ack.Error)
		}
		return fmt.Errorf("nack (receiver gave no reason)")
	}
	return nil
}

// NotifyCompletion posts payload to url once the final chunk has been
// acknowledged. It reports whether the receiver acknowledged the
// notification itself, so the caller only marks the ingestion completed on
// a true ack, per spec.md §4.5 step 5. Unlike Push, a NACK is not an error
// here — it's reported as ack=false with no retry, since there is no
// further chunk state to protect by retrying a notification.
func (p *Pusher) NotifyCompletion(ctx context.Context, url string, payload CompletionPayload) (bool, error) {
	if err := horosafe.ValidateURL(url); err != nil {
		return false, fmt.Errorf("pusher: refusing completion target url: %w", err)
	}
	ack, err := p.post(ctx, url, payload)
	if err != nil {
		return false, fmt.Errorf("pusher: completion notification: %w", err)
	}
	return ack.Ack, nil
}

func (p *Pusher) post(ctx context.Context, url string, payload any) (ackResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return ackResponse{}, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return ackResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return ackResponse{}, fmt.Errorf("transport: %w", err)
	}
	defer resp.Body.Close()

	data, err := horosafe.LimitedReadAll(resp.Body, horosafe.MaxResponseBody)
	if err != nil {
		return ackResponse{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		return ackResponse{}, fmt.Errorf("receiver returned HTTP %d: %s", resp.StatusCode, truncate(data, 256))
	}

	var ack ackResponse
	if err := json.Unmarshal(data, &ack); err != nil {
		return ackResponse{}, fmt.Errorf("parse ack response: %w", err)
	}
	return ack, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
