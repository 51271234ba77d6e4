// Package webhook talks to the workflow-automation endpoints that proxy the
// task spreadsheet.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/taskmaster/tasksync/internal/domain/entities"
	"github.com/taskmaster/tasksync/internal/domain/reconcile"
	"github.com/taskmaster/tasksync/internal/infrastructure/config"
	"github.com/taskmaster/tasksync/internal/infrastructure/logger"
	"github.com/taskmaster/tasksync/internal/infrastructure/metrics"
	"github.com/taskmaster/tasksync/internal/ports"
)

// Operation names used in errors, logs and metrics
const (
	OpFetch  = "fetch"
	OpDelete = "delete"
	OpSync   = "sync"
)

const maxBodyInError = 512

// Gateway implements ports.TaskGateway over HTTP
type Gateway struct {
	cfg     config.WebhookConfig
	client  *http.Client
	limiter *rate.Limiter
	opts    reconcile.Options
	metrics *metrics.Metrics
	logger  *logger.Logger
}

// New creates a gateway. A nil client uses a plain http.Client; timeouts come
// from request contexts.
func New(cfg config.WebhookConfig, client *http.Client, opts reconcile.Options, m *metrics.Metrics, log *logger.Logger) *Gateway {
	if client == nil {
		client = &http.Client{}
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &Gateway{
		cfg:     cfg,
		client:  client,
		limiter: limiter,
		opts:    opts,
		metrics: m,
		logger:  log.WithComponent("webhook"),
	}
}

type deletePayload struct {
	Task      entities.Task `json:"task"`
	Action    string        `json:"action"`
	Timestamp string        `json:"timestamp"`
}

type syncPayload struct {
	Tasks         []entities.Task `json:"tasks"`
	SyncTimestamp string          `json:"syncTimestamp"`
	TotalTasks    int             `json:"totalTasks"`
}

// FetchAll downloads the full task list. An empty body is an empty list; a
// body that is not JSON is a MalformedResponseError. Only list shapes carry
// tasks on this path.
func (g *Gateway) FetchAll(ctx context.Context) (reconcile.Result, error) {
	body, err := g.do(ctx, OpFetch, http.MethodGet, g.cfg.FetchURL, nil)
	if err != nil {
		return reconcile.Result{}, err
	}

	res := reconcile.Decode(body, g.opts)
	switch res.Shape {
	case reconcile.ShapeInvalid:
		return reconcile.Result{}, &entities.MalformedResponseError{
			Operation: OpFetch,
			Body:      truncate(body),
			Err:       res.Err,
		}
	case reconcile.ShapeSingle:
		g.logger.Infow("Ignoring single task object in fetch response", "id", res.Tasks[0].ID)
		return reconcile.Result{Shape: reconcile.ShapeSingle}, nil
	}

	g.logger.Debugw("Fetched tasks", "shape", res.Shape.String(), "tasks", len(res.Tasks))
	return res, nil
}

// PushDelete tells the webhook a task was removed locally
func (g *Gateway) PushDelete(ctx context.Context, task entities.Task) (*ports.DeleteReply, error) {
	payload := deletePayload{
		Task:      task,
		Action:    "delete",
		Timestamp: entities.FormatTime(time.Now()),
	}

	body, err := g.do(ctx, OpDelete, http.MethodPost, g.cfg.DeleteURL, payload)
	if err != nil {
		return nil, err
	}

	var reply ports.DeleteReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, &entities.MalformedResponseError{
			Operation: OpDelete,
			Body:      truncate(body),
			Err:       err,
		}
	}
	return &reply, nil
}

// PushSync uploads the local collection and decodes whatever the webhook
// answers. The call is bounded by the configured sync timeout.
func (g *Gateway) PushSync(ctx context.Context, tasks []entities.Task) (reconcile.Result, error) {
	if tasks == nil {
		tasks = []entities.Task{}
	}
	payload := syncPayload{
		Tasks:         tasks,
		SyncTimestamp: entities.FormatTime(time.Now()),
		TotalTasks:    len(tasks),
	}

	syncCtx, cancel := context.WithTimeout(ctx, g.cfg.SyncTimeout)
	defer cancel()

	body, err := g.do(syncCtx, OpSync, http.MethodPost, g.cfg.SyncURL, payload)
	if err != nil {
		timedOut := errors.Is(syncCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded)
		if timedOut && ctx.Err() == nil {
			return reconcile.Result{}, &entities.TimeoutError{Operation: OpSync, After: g.cfg.SyncTimeout}
		}
		return reconcile.Result{}, err
	}

	res := reconcile.Decode(body, g.opts)
	if res.Shape == reconcile.ShapeInvalid {
		g.logger.Warnw("Sync response is not valid JSON", "body", truncate(body), "error", res.Err)
	}
	return res, nil
}

func (g *Gateway) do(ctx context.Context, op, method, url string, payload any) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("%s: %w", op, entities.ErrNotConfigured)
	}

	start := time.Now()
	body, status, err := g.roundTrip(ctx, op, method, url, payload)
	elapsed := time.Since(start)

	g.metrics.ObserveGateway(op, outcome(status, err), elapsed)
	g.logger.LogWebhookCall(op, url, status, float64(elapsed.Nanoseconds())/1e6, err)
	return body, err
}

func (g *Gateway) roundTrip(ctx context.Context, op, method, url string, payload any) ([]byte, int, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			// Wait refuses early when the next token comes after the deadline.
			if _, ok := ctx.Deadline(); ok && ctx.Err() == nil {
				err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
			}
			return nil, 0, &entities.TransportError{Operation: op, Err: err}
		}
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to encode %s payload: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	if err := g.setHeaders(req); err != nil {
		return nil, 0, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, 0, &entities.TransportError{Operation: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, &entities.TransportError{Operation: op, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &entities.TransportError{Operation: op, Err: err}
	}
	return body, resp.StatusCode, nil
}

func (g *Gateway) setHeaders(req *http.Request) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	if g.cfg.AuthHeaderName != "" {
		req.Header.Set(g.cfg.AuthHeaderName, g.cfg.AuthHeaderValue)
	}

	if g.cfg.JWTSecret != "" {
		token, err := g.signToken()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

// signToken issues a short-lived HS256 token for n8n's JWT auth
func (g *Gateway) signToken() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    g.cfg.JWTIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(g.cfg.JWTExpiresIn)),
		ID:        uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(g.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func outcome(status int, err error) string {
	var te *entities.TransportError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &te) && te.Unreachable():
		return "unreachable"
	case status != 0:
		return fmt.Sprintf("http_%d", status)
	default:
		return "error"
	}
}

func truncate(body []byte) string {
	if len(body) > maxBodyInError {
		return string(body[:maxBodyInError]) + "..."
	}
	return string(body)
}
