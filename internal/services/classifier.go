package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"focusflow-backend/internal/models"
)

// Classifier failures. Both mean "drop this frame": the signal was
// unavailable, which must not be read as evidence of absence.
var (
	ErrClassifierTimeout     = errors.New("classifier request timed out")
	ErrClassifierUnavailable = errors.New("classifier request failed")
)

// Classifier is the external attention-classification model, consumed as a
// black box scoring one frame at a time.
type Classifier interface {
	Classify(ctx context.Context, image string) (*models.ClassifierResult, error)
}

// ClassifierClient calls the vision API over HTTP with a bounded timeout and
// a small retry budget.
type ClassifierClient struct {
	apiURL     string
	httpClient *http.Client
	retries    int
	logger     *zap.Logger
}

func NewClassifierClient(apiURL string, timeout time.Duration, retries int, logger *zap.Logger) *ClassifierClient {
	if retries < 0 {
		retries = 0
	}
	return &ClassifierClient{
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: timeout},
		retries:    retries,
		logger:     logger,
	}
}

func (c *ClassifierClient) Classify(ctx context.Context, image string) (*models.ClassifierResult, error) {
	var lastErr error

	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 2s, 4s, ...
			delay := time.Duration(1<<attempt) * time.Second
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrClassifierTimeout, ctx.Err())
			case <-time.After(delay):
			}
		}

		result, err := c.classifyOnce(ctx, image)
		if err == nil {
			return result, nil
		}
		lastErr = err
		c.logger.Warn("classifier request failed",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	return nil, lastErr
}

func (c *ClassifierClient) classifyOnce(ctx context.Context, image string) (*models.ClassifierResult, error) {
	body, err := json.Marshal(map[string]string{"image": image})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/api/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrClassifierTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}
	defer resp.Body.Close()

	latency := time.Since(start)
	if latency > 3*time.Second {
		c.logger.Warn("high classifier latency", zap.Duration("latency", latency))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrClassifierUnavailable, resp.StatusCode)
	}

	var result models.ClassifierResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		// A malformed payload is not a transport failure; the processor
		// treats it as absence (fail closed).
		return &models.ClassifierResult{}, nil
	}
	return &result, nil
}
