package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dreschagin/memleak-dashboard/internal/domain/entity"
	"github.com/dreschagin/memleak-dashboard/pkg/logger"
)

// HTTPAnalyzer invokes an external analyzer service over HTTP.
// The service runs next to the hub and reads the scratch files directly;
// the request carries only the on-disk paths and the threshold.
type HTTPAnalyzer struct {
	baseURL string
	client  *http.Client
	logger  *logger.Logger
}

type analyzeRequest struct {
	BeforePath     string `json:"beforePath"`
	AfterPath      string `json:"afterPath"`
	ThresholdBytes int64  `json:"thresholdBytes"`
}

// NewHTTPAnalyzer creates an analyzer client for the given base URL
func NewHTTPAnalyzer(baseURL string, timeout time.Duration, log *logger.Logger) *HTTPAnalyzer {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPAnalyzer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  log,
	}
}

// Analyze posts both scratch paths to the analyzer service and decodes the report
func (a *HTTPAnalyzer) Analyze(ctx context.Context, beforePath, afterPath string, thresholdBytes int64) (*entity.AnalysisReport, error) {
	if a.baseURL == "" {
		return nil, fmt.Errorf("analyzer base URL is not configured")
	}

	body, err := json.Marshal(analyzeRequest{
		BeforePath:     beforePath,
		AfterPath:      afterPath,
		ThresholdBytes: thresholdBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/v1/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analyzer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("analyzer returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var report entity.AnalysisReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode analyzer report: %w", err)
	}

	a.logger.Debug("Analyzer report received",
		"growth_mb", report.Summary.TotalGrowthMB,
		"suspicious", report.Summary.SuspiciousGrowth,
	)
	return &report, nil
}
