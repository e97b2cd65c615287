package analyzer

import (
	"context"
	"fmt"
	"os"

	"github.com/dreschagin/memleak-dashboard/internal/domain/entity"
)

// SizeDiffAnalyzer is the built-in fallback: it compares blob sizes only and
// never parses snapshot internals. Low confidence by construction, but it
// keeps comparisons terminating when the external analyzer is down.
type SizeDiffAnalyzer struct{}

func NewSizeDiffAnalyzer() *SizeDiffAnalyzer {
	return &SizeDiffAnalyzer{}
}

func (a *SizeDiffAnalyzer) Analyze(_ context.Context, beforePath, afterPath string, thresholdBytes int64) (*entity.AnalysisReport, error) {
	beforeInfo, err := os.Stat(beforePath)
	if err != nil {
		return nil, fmt.Errorf("stat before snapshot: %w", err)
	}
	afterInfo, err := os.Stat(afterPath)
	if err != nil {
		return nil, fmt.Errorf("stat after snapshot: %w", err)
	}

	growthBytes := afterInfo.Size() - beforeInfo.Size()
	growthMB := float64(growthBytes) / (1024 * 1024)
	suspicious := thresholdBytes > 0 && growthBytes > thresholdBytes

	report := &entity.AnalysisReport{
		Summary: entity.AnalysisSummary{
			TotalGrowthMB:    growthMB,
			TotalLeaksMB:     0,
			SuspiciousGrowth: suspicious,
			Confidence:       0.3,
		},
	}
	if suspicious {
		report.Recommendations = []string{
			fmt.Sprintf("Snapshot grew by %.1fMB; run a full heap analysis for allocation sites", growthMB),
		}
	}
	return report, nil
}
