package cloudwatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/dreschagin/memleak-dashboard/internal/domain/entity"
)

const (
	// CloudWatch limits
	maxMetricsPerRequest = 1000
	maxRetries           = 3
	initialBackoff       = 100 * time.Millisecond
)

// MetricsPublisherConfig holds configuration for CloudWatch metrics publishing.
type MetricsPublisherConfig struct {
	Namespace         string        // CloudWatch namespace (e.g., "MemleakDashboard/Ingest")
	Region            string        // AWS region (e.g., "us-east-1")
	Endpoint          string        // Optional endpoint override (for LocalStack)
	AccessKeyID       string        // AWS access key
	SecretAccessKey   string        // AWS secret key
	BufferSize        int           // Buffer size before auto-flush
	FlushInterval     time.Duration // Automatic flush interval
	StorageResolution int32         // Storage resolution in seconds (1 or 60)
}

// MetricsPublisher ships ingested memory samples to AWS CloudWatch.
// Implements port.MetricsPublisher.
type MetricsPublisher struct {
	client            *cloudwatch.Client
	namespace         string
	storageResolution int32

	buffer     []entity.MetricSample
	bufferSize int
	mu         sync.Mutex

	flushTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewMetricsPublisher creates a new CloudWatch metrics publisher.
func NewMetricsPublisher(ctx context.Context, cfg MetricsPublisherConfig) (*MetricsPublisher, error) {
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("region is required")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}
	if cfg.StorageResolution != 1 && cfg.StorageResolution != 60 {
		cfg.StorageResolution = 60
	}

	awsCfg, err := buildAWSConfig(ctx, cfg.Region, cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	p := &MetricsPublisher{
		client:            cloudwatch.NewFromConfig(awsCfg),
		namespace:         cfg.Namespace,
		storageResolution: cfg.StorageResolution,
		buffer:            make([]entity.MetricSample, 0, cfg.BufferSize),
		bufferSize:        cfg.BufferSize,
		flushTicker:       time.NewTicker(cfg.FlushInterval),
		stopCh:            make(chan struct{}),
	}

	p.wg.Add(1)
	go p.flushLoop()

	return p, nil
}

// PublishSample buffers a single sample for batched publication.
func (p *MetricsPublisher) PublishSample(ctx context.Context, sample entity.MetricSample) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buffer = append(p.buffer, sample)
	if len(p.buffer) >= p.bufferSize {
		if err := p.flushBufferUnsafe(ctx); err != nil {
			return fmt.Errorf("failed to flush buffer: %w", err)
		}
	}
	return nil
}

// Flush forces immediate publication of all buffered samples.
func (p *MetricsPublisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.flushBufferUnsafe(ctx)
}

// Close stops the background flush goroutine and flushes remaining samples.
func (p *MetricsPublisher) Close(ctx context.Context) error {
	close(p.stopCh)
	p.flushTicker.Stop()
	p.wg.Wait()

	return p.Flush(ctx)
}

// flushLoop runs in a background goroutine and flushes the buffer periodically.
func (p *MetricsPublisher) flushLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.flushTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			// Errors are retried on the next tick
			_ = p.Flush(ctx)
			cancel()
		case <-p.stopCh:
			return
		}
	}
}

// flushBufferUnsafe flushes the buffer without locking (caller must hold lock).
func (p *MetricsPublisher) flushBufferUnsafe(ctx context.Context) error {
	if len(p.buffer) == 0 {
		return nil
	}

	data := make([]types.MetricDatum, 0, len(p.buffer)*4)
	for _, sample := range p.buffer {
		data = append(data, p.convertToData(sample)...)
	}

	// Publish in chunks (CloudWatch limit: 1000 metrics/request)
	for i := 0; i < len(data); i += maxMetricsPerRequest {
		end := i + maxMetricsPerRequest
		if end > len(data) {
			end = len(data)
		}
		if err := p.publishBatchWithRetry(ctx, data[i:end]); err != nil {
			return fmt.Errorf("failed to publish chunk: %w", err)
		}
	}

	p.buffer = p.buffer[:0]
	return nil
}

// convertToData maps one sample onto CloudWatch data points with the service
// name as dimension.
func (p *MetricsPublisher) convertToData(sample entity.MetricSample) []types.MetricDatum {
	ts := sample.ReceivedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	dimensions := []types.Dimension{
		{Name: aws.String("Service"), Value: aws.String(sample.Service)},
	}

	datum := func(name string, value float64) types.MetricDatum {
		return types.MetricDatum{
			MetricName:        aws.String(name),
			Value:             aws.Float64(value),
			Unit:              types.StandardUnitMegabytes,
			Timestamp:         aws.Time(ts),
			Dimensions:        dimensions,
			StorageResolution: aws.Int32(p.storageResolution),
		}
	}

	return []types.MetricDatum{
		datum("HeapUsedMB", sample.HeapUsedMB),
		datum("HeapTotalMB", sample.HeapTotalMB),
		datum("RssMB", sample.RSSMB),
		datum("MemoryGrowthMB", sample.MemoryGrowthMB),
	}
}

// publishBatchWithRetry publishes a batch with exponential backoff retry.
func (p *MetricsPublisher) publishBatchWithRetry(ctx context.Context, data []types.MetricDatum) error {
	var lastErr error
	backoff := initialBackoff

	for attempt := 0; attempt < maxRetries; attempt++ {
		input := &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(p.namespace),
			MetricData: data,
		}

		_, err := p.client.PutMetricData(ctx, input)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt < maxRetries-1 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("put metric data failed after %d attempts: %w", maxRetries, lastErr)
}
