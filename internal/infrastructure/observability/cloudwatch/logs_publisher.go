package cloudwatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
)

const (
	// CloudWatch Logs limits
	maxLogEventsPerRequest = 10000
)

// LogsPublisherConfig holds configuration for CloudWatch logs publishing.
type LogsPublisherConfig struct {
	LogGroupName    string // CloudWatch log group name
	LogStreamName   string // CloudWatch log stream name
	Region          string // AWS region
	Endpoint        string // Optional endpoint override (for LocalStack)
	AccessKeyID     string // AWS access key
	SecretAccessKey string // AWS secret key
	BufferSize      int    // Initial buffer capacity; entries are flushed only on FlushInterval or Flush/Close
	FlushInterval   time.Duration
	AutoCreate      bool // Automatically create log group/stream if missing
}

type logEntry struct {
	Timestamp time.Time
	Level     string
	Message   string
	Fields    map[string]interface{}
}

// LogsPublisher ships hub logs to AWS CloudWatch Logs.
// Implements logger.LogPublisher.
type LogsPublisher struct {
	client        *cloudwatchlogs.Client
	logGroupName  string
	logStreamName string

	buffer     []logEntry
	bufferSize int
	mu         sync.Mutex

	flushTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewLogsPublisher creates a new CloudWatch logs publisher.
func NewLogsPublisher(ctx context.Context, cfg LogsPublisherConfig) (*LogsPublisher, error) {
	if cfg.LogGroupName == "" {
		return nil, fmt.Errorf("log group name is required")
	}
	if cfg.LogStreamName == "" {
		return nil, fmt.Errorf("log stream name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("region is required")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 50
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	awsCfg, err := buildAWSConfig(ctx, cfg.Region, cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	p := &LogsPublisher{
		client:        cloudwatchlogs.NewFromConfig(awsCfg),
		logGroupName:  cfg.LogGroupName,
		logStreamName: cfg.LogStreamName,
		buffer:        make([]logEntry, 0, cfg.BufferSize),
		bufferSize:    cfg.BufferSize,
		flushTicker:   time.NewTicker(cfg.FlushInterval),
		stopCh:        make(chan struct{}),
	}

	if cfg.AutoCreate {
		if err := p.ensureLogInfrastructure(ctx); err != nil {
			return nil, err
		}
	}

	p.wg.Add(1)
	go p.flushLoop()

	return p, nil
}

// Publish buffers a single log entry (implements logger.LogPublisher).
func (p *LogsPublisher) Publish(_ context.Context, timestamp time.Time, level, message string, fields map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buffer = append(p.buffer, logEntry{
		Timestamp: timestamp,
		Level:     level,
		Message:   message,
		Fields:    fields,
	})

	// Flushing happens on the ticker: the logger calls Publish synchronously
	// on the hot path and must never wait on the network.
	if len(p.buffer) > maxLogEventsPerRequest {
		p.buffer = p.buffer[len(p.buffer)-maxLogEventsPerRequest:]
	}
	return nil
}

// Flush forces immediate publication of buffered entries.
func (p *LogsPublisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	entries := p.buffer
	p.buffer = make([]logEntry, 0, p.bufferSize)
	p.mu.Unlock()

	if len(entries) == 0 {
		return nil
	}

	events := make([]types.InputLogEvent, 0, len(entries))
	for _, entry := range entries {
		events = append(events, types.InputLogEvent{
			Timestamp: aws.Int64(entry.Timestamp.UnixMilli()),
			Message:   aws.String(formatLogLine(entry)),
		})
	}

	_, err := p.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  aws.String(p.logGroupName),
		LogStreamName: aws.String(p.logStreamName),
		LogEvents:     events,
	})
	if err != nil {
		// Requeue the failed batch ahead of newer entries for the next flush.
		p.mu.Lock()
		p.buffer = append(entries, p.buffer...)
		if len(p.buffer) > maxLogEventsPerRequest {
			p.buffer = p.buffer[len(p.buffer)-maxLogEventsPerRequest:]
		}
		p.mu.Unlock()
		return fmt.Errorf("put log events failed: %w", err)
	}
	return nil
}

// Close stops background flushing and flushes the remainder.
func (p *LogsPublisher) Close(ctx context.Context) error {
	close(p.stopCh)
	p.flushTicker.Stop()
	p.wg.Wait()

	return p.Flush(ctx)
}

func (p *LogsPublisher) flushLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.flushTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			// Errors are retried with the next batch
			_ = p.Flush(ctx)
			cancel()
		case <-p.stopCh:
			return
		}
	}
}

func (p *LogsPublisher) ensureLogInfrastructure(ctx context.Context) error {
	_, err := p.client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(p.logGroupName),
	})
	if err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("create log group failed: %w", err)
	}

	_, err = p.client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(p.logGroupName),
		LogStreamName: aws.String(p.logStreamName),
	})
	if err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("create log stream failed: %w", err)
	}
	return nil
}

func isAlreadyExists(err error) bool {
	var exists *types.ResourceAlreadyExistsException
	return errors.As(err, &exists)
}

func formatLogLine(entry logEntry) string {
	payload := map[string]interface{}{
		"level":   entry.Level,
		"message": entry.Message,
	}
	for key, value := range entry.Fields {
		payload[key] = value
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("[%s] %s", entry.Level, entry.Message)
	}
	return string(data)
}
