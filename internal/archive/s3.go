// Package archive stores provisioning audit records and terminated
// workflow instances in S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/edvin/provisioning/internal/model"
)

// S3API is the subset of the S3 client the exporter uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Exporter writes JSON payloads to a bucket.
type Exporter struct {
	client S3API
	bucket string
	logger zerolog.Logger
}

// NewExporter creates an exporter against an S3-compatible endpoint
// (AWS or a local object store) with static credentials.
func NewExporter(endpoint, accessKey, secretKey, bucket string, logger zerolog.Logger) *Exporter {
	client := s3.New(s3.Options{
		BaseEndpoint: aws.String(endpoint),
		Region:       "us-east-1",
		Credentials:  credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		UsePathStyle: true,
	})
	return NewExporterWithClient(client, bucket, logger)
}

func NewExporterWithClient(client S3API, bucket string, logger zerolog.Logger) *Exporter {
	return &Exporter{
		client: client,
		bucket: bucket,
		logger: logger.With().Str("component", "archive").Logger(),
	}
}

// Export stores the payload as a JSON object under key.
func (e *Exporter) Export(ctx context.Context, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal archive payload: %w", err)
	}

	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put archive object %s: %w", key, err)
	}

	e.logger.Debug().Str("key", key).Int("bytes", len(data)).Msg("archived object")
	return nil
}

// ExportWorkflow stores a terminated workflow instance under a
// per-tenant key for long-term audit.
func (e *Exporter) ExportWorkflow(ctx context.Context, wf *model.WorkflowInstance) error {
	if !model.IsTerminalWorkflowStatus(wf.Status) && wf.Status != model.WorkflowFailed {
		return fmt.Errorf("workflow %s is not terminated (status %s)", wf.ID, wf.Status)
	}
	key := fmt.Sprintf("workflows/%s/%s.json", wf.TenantID, wf.ID)
	return e.Export(ctx, key, wf)
}
