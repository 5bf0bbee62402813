// Package awsbatch submits remote jobs to AWS Batch. It is the managed
// batch-service backend and the only bundled backend with real array jobs:
// one SubmitJob call with ArrayProperties fans out to N children addressed
// as parent:index.
package awsbatch

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/batch/types"

	"github.com/ShayCichocki/regatta/internal/backend"
	"github.com/ShayCichocki/regatta/pkg/models"
)

// describeBatchSize is the AWS Batch DescribeJobs per-call id limit.
const describeBatchSize = 100

// api is the slice of the AWS Batch client the backend uses. Narrowed for
// mocking in tests.
type api interface {
	SubmitJob(ctx context.Context, in *batch.SubmitJobInput, optFns ...func(*batch.Options)) (*batch.SubmitJobOutput, error)
	ListJobs(ctx context.Context, in *batch.ListJobsInput, optFns ...func(*batch.Options)) (*batch.ListJobsOutput, error)
	DescribeJobs(ctx context.Context, in *batch.DescribeJobsInput, optFns ...func(*batch.Options)) (*batch.DescribeJobsOutput, error)
}

// Config holds AWS Batch backend settings.
type Config struct {
	// Queue is the Batch job queue to submit to.
	Queue string
	// JobDefinition is the registered job definition; it fixes the image
	// and job role, which Batch does not allow overriding per submission.
	JobDefinition string
	// Region overrides the default AWS region.
	Region string
}

// Backend submits jobs to AWS Batch.
type Backend struct {
	client api
	cfg    Config
}

// New creates an AWS Batch backend using the default credential chain.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &Backend{client: batch.NewFromConfig(awsCfg), cfg: cfg}, nil
}

// newWithClient creates a Backend around an existing client, for tests.
func newWithClient(client api, cfg Config) *Backend {
	return &Backend{client: client, cfg: cfg}
}

// Name identifies the backend variant.
func (b *Backend) Name() string {
	return "aws_batch"
}

// SupportsArray reports that Batch supports array jobs.
func (b *Backend) SupportsArray() bool {
	return true
}

// SubmitJob submits one Batch job.
func (b *Backend) SubmitJob(ctx context.Context, req *backend.SubmitRequest) (*models.RemoteJob, error) {
	in := b.submitInput(req.Name, req.Command, req.Options, req.Labels)

	out, err := b.client.SubmitJob(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("submit batch job %s: %w", req.Name, err)
	}
	return &models.RemoteJob{
		RemoteID:    aws.ToString(out.JobId),
		Name:        req.Name,
		Status:      models.JobStatusPending,
		SubmittedAt: time.Now(),
	}, nil
}

// SubmitArrayJob submits one array job and returns a handle per child.
// Child ids use the parent:index form that DescribeJobs understands.
func (b *Backend) SubmitArrayJob(ctx context.Context, req *backend.ArrayRequest) ([]*models.RemoteJob, error) {
	size := len(req.ChildNames)
	if size < 2 {
		return nil, fmt.Errorf("array job %s needs at least 2 children, got %d", req.Name, size)
	}

	in := b.submitInput(req.Name, req.Command, req.Options, req.Labels)
	in.ArrayProperties = &types.ArrayProperties{Size: aws.Int32(int32(size))}

	out, err := b.client.SubmitJob(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("submit batch array job %s: %w", req.Name, err)
	}

	parent := aws.ToString(out.JobId)
	now := time.Now()
	jobs := make([]*models.RemoteJob, size)
	for i, childName := range req.ChildNames {
		jobs[i] = &models.RemoteJob{
			RemoteID:    fmt.Sprintf("%s:%d", parent, i),
			Name:        childName,
			Status:      models.JobStatusPending,
			SubmittedAt: now,
		}
	}
	return jobs, nil
}

// submitInput builds the shared SubmitJob input for singleton and array
// submissions.
func (b *Backend) submitInput(name string, command []string, opts models.Options, labels map[string]string) *batch.SubmitJobInput {
	requirements := []types.ResourceRequirement{
		{Type: types.ResourceTypeVcpu, Value: aws.String(strconv.Itoa(opts.VCPUs))},
		{Type: types.ResourceTypeMemory, Value: aws.String(strconv.Itoa(opts.MemoryGB * 1024))},
	}
	if opts.GPUs > 0 {
		requirements = append(requirements, types.ResourceRequirement{
			Type:  types.ResourceTypeGpu,
			Value: aws.String(strconv.Itoa(opts.GPUs)),
		})
	}

	tags := make(map[string]string, len(labels))
	for k, v := range labels {
		tags[k] = v
	}

	return &batch.SubmitJobInput{
		JobName:       aws.String(name),
		JobQueue:      aws.String(b.cfg.Queue),
		JobDefinition: aws.String(b.cfg.JobDefinition),
		RetryStrategy: &types.RetryStrategy{Attempts: aws.Int32(int32(opts.Retries))},
		ContainerOverrides: &types.ContainerOverrides{
			Command:              command,
			ResourceRequirements: requirements,
		},
		Tags: tags,
	}
}

// ListJobs returns jobs in the queue whose names carry the given prefix,
// across all states, following pagination.
func (b *Backend) ListJobs(ctx context.Context, namePrefix string) ([]*models.RemoteJob, error) {
	var jobs []*models.RemoteJob
	var nextToken *string
	for {
		out, err := b.client.ListJobs(ctx, &batch.ListJobsInput{
			JobQueue: aws.String(b.cfg.Queue),
			Filters: []types.KeyValuesPair{{
				Name:   aws.String("JOB_NAME"),
				Values: []string{namePrefix + "*"},
			}},
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("list batch jobs: %w", err)
		}
		for _, summary := range out.JobSummaryList {
			jobs = append(jobs, &models.RemoteJob{
				RemoteID: aws.ToString(summary.JobId),
				Name:     aws.ToString(summary.JobName),
				Status:   mapStatus(summary.Status),
			})
		}
		nextToken = out.NextToken
		if nextToken == nil {
			return jobs, nil
		}
	}
}

// DescribeJobs returns current status for the given remote ids, chunked to
// the Batch per-call limit. Unknown ids are omitted.
func (b *Backend) DescribeJobs(ctx context.Context, remoteIDs []string) ([]*models.RemoteJob, error) {
	var jobs []*models.RemoteJob
	for start := 0; start < len(remoteIDs); start += describeBatchSize {
		end := start + describeBatchSize
		if end > len(remoteIDs) {
			end = len(remoteIDs)
		}
		out, err := b.client.DescribeJobs(ctx, &batch.DescribeJobsInput{
			Jobs: remoteIDs[start:end],
		})
		if err != nil {
			return nil, fmt.Errorf("describe batch jobs: %w", err)
		}
		for _, detail := range out.Jobs {
			jobs = append(jobs, &models.RemoteJob{
				RemoteID: aws.ToString(detail.JobId),
				Name:     aws.ToString(detail.JobName),
				Status:   mapStatus(detail.Status),
			})
		}
	}
	return jobs, nil
}

// mapStatus converts a Batch job status to a job status.
func mapStatus(status types.JobStatus) models.JobStatus {
	switch status {
	case types.JobStatusSubmitted, types.JobStatusPending, types.JobStatusRunnable, types.JobStatusStarting:
		return models.JobStatusPending
	case types.JobStatusRunning:
		return models.JobStatusRunning
	case types.JobStatusSucceeded:
		return models.JobStatusSucceeded
	case types.JobStatusFailed:
		return models.JobStatusFailed
	default:
		return models.JobStatusPending
	}
}

var _ backend.Backend = (*Backend)(nil)
