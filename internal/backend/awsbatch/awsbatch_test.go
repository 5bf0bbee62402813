package awsbatch

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/batch/types"

	"github.com/ShayCichocki/regatta/internal/backend"
	"github.com/ShayCichocki/regatta/pkg/models"
)

// fakeClient records inputs and returns canned outputs.
type fakeClient struct {
	submitInputs   []*batch.SubmitJobInput
	submitOutput   *batch.SubmitJobOutput
	listOutputs    []*batch.ListJobsOutput
	listCalls      int
	describeInputs []*batch.DescribeJobsInput
	describeOutput *batch.DescribeJobsOutput
}

func (f *fakeClient) SubmitJob(ctx context.Context, in *batch.SubmitJobInput, optFns ...func(*batch.Options)) (*batch.SubmitJobOutput, error) {
	f.submitInputs = append(f.submitInputs, in)
	return f.submitOutput, nil
}

func (f *fakeClient) ListJobs(ctx context.Context, in *batch.ListJobsInput, optFns ...func(*batch.Options)) (*batch.ListJobsOutput, error) {
	out := f.listOutputs[f.listCalls]
	f.listCalls++
	return out, nil
}

func (f *fakeClient) DescribeJobs(ctx context.Context, in *batch.DescribeJobsInput, optFns ...func(*batch.Options)) (*batch.DescribeJobsOutput, error) {
	f.describeInputs = append(f.describeInputs, in)
	return f.describeOutput, nil
}

func testConfig() Config {
	return Config{Queue: "regatta-queue", JobDefinition: "regatta-def"}
}

func TestSubmitJobInput(t *testing.T) {
	client := &fakeClient{submitOutput: &batch.SubmitJobOutput{JobId: aws.String("job-1")}}
	b := newWithClient(client, testConfig())

	job, err := b.SubmitJob(context.Background(), &backend.SubmitRequest{
		Name:    "regatta-job-h1",
		Command: []string{"regatta", "oneshot", "main", "task1"},
		Options: models.Options{VCPUs: 2, MemoryGB: 8, GPUs: 1, Retries: 3},
		Labels:  map[string]string{"regatta_task_name": "task1"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.RemoteID != "job-1" {
		t.Errorf("expected remote id job-1, got %q", job.RemoteID)
	}

	in := client.submitInputs[0]
	if aws.ToString(in.JobName) != "regatta-job-h1" {
		t.Errorf("unexpected job name %q", aws.ToString(in.JobName))
	}
	if aws.ToString(in.JobQueue) != "regatta-queue" || aws.ToString(in.JobDefinition) != "regatta-def" {
		t.Errorf("unexpected queue/definition %q %q", aws.ToString(in.JobQueue), aws.ToString(in.JobDefinition))
	}
	if aws.ToInt32(in.RetryStrategy.Attempts) != 3 {
		t.Errorf("expected 3 retry attempts, got %d", aws.ToInt32(in.RetryStrategy.Attempts))
	}
	if in.ArrayProperties != nil {
		t.Error("expected no array properties on singleton submission")
	}
	if in.Tags["regatta_task_name"] != "task1" {
		t.Errorf("expected label forwarded as tag, got %v", in.Tags)
	}

	// Memory forwards in MiB, GPUs only when requested.
	reqs := in.ContainerOverrides.ResourceRequirements
	want := map[types.ResourceType]string{
		types.ResourceTypeVcpu:   "2",
		types.ResourceTypeMemory: "8192",
		types.ResourceTypeGpu:    "1",
	}
	if len(reqs) != len(want) {
		t.Fatalf("expected %d resource requirements, got %d", len(want), len(reqs))
	}
	for _, r := range reqs {
		if want[r.Type] != aws.ToString(r.Value) {
			t.Errorf("resource %s: expected %q, got %q", r.Type, want[r.Type], aws.ToString(r.Value))
		}
	}
}

func TestSubmitArrayJob(t *testing.T) {
	client := &fakeClient{submitOutput: &batch.SubmitJobOutput{JobId: aws.String("parent-1")}}
	b := newWithClient(client, testConfig())

	jobs, err := b.SubmitArrayJob(context.Background(), &backend.ArrayRequest{
		Name:       "regatta-array-a1",
		ChildNames: []string{"regatta-job-h1", "regatta-job-h2", "regatta-job-h3"},
		Command:    []string{"regatta", "oneshot", "--array", "--manifest", "s3://b/m"},
		Options:    models.Options{VCPUs: 1, MemoryGB: 4, Retries: 1},
	})
	if err != nil {
		t.Fatalf("submit array: %v", err)
	}

	in := client.submitInputs[0]
	if aws.ToInt32(in.ArrayProperties.Size) != 3 {
		t.Errorf("expected array size 3, got %d", aws.ToInt32(in.ArrayProperties.Size))
	}

	if len(jobs) != 3 {
		t.Fatalf("expected 3 child handles, got %d", len(jobs))
	}
	if jobs[0].RemoteID != "parent-1:0" || jobs[2].RemoteID != "parent-1:2" {
		t.Errorf("unexpected child ids %q %q", jobs[0].RemoteID, jobs[2].RemoteID)
	}
	if jobs[1].Name != "regatta-job-h2" {
		t.Errorf("expected child name order preserved, got %q", jobs[1].Name)
	}
}

func TestSubmitArrayJobTooSmall(t *testing.T) {
	b := newWithClient(&fakeClient{}, testConfig())
	_, err := b.SubmitArrayJob(context.Background(), &backend.ArrayRequest{
		Name:       "regatta-array-a1",
		ChildNames: []string{"only-one"},
	})
	if err == nil {
		t.Error("expected error for single-child array")
	}
}

func TestListJobsPagination(t *testing.T) {
	client := &fakeClient{listOutputs: []*batch.ListJobsOutput{
		{
			JobSummaryList: []types.JobSummary{
				{JobId: aws.String("id1"), JobName: aws.String("regatta-job-h1"), Status: types.JobStatusRunning},
			},
			NextToken: aws.String("token"),
		},
		{
			JobSummaryList: []types.JobSummary{
				{JobId: aws.String("id2"), JobName: aws.String("regatta-job-h2"), Status: types.JobStatusSucceeded},
			},
		},
	}}
	b := newWithClient(client, testConfig())

	jobs, err := b.ListJobs(context.Background(), "regatta-job")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs across pages, got %d", len(jobs))
	}
	if jobs[0].Status != models.JobStatusRunning || jobs[1].Status != models.JobStatusSucceeded {
		t.Errorf("unexpected statuses %s %s", jobs[0].Status, jobs[1].Status)
	}
	if client.listCalls != 2 {
		t.Errorf("expected 2 list calls, got %d", client.listCalls)
	}
}

func TestDescribeJobsChunking(t *testing.T) {
	client := &fakeClient{describeOutput: &batch.DescribeJobsOutput{}}
	b := newWithClient(client, testConfig())

	ids := make([]string, 150)
	for i := range ids {
		ids[i] = "id"
	}
	if _, err := b.DescribeJobs(context.Background(), ids); err != nil {
		t.Fatalf("describe: %v", err)
	}
	if len(client.describeInputs) != 2 {
		t.Fatalf("expected 2 chunked calls, got %d", len(client.describeInputs))
	}
	if len(client.describeInputs[0].Jobs) != 100 || len(client.describeInputs[1].Jobs) != 50 {
		t.Errorf("unexpected chunk sizes %d %d",
			len(client.describeInputs[0].Jobs), len(client.describeInputs[1].Jobs))
	}
}

func TestMapStatus(t *testing.T) {
	tests := []struct {
		in   types.JobStatus
		want models.JobStatus
	}{
		{types.JobStatusSubmitted, models.JobStatusPending},
		{types.JobStatusPending, models.JobStatusPending},
		{types.JobStatusRunnable, models.JobStatusPending},
		{types.JobStatusStarting, models.JobStatusPending},
		{types.JobStatusRunning, models.JobStatusRunning},
		{types.JobStatusSucceeded, models.JobStatusSucceeded},
		{types.JobStatusFailed, models.JobStatusFailed},
	}
	for _, tt := range tests {
		if got := mapStatus(tt.in); got != tt.want {
			t.Errorf("mapStatus(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
