package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wolfman30/moto-assistant/pkg/logging"
)

const jobTTL = 24 * time.Hour

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

var ErrJobNotFound = errors.New("conversation: job not found")

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// JobOutcome is the stored summary of a finished turn.
type JobOutcome struct {
	Outcome         string `dynamodbav:"outcome" json:"outcome"`
	CorrespondentID string `dynamodbav:"correspondentId,omitempty" json:"correspondentId,omitempty"`
	Reply           string `dynamodbav:"reply,omitempty" json:"reply,omitempty"`
	Action          string `dynamodbav:"action,omitempty" json:"action,omitempty"`
	State           string `dynamodbav:"state,omitempty" json:"state,omitempty"`
}

// JobRecord is one tracked WhatsApp message, from enqueue to turn outcome.
type JobRecord struct {
	JobID        string      `dynamodbav:"jobId" json:"jobId"`
	Status       JobStatus   `dynamodbav:"status" json:"status"`
	RequestType  jobType     `dynamodbav:"requestType" json:"requestType"`
	WAMID        string      `dynamodbav:"wamid,omitempty" json:"wamid,omitempty"`
	Sender       string      `dynamodbav:"sender,omitempty" json:"sender,omitempty"`
	Result       *JobOutcome `dynamodbav:"result,omitempty" json:"result,omitempty"`
	ErrorMessage string      `dynamodbav:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	CreatedAt    string      `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt    string      `dynamodbav:"updatedAt" json:"updatedAt"`
	ExpiresAt    int64       `dynamodbav:"expiresAt,omitempty" json:"-"`
}

type JobRecorder interface {
	PutPending(ctx context.Context, job *JobRecord) error
	GetJob(ctx context.Context, jobID string) (*JobRecord, error)
}

type JobUpdater interface {
	MarkCompleted(ctx context.Context, jobID string, result JobOutcome) error
	MarkFailed(ctx context.Context, jobID string, errMsg string) error
}

// JobStore tracks inbound message jobs in DynamoDB, keyed by jobId with a
// 24h expiresAt TTL.
type JobStore struct {
	client    dynamoAPI
	tableName string
	now       func() time.Time
	logger    *logging.Logger
}

var (
	_ JobRecorder = (*JobStore)(nil)
	_ JobUpdater  = (*JobStore)(nil)
)

func NewJobStore(client dynamoAPI, tableName string, logger *logging.Logger) *JobStore {
	if client == nil {
		panic("conversation: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("conversation: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &JobStore{client: client, tableName: tableName, now: time.Now, logger: logger}
}

func jobKey(jobID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"jobId": &types.AttributeValueMemberS{Value: jobID}}
}

func (s *JobStore) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// PutPending inserts a new pending record. An existing jobId is never overwritten.
func (s *JobStore) PutPending(ctx context.Context, job *JobRecord) error {
	if job == nil {
		return errors.New("conversation: job cannot be nil")
	}
	now := s.now().UTC()
	job.Status = JobStatusPending
	job.CreatedAt = now.Format(time.RFC3339Nano)
	job.UpdatedAt = job.CreatedAt
	if job.ExpiresAt == 0 {
		job.ExpiresAt = now.Add(jobTTL).Unix()
	}

	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return fmt.Errorf("conversation: marshal job: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(jobId)"),
	}); err != nil {
		return fmt.Errorf("conversation: put job %s: %w", job.JobID, err)
	}
	return nil
}

func (s *JobStore) MarkCompleted(ctx context.Context, jobID string, result JobOutcome) error {
	resultAttr, err := attributevalue.Marshal(result)
	if err != nil {
		return fmt.Errorf("conversation: marshal job result: %w", err)
	}
	return s.finish(ctx, jobID, JobStatusCompleted, resultAttr, "")
}

// MarkFailed clears any stored result and records errMsg.
func (s *JobStore) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	return s.finish(ctx, jobID, JobStatusFailed, &types.AttributeValueMemberNULL{Value: true}, errMsg)
}

func (s *JobStore) finish(ctx context.Context, jobID string, status JobStatus, result types.AttributeValue, errMsg string) error {
	if jobID == "" {
		return errors.New("conversation: jobID required")
	}
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              jobKey(jobID),
		UpdateExpression: aws.String("SET #status = :status, #result = :result, #error = :error, #updated = :updated"),
		ExpressionAttributeNames: map[string]string{
			"#status":  "status",
			"#result":  "result",
			"#error":   "errorMessage",
			"#updated": "updatedAt",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(status)},
			":result":  result,
			":error":   &types.AttributeValueMemberS{Value: errMsg},
			":updated": &types.AttributeValueMemberS{Value: s.timestamp()},
		},
		ConditionExpression: aws.String("attribute_exists(jobId)"),
	})
	if err != nil {
		return fmt.Errorf("conversation: mark job %s %s: %w", jobID, status, err)
	}
	s.logger.Debug("job finished", "job_id", jobID, "status", status)
	return nil
}

func (s *JobStore) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	if jobID == "" {
		return nil, errors.New("conversation: jobID required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       jobKey(jobID),
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: get job %s: %w", jobID, err)
	}
	if out.Item == nil {
		return nil, ErrJobNotFound
	}

	var job JobRecord
	if err := attributevalue.UnmarshalMap(out.Item, &job); err != nil {
		return nil, fmt.Errorf("conversation: decode job %s: %w", jobID, err)
	}
	return &job, nil
}
