// Package stack creates, updates and deletes the CloudFormation stack that
// holds a site's resources.
package stack

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	siteerrors "github.com/savaki/static-site-cn/internal/errors"
	"github.com/segmentio/ksuid"
)

const (
	OperationCreate = "CREATE"
	OperationUpdate = "UPDATE"
	OperationNone   = "NONE"

	// DefaultMaxWait covers distribution creation, which routinely takes 15+ minutes.
	DefaultMaxWait = 45 * time.Minute

	managedByTag = "static-site-cn"
)

// CloudFormationAPI is the subset of the CloudFormation client the deployer uses.
type CloudFormationAPI interface {
	DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
	CreateStack(ctx context.Context, params *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error)
	UpdateStack(ctx context.Context, params *cloudformation.UpdateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error)
	DeleteStack(ctx context.Context, params *cloudformation.DeleteStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error)
	DescribeStackEvents(ctx context.Context, params *cloudformation.DescribeStackEventsInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStackEventsOutput, error)
}

type Input struct {
	StackName    string
	TemplateBody string
	Parameters   []types.Parameter
	Tags         map[string]string
}

type Result struct {
	StackName string `json:"stack_name"`
	StackID   string `json:"stack_id"`
	Operation string `json:"operation"`
}

type Status struct {
	StackName    string            `json:"stack_name"`
	Status       string            `json:"status"`
	StatusReason *string           `json:"status_reason,omitempty"`
	Outputs      map[string]string `json:"outputs,omitempty"`
}

type Deployer struct {
	client  CloudFormationAPI
	maxWait time.Duration
}

func New(client CloudFormationAPI) *Deployer {
	return &Deployer{
		client:  client,
		maxWait: DefaultMaxWait,
	}
}

// WithMaxWait returns a copy of the deployer that waits at most d for stack operations.
func (d *Deployer) WithMaxWait(wait time.Duration) *Deployer {
	clone := *d
	clone.maxWait = wait
	return &clone
}

// Deploy creates the stack, or updates it when it already exists, and waits
// for the operation to finish.
func (d *Deployer) Deploy(ctx context.Context, input Input) (result *Result, err error) {
	logger := zerolog.Ctx(ctx)

	defer func(begin time.Time) {
		logger.Info().
			Err(err).
			Str("stack_name", input.StackName).
			Dur("duration", time.Since(begin)).
			Msg("Deploy completed")
	}(time.Now())

	exists, err := d.stackExists(ctx, input.StackName)
	if err != nil {
		return nil, fmt.Errorf("failed to check if stack exists: %w", err)
	}

	token := ksuid.New().String()
	logger.Info().
		Str("stack_name", input.StackName).
		Bool("exists", exists).
		Str("client_request_token", token).
		Msg("Deploying stack")

	if exists {
		result, err = d.updateStack(ctx, input, token)
		if err != nil {
			return nil, fmt.Errorf("failed to update stack: %w", err)
		}
	} else {
		result, err = d.createStack(ctx, input, token)
		if err != nil {
			return nil, fmt.Errorf("failed to create stack: %w", err)
		}
	}

	if err := d.wait(ctx, input.StackName, result.Operation); err != nil {
		d.logFailedEvents(ctx, input.StackName)
		return nil, err
	}

	return result, nil
}

func (d *Deployer) wait(ctx context.Context, stackName, operation string) error {
	params := &cloudformation.DescribeStacksInput{StackName: aws.String(stackName)}

	var err error
	switch operation {
	case OperationCreate:
		err = cloudformation.NewStackCreateCompleteWaiter(d.client).Wait(ctx, params, d.maxWait)
	case OperationUpdate:
		err = cloudformation.NewStackUpdateCompleteWaiter(d.client).Wait(ctx, params, d.maxWait)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", siteerrors.ErrStackFailed, strings.ToLower(operation), stackName, err)
	}
	return nil
}

func (d *Deployer) stackExists(ctx context.Context, stackName string) (bool, error) {
	out, err := d.client.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(stackName),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}

	return len(out.Stacks) > 0, nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "ValidationError" && strings.Contains(apiErr.ErrorMessage(), "does not exist")
	}
	return false
}

func isNoUpdates(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "ValidationError" &&
			(strings.Contains(apiErr.ErrorMessage(), "No updates are to be performed") ||
				strings.Contains(apiErr.ErrorMessage(), "No updates to be performed"))
	}
	return false
}

func tags(extra map[string]string) []types.Tag {
	all := map[string]string{"ManagedBy": managedByTag}
	maps.Copy(all, extra)

	var result []types.Tag
	for _, key := range slices.Sorted(maps.Keys(all)) {
		result = append(result, types.Tag{
			Key:   aws.String(key),
			Value: aws.String(all[key]),
		})
	}
	return result
}

func (d *Deployer) createStack(ctx context.Context, input Input, token string) (*Result, error) {
	out, err := d.client.CreateStack(ctx, &cloudformation.CreateStackInput{
		StackName:          aws.String(input.StackName),
		TemplateBody:       aws.String(input.TemplateBody),
		Parameters:         input.Parameters,
		Tags:               tags(input.Tags),
		ClientRequestToken: aws.String(token),
		OnFailure:          types.OnFailureDelete,
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		StackName: input.StackName,
		StackID:   aws.ToString(out.StackId),
		Operation: OperationCreate,
	}, nil
}

func (d *Deployer) updateStack(ctx context.Context, input Input, token string) (*Result, error) {
	logger := zerolog.Ctx(ctx)

	out, err := d.client.UpdateStack(ctx, &cloudformation.UpdateStackInput{
		StackName:          aws.String(input.StackName),
		TemplateBody:       aws.String(input.TemplateBody),
		Parameters:         input.Parameters,
		Tags:               tags(input.Tags),
		ClientRequestToken: aws.String(token),
	})
	if err != nil {
		if isNoUpdates(err) {
			logger.Info().Str("stack_name", input.StackName).Msg("No updates needed for stack")
			return &Result{
				StackName: input.StackName,
				StackID:   input.StackName,
				Operation: OperationNone,
			}, nil
		}
		return nil, err
	}

	return &Result{
		StackName: input.StackName,
		StackID:   aws.ToString(out.StackId),
		Operation: OperationUpdate,
	}, nil
}

// Delete deletes the stack and waits for the deletion to finish.
func (d *Deployer) Delete(ctx context.Context, stackName string) error {
	logger := zerolog.Ctx(ctx)

	exists, err := d.stackExists(ctx, stackName)
	if err != nil {
		return fmt.Errorf("failed to check if stack exists: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", siteerrors.ErrStackNotFound, stackName)
	}

	logger.Info().Str("stack_name", stackName).Msg("Deleting stack")
	if _, err := d.client.DeleteStack(ctx, &cloudformation.DeleteStackInput{
		StackName:          aws.String(stackName),
		ClientRequestToken: aws.String(ksuid.New().String()),
	}); err != nil {
		return fmt.Errorf("failed to delete stack %s: %w", stackName, err)
	}

	waiter := cloudformation.NewStackDeleteCompleteWaiter(d.client)
	if err := waiter.Wait(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(stackName)}, d.maxWait); err != nil {
		d.logFailedEvents(ctx, stackName)
		return fmt.Errorf("%w: delete %s: %w", siteerrors.ErrStackFailed, stackName, err)
	}
	return nil
}

// Status describes the stack and its outputs.
func (d *Deployer) Status(ctx context.Context, stackName string) (*Status, error) {
	out, err := d.client.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(stackName),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", siteerrors.ErrStackNotFound, stackName)
		}
		return nil, fmt.Errorf("failed to describe stack %s: %w", stackName, err)
	}
	if len(out.Stacks) == 0 {
		return nil, fmt.Errorf("%w: %s", siteerrors.ErrStackNotFound, stackName)
	}

	s := out.Stacks[0]
	status := &Status{
		StackName:    stackName,
		Status:       string(s.StackStatus),
		StatusReason: s.StackStatusReason,
		Outputs:      make(map[string]string, len(s.Outputs)),
	}
	for _, o := range s.Outputs {
		status.Outputs[aws.ToString(o.OutputKey)] = aws.ToString(o.OutputValue)
	}
	return status, nil
}

// Outputs returns the stack outputs keyed by output name.
func (d *Deployer) Outputs(ctx context.Context, stackName string) (map[string]string, error) {
	status, err := d.Status(ctx, stackName)
	if err != nil {
		return nil, err
	}
	return status.Outputs, nil
}

// IsFailedStatus reports whether status is terminal and unsuccessful.
func IsFailedStatus(status types.StackStatus) bool {
	return slices.Contains([]types.StackStatus{
		types.StackStatusCreateFailed,
		types.StackStatusUpdateFailed,
		types.StackStatusDeleteFailed,
		types.StackStatusRollbackFailed,
		types.StackStatusUpdateRollbackFailed,
		types.StackStatusRollbackComplete,
		types.StackStatusUpdateRollbackComplete,
	}, status)
}

func (d *Deployer) logFailedEvents(ctx context.Context, stackName string) {
	logger := zerolog.Ctx(ctx)

	out, err := d.client.DescribeStackEvents(ctx, &cloudformation.DescribeStackEventsInput{
		StackName: aws.String(stackName),
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to get stack events")
		return
	}

	for i := range out.StackEvents {
		event := &out.StackEvents[i]
		if event.ResourceStatusReason == nil {
			continue
		}
		logger.Info().
			Str("resource_id", aws.ToString(event.LogicalResourceId)).
			Str("status", string(event.ResourceStatus)).
			Str("reason", *event.ResourceStatusReason).
			Msg("Stack event")
	}
}
