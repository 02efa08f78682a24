package stack

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	siteerrors "github.com/savaki/static-site-cn/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCloudFormation struct {
	describeStacksFunc      func(ctx context.Context, params *cloudformation.DescribeStacksInput) (*cloudformation.DescribeStacksOutput, error)
	createStackFunc         func(ctx context.Context, params *cloudformation.CreateStackInput) (*cloudformation.CreateStackOutput, error)
	updateStackFunc         func(ctx context.Context, params *cloudformation.UpdateStackInput) (*cloudformation.UpdateStackOutput, error)
	deleteStackFunc         func(ctx context.Context, params *cloudformation.DeleteStackInput) (*cloudformation.DeleteStackOutput, error)
	describeStackEventsFunc func(ctx context.Context, params *cloudformation.DescribeStackEventsInput) (*cloudformation.DescribeStackEventsOutput, error)
}

func (m *mockCloudFormation) DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, _ ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error) {
	return m.describeStacksFunc(ctx, params)
}

func (m *mockCloudFormation) CreateStack(ctx context.Context, params *cloudformation.CreateStackInput, _ ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error) {
	if m.createStackFunc != nil {
		return m.createStackFunc(ctx, params)
	}
	return nil, errors.New("createStackFunc not set")
}

func (m *mockCloudFormation) UpdateStack(ctx context.Context, params *cloudformation.UpdateStackInput, _ ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error) {
	if m.updateStackFunc != nil {
		return m.updateStackFunc(ctx, params)
	}
	return nil, errors.New("updateStackFunc not set")
}

func (m *mockCloudFormation) DeleteStack(ctx context.Context, params *cloudformation.DeleteStackInput, _ ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error) {
	if m.deleteStackFunc != nil {
		return m.deleteStackFunc(ctx, params)
	}
	return nil, errors.New("deleteStackFunc not set")
}

func (m *mockCloudFormation) DescribeStackEvents(ctx context.Context, params *cloudformation.DescribeStackEventsInput, _ ...func(*cloudformation.Options)) (*cloudformation.DescribeStackEventsOutput, error) {
	if m.describeStackEventsFunc != nil {
		return m.describeStackEventsFunc(ctx, params)
	}
	return &cloudformation.DescribeStackEventsOutput{}, nil
}

func testContext() context.Context {
	logger := zerolog.New(io.Discard)
	return logger.WithContext(context.Background())
}

func notFound(name string) error {
	return &smithy.GenericAPIError{
		Code:    "ValidationError",
		Message: "Stack with id " + name + " does not exist",
	}
}

// describeSequence answers DescribeStacks with each status in turn; an empty
// status means the stack does not exist.
func describeSequence(t *testing.T, statuses ...types.StackStatus) func(context.Context, *cloudformation.DescribeStacksInput) (*cloudformation.DescribeStacksOutput, error) {
	calls := 0
	return func(_ context.Context, params *cloudformation.DescribeStacksInput) (*cloudformation.DescribeStacksOutput, error) {
		require.Less(t, calls, len(statuses), "unexpected DescribeStacks call")
		status := statuses[calls]
		calls++
		if status == "" {
			return nil, notFound(aws.ToString(params.StackName))
		}
		return &cloudformation.DescribeStacksOutput{
			Stacks: []types.Stack{{
				StackName:   params.StackName,
				StackStatus: status,
				Outputs: []types.Output{
					{OutputKey: aws.String("BucketName"), OutputValue: aws.String("site-bucket-1a2b")},
				},
			}},
		}, nil
	}
}

func TestDeployer_DeployCreate(t *testing.T) {
	var created *cloudformation.CreateStackInput
	client := &mockCloudFormation{
		describeStacksFunc: describeSequence(t, "", types.StackStatusCreateComplete),
		createStackFunc: func(_ context.Context, params *cloudformation.CreateStackInput) (*cloudformation.CreateStackOutput, error) {
			created = params
			return &cloudformation.CreateStackOutput{StackId: aws.String("arn:aws-cn:cloudformation:cn-north-1:123456789012:stack/site/1")}, nil
		},
	}

	result, err := New(client).Deploy(testContext(), Input{
		StackName:    "site",
		TemplateBody: "{}",
		Tags:         map[string]string{"Team": "web"},
	})
	require.NoError(t, err)

	assert.Equal(t, OperationCreate, result.Operation)
	assert.Equal(t, "arn:aws-cn:cloudformation:cn-north-1:123456789012:stack/site/1", result.StackID)
	require.NotNil(t, created)
	assert.NotEmpty(t, aws.ToString(created.ClientRequestToken))
	assert.Equal(t, []types.Tag{
		{Key: aws.String("ManagedBy"), Value: aws.String("static-site-cn")},
		{Key: aws.String("Team"), Value: aws.String("web")},
	}, created.Tags)
}

func TestDeployer_DeployUpdate(t *testing.T) {
	client := &mockCloudFormation{
		describeStacksFunc: describeSequence(t, types.StackStatusCreateComplete, types.StackStatusUpdateComplete),
		updateStackFunc: func(_ context.Context, params *cloudformation.UpdateStackInput) (*cloudformation.UpdateStackOutput, error) {
			return &cloudformation.UpdateStackOutput{StackId: aws.String("stack-id")}, nil
		},
	}

	result, err := New(client).Deploy(testContext(), Input{StackName: "site", TemplateBody: "{}"})
	require.NoError(t, err)
	assert.Equal(t, OperationUpdate, result.Operation)
}

func TestDeployer_DeployNoUpdates(t *testing.T) {
	client := &mockCloudFormation{
		describeStacksFunc: describeSequence(t, types.StackStatusUpdateComplete),
		updateStackFunc: func(_ context.Context, params *cloudformation.UpdateStackInput) (*cloudformation.UpdateStackOutput, error) {
			return nil, &smithy.GenericAPIError{Code: "ValidationError", Message: "No updates are to be performed."}
		},
	}

	result, err := New(client).Deploy(testContext(), Input{StackName: "site", TemplateBody: "{}"})
	require.NoError(t, err)
	assert.Equal(t, OperationNone, result.Operation)
}

func TestDeployer_DeployFailed(t *testing.T) {
	eventsRequested := false
	client := &mockCloudFormation{
		describeStacksFunc: describeSequence(t, "", types.StackStatusRollbackComplete),
		createStackFunc: func(_ context.Context, params *cloudformation.CreateStackInput) (*cloudformation.CreateStackOutput, error) {
			return &cloudformation.CreateStackOutput{StackId: aws.String("stack-id")}, nil
		},
		describeStackEventsFunc: func(_ context.Context, params *cloudformation.DescribeStackEventsInput) (*cloudformation.DescribeStackEventsOutput, error) {
			eventsRequested = true
			return &cloudformation.DescribeStackEventsOutput{
				StackEvents: []types.StackEvent{{
					LogicalResourceId:    aws.String("Distribution"),
					ResourceStatus:       types.ResourceStatusCreateFailed,
					ResourceStatusReason: aws.String("The specified SSL certificate doesn't exist"),
				}},
			}, nil
		},
	}

	_, err := New(client).Deploy(testContext(), Input{StackName: "site", TemplateBody: "{}"})
	assert.ErrorIs(t, err, siteerrors.ErrStackFailed)
	assert.True(t, eventsRequested)
}

func TestDeployer_DeployCreateError(t *testing.T) {
	client := &mockCloudFormation{
		describeStacksFunc: describeSequence(t, ""),
		createStackFunc: func(_ context.Context, params *cloudformation.CreateStackInput) (*cloudformation.CreateStackOutput, error) {
			return nil, &smithy.GenericAPIError{Code: "InsufficientCapabilitiesException", Message: "Requires capabilities"}
		},
	}

	_, err := New(client).Deploy(testContext(), Input{StackName: "site", TemplateBody: "{}"})
	var apiErr smithy.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "InsufficientCapabilitiesException", apiErr.ErrorCode())
}

func TestDeployer_Status(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		client := &mockCloudFormation{describeStacksFunc: describeSequence(t, types.StackStatusCreateComplete)}
		status, err := New(client).Status(testContext(), "site")
		require.NoError(t, err)
		assert.Equal(t, "CREATE_COMPLETE", status.Status)
		assert.Equal(t, map[string]string{"BucketName": "site-bucket-1a2b"}, status.Outputs)
	})

	t.Run("not found", func(t *testing.T) {
		client := &mockCloudFormation{describeStacksFunc: describeSequence(t, "")}
		_, err := New(client).Outputs(testContext(), "site")
		assert.ErrorIs(t, err, siteerrors.ErrStackNotFound)
	})
}

func TestDeployer_Delete(t *testing.T) {
	t.Run("deletes and waits", func(t *testing.T) {
		deleted := false
		client := &mockCloudFormation{
			describeStacksFunc: describeSequence(t, types.StackStatusCreateComplete, types.StackStatusDeleteComplete),
			deleteStackFunc: func(_ context.Context, params *cloudformation.DeleteStackInput) (*cloudformation.DeleteStackOutput, error) {
				deleted = true
				assert.Equal(t, "site", aws.ToString(params.StackName))
				return &cloudformation.DeleteStackOutput{}, nil
			},
		}
		require.NoError(t, New(client).Delete(testContext(), "site"))
		assert.True(t, deleted)
	})

	t.Run("missing stack", func(t *testing.T) {
		client := &mockCloudFormation{describeStacksFunc: describeSequence(t, "")}
		err := New(client).Delete(testContext(), "site")
		assert.ErrorIs(t, err, siteerrors.ErrStackNotFound)
	})
}

func TestIsFailedStatus(t *testing.T) {
	tests := []struct {
		status types.StackStatus
		want   bool
	}{
		{types.StackStatusCreateComplete, false},
		{types.StackStatusUpdateComplete, false},
		{types.StackStatusCreateInProgress, false},
		{types.StackStatusRollbackComplete, true},
		{types.StackStatusUpdateRollbackComplete, true},
		{types.StackStatusDeleteFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, IsFailedStatus(tt.status))
		})
	}
}
