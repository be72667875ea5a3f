package cloudformation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cfntypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagehand-io/stagehand/internal/driver"
)

// fakeCFN scripts CloudFormation responses. Statuses queues per-stack
// DescribeStacks results so tests can walk a stack through IN_PROGRESS to a
// terminal state.
type fakeCFN struct {
	statuses map[string][]cfntypes.StackStatus
	outputs  map[string][]cfntypes.Output
	events   []cfntypes.StackEvent

	describeErr error
	createErr   error
	updateErr   error
	onCreate    func()

	creates int
	updates int
	deletes int
	deleted map[string]bool
}

func (f *fakeCFN) DescribeStacks(ctx context.Context, in *cloudformation.DescribeStacksInput, opts ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	name := aws.ToString(in.StackName)
	if f.deleted[name] {
		return nil, errors.New("ValidationError: Stack with id " + name + " does not exist")
	}
	queue, ok := f.statuses[name]
	if !ok || len(queue) == 0 {
		return nil, errors.New("ValidationError: Stack with id " + name + " does not exist")
	}
	status := queue[0]
	if len(queue) > 1 {
		f.statuses[name] = queue[1:]
	}
	return &cloudformation.DescribeStacksOutput{
		Stacks: []cfntypes.Stack{{
			StackName:   in.StackName,
			StackId:     aws.String("arn:aws:cloudformation:us-east-1:123:stack/" + name),
			StackStatus: status,
			Outputs:     f.outputs[name],
		}},
	}, nil
}

func (f *fakeCFN) DescribeStackEvents(ctx context.Context, in *cloudformation.DescribeStackEventsInput, opts ...func(*cloudformation.Options)) (*cloudformation.DescribeStackEventsOutput, error) {
	return &cloudformation.DescribeStackEventsOutput{StackEvents: f.events}, nil
}

func (f *fakeCFN) CreateStack(ctx context.Context, in *cloudformation.CreateStackInput, opts ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error) {
	f.creates++
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.onCreate != nil {
		f.onCreate()
	}
	return &cloudformation.CreateStackOutput{}, nil
}

func (f *fakeCFN) UpdateStack(ctx context.Context, in *cloudformation.UpdateStackInput, opts ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error) {
	f.updates++
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &cloudformation.UpdateStackOutput{}, nil
}

func (f *fakeCFN) DeleteStack(ctx context.Context, in *cloudformation.DeleteStackInput, opts ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error) {
	f.deletes++
	if f.deleted == nil {
		f.deleted = map[string]bool{}
	}
	f.deleted[aws.ToString(in.StackName)] = true
	return &cloudformation.DeleteStackOutput{}, nil
}

func testDriver(fake *fakeCFN) *Driver {
	return &Driver{cfn: fake, pollInterval: time.Millisecond}
}

func TestDescribe_MapsOutputsAndExports(t *testing.T) {
	fake := &fakeCFN{
		statuses: map[string][]cfntypes.StackStatus{
			"demo-network": {cfntypes.StackStatusCreateComplete},
		},
		outputs: map[string][]cfntypes.Output{
			"demo-network": {
				{OutputKey: aws.String("VpcId"), OutputValue: aws.String("vpc-123"), ExportName: aws.String("demo-network-VpcId")},
				{OutputKey: aws.String("Internal"), OutputValue: aws.String("x")},
			},
		},
	}
	d := testDriver(fake)

	desc, err := d.Describe(context.Background(), "demo-network")
	require.NoError(t, err)
	assert.True(t, desc.Exists)
	assert.Equal(t, driver.StatusCreateComplete, desc.Status)
	assert.Equal(t, "vpc-123", desc.Outputs["VpcId"])
	assert.Equal(t, "vpc-123", desc.Exports["demo-network-VpcId"])
	_, exported := desc.Exports["Internal"]
	assert.False(t, exported)
}

func TestDescribe_MissingStack(t *testing.T) {
	d := testDriver(&fakeCFN{})

	desc, err := d.Describe(context.Background(), "demo-network")
	require.NoError(t, err)
	assert.False(t, desc.Exists)
}

func TestApply_CreatesAndWaits(t *testing.T) {
	fake := &fakeCFN{
		statuses: map[string][]cfntypes.StackStatus{},
		outputs: map[string][]cfntypes.Output{
			"demo-network": {{OutputKey: aws.String("VpcId"), OutputValue: aws.String("vpc-123")}},
		},
	}
	d := testDriver(fake)

	// The stack does not exist for the pre-apply describe. CreateStack makes
	// it visible, first in progress and then complete.
	fake.onCreate = func() {
		fake.statuses["demo-network"] = []cfntypes.StackStatus{
			cfntypes.StackStatusCreateInProgress,
			cfntypes.StackStatusCreateComplete,
		}
	}

	res, err := d.Apply(context.Background(), &driver.ApplyRequest{
		StackName:    "demo-network",
		TemplateBody: "body",
		Parameters:   map[string]string{"VpcCidr": "10.0.0.0/16"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, fake.creates)
	assert.Equal(t, 0, fake.updates)
	assert.Equal(t, driver.StatusCreateComplete, res.Status)
	assert.Equal(t, "vpc-123", res.Outputs["VpcId"])
}

func TestApply_NoUpdatesIsNoChange(t *testing.T) {
	fake := &fakeCFN{
		statuses: map[string][]cfntypes.StackStatus{
			"demo-network": {cfntypes.StackStatusCreateComplete},
		},
		updateErr: errors.New("ValidationError: No updates are to be performed."),
	}
	d := testDriver(fake)

	res, err := d.Apply(context.Background(), &driver.ApplyRequest{StackName: "demo-network", TemplateBody: "body"})
	require.NoError(t, err)
	assert.True(t, res.NoChange)
	assert.Equal(t, 1, fake.updates)
}

func TestApply_RejectsRolledBackStack(t *testing.T) {
	fake := &fakeCFN{
		statuses: map[string][]cfntypes.StackStatus{
			"demo-service": {cfntypes.StackStatusRollbackComplete},
		},
	}
	d := testDriver(fake)

	_, err := d.Apply(context.Background(), &driver.ApplyRequest{StackName: "demo-service", TemplateBody: "body"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete it first")
	assert.Equal(t, 0, fake.creates)
	assert.Equal(t, 0, fake.updates)
}

func TestApply_FailureIncludesResourceReason(t *testing.T) {
	fake := &fakeCFN{
		statuses: map[string][]cfntypes.StackStatus{
			"demo-service": {
				cfntypes.StackStatusCreateComplete,
				cfntypes.StackStatusUpdateRollbackComplete,
			},
		},
		events: []cfntypes.StackEvent{
			{
				ResourceStatus:       cfntypes.ResourceStatusCreateFailed,
				LogicalResourceId:    aws.String("Service"),
				ResourceStatusReason: aws.String("service demo-service was unable to place a task"),
			},
		},
	}
	d := testDriver(fake)

	_, err := d.Apply(context.Background(), &driver.ApplyRequest{StackName: "demo-service", TemplateBody: "body"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UPDATE_ROLLBACK_COMPLETE")
	assert.Contains(t, err.Error(), "Service: service demo-service was unable to place a task")
}

func TestDelete_WaitsUntilGone(t *testing.T) {
	fake := &fakeCFN{
		statuses: map[string][]cfntypes.StackStatus{
			"demo-network": {cfntypes.StackStatusCreateComplete},
		},
	}
	d := testDriver(fake)

	require.NoError(t, d.Delete(context.Background(), "demo-network"))
	assert.Equal(t, 1, fake.deletes)
}

func TestDelete_MissingStackIsNoop(t *testing.T) {
	fake := &fakeCFN{}
	d := testDriver(fake)

	require.NoError(t, d.Delete(context.Background(), "demo-network"))
	assert.Equal(t, 0, fake.deletes)
}
