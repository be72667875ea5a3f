package cloudformation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cfnsdk "github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cfntypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"

	"github.com/stagehand-io/stagehand/internal/driver"
	"github.com/stagehand-io/stagehand/internal/driver/drivertest"
)

// liveStack is one stack tracked by the stateful fake. Transitions settle
// immediately so the conformance lifecycle never waits on a poll.
type liveStack struct {
	id       string
	template string
	params   map[string]string
	status   cfntypes.StackStatus
	created  time.Time
}

// statefulCFN keeps stacks in a map and mimics the API semantics the driver
// relies on, unlike the scripted fake in driver_test.go which replays a
// fixed status sequence.
type statefulCFN struct {
	mu     sync.Mutex
	stacks map[string]*liveStack
	serial int
}

func newStatefulCFN() *statefulCFN {
	return &statefulCFN{stacks: make(map[string]*liveStack)}
}

func (f *statefulCFN) DescribeStacks(_ context.Context, in *cfnsdk.DescribeStacksInput, _ ...func(*cfnsdk.Options)) (*cfnsdk.DescribeStacksOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(in.StackName)
	st, ok := f.stacks[name]
	if !ok {
		return nil, fmt.Errorf("ValidationError: Stack with id %s does not exist", name)
	}

	params := make([]cfntypes.Parameter, 0, len(st.params))
	for k, v := range st.params {
		params = append(params, cfntypes.Parameter{
			ParameterKey:   aws.String(k),
			ParameterValue: aws.String(v),
		})
	}
	return &cfnsdk.DescribeStacksOutput{
		Stacks: []cfntypes.Stack{{
			StackName:    aws.String(name),
			StackId:      aws.String(st.id),
			StackStatus:  st.status,
			Parameters:   params,
			CreationTime: aws.Time(st.created),
		}},
	}, nil
}

func (f *statefulCFN) DescribeStackEvents(_ context.Context, _ *cfnsdk.DescribeStackEventsInput, _ ...func(*cfnsdk.Options)) (*cfnsdk.DescribeStackEventsOutput, error) {
	return &cfnsdk.DescribeStackEventsOutput{}, nil
}

func (f *statefulCFN) CreateStack(_ context.Context, in *cfnsdk.CreateStackInput, _ ...func(*cfnsdk.Options)) (*cfnsdk.CreateStackOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(in.StackName)
	if _, ok := f.stacks[name]; ok {
		return nil, fmt.Errorf("AlreadyExistsException: Stack [%s] already exists", name)
	}
	f.serial++
	st := &liveStack{
		id:       fmt.Sprintf("arn:aws:cloudformation:us-east-1:000000000000:stack/%s/%d", name, f.serial),
		template: aws.ToString(in.TemplateBody),
		params:   paramMap(in.Parameters),
		status:   cfntypes.StackStatusCreateComplete,
		created:  time.Now().UTC(),
	}
	f.stacks[name] = st
	return &cfnsdk.CreateStackOutput{StackId: aws.String(st.id)}, nil
}

func (f *statefulCFN) UpdateStack(_ context.Context, in *cfnsdk.UpdateStackInput, _ ...func(*cfnsdk.Options)) (*cfnsdk.UpdateStackOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(in.StackName)
	st, ok := f.stacks[name]
	if !ok {
		return nil, fmt.Errorf("ValidationError: Stack with id %s does not exist", name)
	}

	params := paramMap(in.Parameters)
	if st.template == aws.ToString(in.TemplateBody) && paramsEqual(st.params, params) {
		return nil, errors.New("ValidationError: No updates are to be performed.")
	}
	st.template = aws.ToString(in.TemplateBody)
	st.params = params
	st.status = cfntypes.StackStatusUpdateComplete
	return &cfnsdk.UpdateStackOutput{StackId: aws.String(st.id)}, nil
}

func (f *statefulCFN) DeleteStack(_ context.Context, in *cfnsdk.DeleteStackInput, _ ...func(*cfnsdk.Options)) (*cfnsdk.DeleteStackOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.stacks, aws.ToString(in.StackName))
	return &cfnsdk.DeleteStackOutput{}, nil
}

func paramMap(params []cfntypes.Parameter) map[string]string {
	m := make(map[string]string, len(params))
	for _, p := range params {
		m[aws.ToString(p.ParameterKey)] = aws.ToString(p.ParameterValue)
	}
	return m
}

func paramsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func TestConformance(t *testing.T) {
	drivertest.Conformance(t, func(t *testing.T) driver.Driver {
		return &Driver{cfn: newStatefulCFN(), pollInterval: time.Millisecond}
	})
}
