// Package cloudformation implements the stack driver against AWS
// CloudFormation. Apply maps to create-stack or update-stack and blocks
// until the stack settles in a terminal status.
package cloudformation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cfntypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"

	"github.com/stagehand-io/stagehand/internal/driver"
	"github.com/stagehand-io/stagehand/internal/logging"
)

// api is the CloudFormation surface the driver uses, satisfied by
// *cloudformation.Client and by test fakes.
type api interface {
	DescribeStacks(ctx context.Context, in *cloudformation.DescribeStacksInput, opts ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
	DescribeStackEvents(ctx context.Context, in *cloudformation.DescribeStackEventsInput, opts ...func(*cloudformation.Options)) (*cloudformation.DescribeStackEventsOutput, error)
	CreateStack(ctx context.Context, in *cloudformation.CreateStackInput, opts ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error)
	UpdateStack(ctx context.Context, in *cloudformation.UpdateStackInput, opts ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error)
	DeleteStack(ctx context.Context, in *cloudformation.DeleteStackInput, opts ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error)
}

type Driver struct {
	cfn          api
	pollInterval time.Duration
}

// New builds a driver with a real CloudFormation client.
func New(ctx context.Context, region, profile string) (*Driver, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	return &Driver{
		cfn:          cloudformation.NewFromConfig(cfg),
		pollInterval: 10 * time.Second,
	}, nil
}

func (d *Driver) Describe(ctx context.Context, stackName string) (*driver.Description, error) {
	out, err := d.cfn.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(stackName),
	})
	if err != nil {
		if stackMissing(err) {
			return &driver.Description{Exists: false, StackName: stackName}, nil
		}
		return nil, fmt.Errorf("failed to describe stack %s: %w", stackName, err)
	}
	if len(out.Stacks) == 0 {
		return &driver.Description{Exists: false, StackName: stackName}, nil
	}
	return describeStack(&out.Stacks[0]), nil
}

func (d *Driver) Apply(ctx context.Context, req *driver.ApplyRequest) (*driver.ApplyResult, error) {
	desc, err := d.Describe(ctx, req.StackName)
	if err != nil {
		return nil, err
	}

	if desc.Exists && driver.Rollback(desc.Status) {
		return nil, fmt.Errorf("stack %s is in %s and cannot be updated; delete it first",
			req.StackName, desc.Status)
	}

	params := make([]cfntypes.Parameter, 0, len(req.Parameters))
	for k, v := range req.Parameters {
		params = append(params, cfntypes.Parameter{
			ParameterKey:   aws.String(k),
			ParameterValue: aws.String(v),
		})
	}
	caps := make([]cfntypes.Capability, 0, len(req.Capabilities))
	for _, c := range req.Capabilities {
		caps = append(caps, cfntypes.Capability(c))
	}
	tags := make([]cfntypes.Tag, 0, len(req.Tags))
	for k, v := range req.Tags {
		tags = append(tags, cfntypes.Tag{Key: aws.String(k), Value: aws.String(v)})
	}

	if !desc.Exists {
		logging.Info("creating stack", "stack", req.StackName)
		if _, err := d.cfn.CreateStack(ctx, &cloudformation.CreateStackInput{
			StackName:    aws.String(req.StackName),
			TemplateBody: aws.String(req.TemplateBody),
			Parameters:   params,
			Capabilities: caps,
			Tags:         tags,
		}); err != nil {
			return nil, fmt.Errorf("create-stack %s failed: %w", req.StackName, err)
		}
	} else {
		logging.Info("updating stack", "stack", req.StackName)
		if _, err := d.cfn.UpdateStack(ctx, &cloudformation.UpdateStackInput{
			StackName:    aws.String(req.StackName),
			TemplateBody: aws.String(req.TemplateBody),
			Parameters:   params,
			Capabilities: caps,
			Tags:         tags,
		}); err != nil {
			if noUpdates(err) {
				return &driver.ApplyResult{
					StackID:  desc.StackID,
					Status:   desc.Status,
					Outputs:  desc.Outputs,
					Exports:  desc.Exports,
					NoChange: true,
				}, nil
			}
			return nil, fmt.Errorf("update-stack %s failed: %w", req.StackName, err)
		}
	}

	final, err := d.waitSettled(ctx, req.StackName)
	if err != nil {
		return nil, err
	}
	if !applySucceeded(final.Status) {
		reason := d.failureReason(ctx, req.StackName)
		return nil, fmt.Errorf("stack %s finished in %s: %s", req.StackName, final.Status, reason)
	}

	return &driver.ApplyResult{
		StackID: final.StackID,
		Status:  final.Status,
		Outputs: final.Outputs,
		Exports: final.Exports,
	}, nil
}

func (d *Driver) Delete(ctx context.Context, stackName string) error {
	desc, err := d.Describe(ctx, stackName)
	if err != nil {
		return err
	}
	if !desc.Exists {
		return nil
	}

	logging.Info("deleting stack", "stack", stackName)
	if _, err := d.cfn.DeleteStack(ctx, &cloudformation.DeleteStackInput{
		StackName: aws.String(stackName),
	}); err != nil {
		return fmt.Errorf("delete-stack %s failed: %w", stackName, err)
	}

	return d.waitDeleted(ctx, stackName)
}

// failureReason pulls the first failed resource event so the operator sees
// the real cause (subnet misconfiguration, failing health check, IAM denial)
// instead of just the stack status.
func (d *Driver) failureReason(ctx context.Context, stackName string) string {
	out, err := d.cfn.DescribeStackEvents(ctx, &cloudformation.DescribeStackEventsInput{
		StackName: aws.String(stackName),
	})
	if err != nil {
		return "no failure events available"
	}
	for _, ev := range out.StackEvents {
		status := string(ev.ResourceStatus)
		if !strings.HasSuffix(status, "_FAILED") || ev.ResourceStatusReason == nil {
			continue
		}
		reason := *ev.ResourceStatusReason
		if reason == "Resource creation cancelled" {
			continue
		}
		id := ""
		if ev.LogicalResourceId != nil {
			id = *ev.LogicalResourceId + ": "
		}
		return id + reason
	}
	return "no failure events available"
}

func describeStack(s *cfntypes.Stack) *driver.Description {
	desc := &driver.Description{
		Exists:     true,
		StackName:  aws.ToString(s.StackName),
		StackID:    aws.ToString(s.StackId),
		Status:     string(s.StackStatus),
		StatusText: aws.ToString(s.StackStatusReason),
		Parameters: map[string]string{},
		Outputs:    map[string]string{},
		Exports:    map[string]string{},
	}
	if s.CreationTime != nil {
		desc.CreatedAt = *s.CreationTime
	}
	if s.LastUpdatedTime != nil {
		desc.UpdatedAt = *s.LastUpdatedTime
	}
	for _, p := range s.Parameters {
		desc.Parameters[aws.ToString(p.ParameterKey)] = aws.ToString(p.ParameterValue)
	}
	for _, o := range s.Outputs {
		desc.Outputs[aws.ToString(o.OutputKey)] = aws.ToString(o.OutputValue)
		if o.ExportName != nil {
			desc.Exports[*o.ExportName] = aws.ToString(o.OutputValue)
		}
	}
	return desc
}

// stackMissing matches the ValidationError CloudFormation returns for
// describe/delete on a stack that does not exist.
func stackMissing(err error) bool {
	return err != nil && strings.Contains(err.Error(), "does not exist")
}

// noUpdates matches the ValidationError returned when an update-stack call
// carries no changes. That is the idempotent re-apply case, not a failure.
func noUpdates(err error) bool {
	return err != nil && strings.Contains(err.Error(), "No updates are to be performed")
}

func applySucceeded(status string) bool {
	return status == driver.StatusCreateComplete || status == driver.StatusUpdateComplete
}
