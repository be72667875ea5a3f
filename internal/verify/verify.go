// Package verify inspects the live resources behind a deployed project and
// maps failures to the mistakes operators actually make: overlapping CIDRs,
// mismatched availability zones, failing container health checks, pipelines
// stuck on permissions.
package verify

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/stagehand-io/stagehand/internal/model"
)

// Per-service API subsets so tests can fake each client.

type ecsAPI interface {
	DescribeServices(ctx context.Context, in *ecs.DescribeServicesInput, optFns ...func(*ecs.Options)) (*ecs.DescribeServicesOutput, error)
}

type elbAPI interface {
	DescribeTargetHealth(ctx context.Context, in *elbv2.DescribeTargetHealthInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeTargetHealthOutput, error)
}

type ec2API interface {
	DescribeSubnets(ctx context.Context, in *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error)
}

type pipelineAPI interface {
	GetPipelineState(ctx context.Context, in *codepipeline.GetPipelineStateInput, optFns ...func(*codepipeline.Options)) (*codepipeline.GetPipelineStateOutput, error)
}

type logsAPI interface {
	DescribeLogGroups(ctx context.Context, in *cloudwatchlogs.DescribeLogGroupsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogGroupsOutput, error)
}

type ecrAPI interface {
	DescribeRepositories(ctx context.Context, in *ecr.DescribeRepositoriesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error)
}

// CheckResult is the outcome of one verification check.
type CheckResult struct {
	Name   string
	Target string
	OK     bool
	Detail string
	Hint   string
}

// Verifier runs post-deployment health checks against AWS.
type Verifier struct {
	ecs      ecsAPI
	elb      elbAPI
	ec2      ec2API
	pipeline pipelineAPI
	logs     logsAPI
	ecr      ecrAPI
}

// New builds a verifier with real AWS clients.
func New(ctx context.Context, region, profile string) (*Verifier, error) {
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

	return &Verifier{
		ecs:      ecs.NewFromConfig(cfg),
		elb:      elbv2.NewFromConfig(cfg),
		ec2:      ec2.NewFromConfig(cfg),
		pipeline: codepipeline.NewFromConfig(cfg),
		logs:     cloudwatchlogs.NewFromConfig(cfg),
		ecr:      ecr.NewFromConfig(cfg),
	}, nil
}

// NewWithClients builds a verifier around injected clients.
func NewWithClients(ecsC ecsAPI, elbC elbAPI, ec2C ec2API, pipeC pipelineAPI, logsC logsAPI, ecrC ecrAPI) *Verifier {
	return &Verifier{ecs: ecsC, elb: elbC, ec2: ec2C, pipeline: pipeC, logs: logsC, ecr: ecrC}
}

// Run executes every check the deployed outputs make possible. Target values
// are taken from well-known output keys written by the stage templates.
func (v *Verifier) Run(ctx context.Context, st *model.State) ([]*CheckResult, error) {
	outputs := collectOutputs(st)
	var results []*CheckResult

	if vpcID := outputs["VpcId"]; vpcID != "" {
		results = append(results, v.CheckSubnets(ctx, vpcID))
	}
	if repo := outputs["RepositoryName"]; repo != "" {
		results = append(results, v.CheckRepository(ctx, repo))
	}
	if group := outputs["LogGroupName"]; group != "" {
		results = append(results, v.CheckLogGroup(ctx, group))
	}
	if cluster, service := outputs["ClusterName"], outputs["ServiceName"]; cluster != "" && service != "" {
		results = append(results, v.CheckService(ctx, cluster, service))
	}
	if tg := outputs["TargetGroupArn"]; tg != "" {
		results = append(results, v.CheckTargetHealth(ctx, tg))
	}
	if pipe := outputs["PipelineName"]; pipe != "" {
		results = append(results, v.CheckPipeline(ctx, pipe))
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("no verifiable outputs found in state; deploy first")
	}
	return results, nil
}

// CheckSubnets confirms the VPC has at least two subnets in distinct
// availability zones, which load balancers require.
func (v *Verifier) CheckSubnets(ctx context.Context, vpcID string) *CheckResult {
	res := &CheckResult{Name: "network/subnets", Target: vpcID}

	out, err := v.ec2.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: []ec2types.Filter{{Name: aws.String("vpc-id"), Values: []string{vpcID}}},
	})
	if err != nil {
		res.Detail = err.Error()
		res.Hint = "check the VPC exists and the credentials can call ec2:DescribeSubnets"
		return res
	}

	zones := map[string]bool{}
	for _, sn := range out.Subnets {
		if sn.AvailabilityZone != nil {
			zones[*sn.AvailabilityZone] = true
		}
	}
	if len(out.Subnets) < 2 || len(zones) < 2 {
		res.Detail = fmt.Sprintf("%d subnet(s) across %d zone(s)", len(out.Subnets), len(zones))
		res.Hint = "load balancers need two subnets in different availability zones; " +
			"check the AvailabilityZone parameters on the network stage"
		return res
	}

	res.OK = true
	res.Detail = fmt.Sprintf("%d subnets across %d zones", len(out.Subnets), len(zones))
	return res
}

// CheckRepository confirms the ECR repository exists.
func (v *Verifier) CheckRepository(ctx context.Context, name string) *CheckResult {
	res := &CheckResult{Name: "container/repository", Target: name}

	_, err := v.ecr.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{
		RepositoryNames: []string{name},
	})
	if err != nil {
		res.Detail = err.Error()
		res.Hint = "the container stage should have created this repository; rerun deploy"
		return res
	}

	res.OK = true
	res.Detail = "repository exists"
	return res
}

// CheckLogGroup confirms the service log group exists.
func (v *Verifier) CheckLogGroup(ctx context.Context, name string) *CheckResult {
	res := &CheckResult{Name: "service/log-group", Target: name}

	out, err := v.logs.DescribeLogGroups(ctx, &cloudwatchlogs.DescribeLogGroupsInput{
		LogGroupNamePrefix: aws.String(name),
	})
	if err != nil {
		res.Detail = err.Error()
		return res
	}
	for _, g := range out.LogGroups {
		if g.LogGroupName != nil && *g.LogGroupName == name {
			res.OK = true
			res.Detail = "log group exists"
			return res
		}
	}

	res.Detail = "log group not found"
	res.Hint = "tasks cannot start logging without it; confirm the service stage created the group " +
		"and the task definition references the same name"
	return res
}

// CheckService confirms the ECS service is active and its tasks are running.
func (v *Verifier) CheckService(ctx context.Context, cluster, service string) *CheckResult {
	res := &CheckResult{Name: "service/ecs", Target: cluster + "/" + service}

	out, err := v.ecs.DescribeServices(ctx, &ecs.DescribeServicesInput{
		Cluster:  aws.String(cluster),
		Services: []string{service},
	})
	if err != nil {
		res.Detail = err.Error()
		return res
	}
	if len(out.Services) == 0 {
		res.Detail = "service not found"
		res.Hint = "confirm the service stage deployed into the right cluster"
		return res
	}

	svc := out.Services[0]
	if aws.ToString(svc.Status) != "ACTIVE" {
		res.Detail = fmt.Sprintf("service status is %s", aws.ToString(svc.Status))
		return res
	}
	if svc.RunningCount < svc.DesiredCount {
		res.Detail = fmt.Sprintf("%d/%d tasks running", svc.RunningCount, svc.DesiredCount)
		res.Hint = serviceHint(svc)
		return res
	}

	res.OK = true
	res.Detail = fmt.Sprintf("%d/%d tasks running", svc.RunningCount, svc.DesiredCount)
	return res
}

// serviceHint reads recent service events for the usual suspects.
func serviceHint(svc ecstypes.Service) string {
	for _, ev := range svc.Events {
		msg := aws.ToString(ev.Message)
		switch {
		case strings.Contains(msg, "unable to pull"):
			return "tasks cannot pull the image; check the image was pushed to the repository and " +
				"the execution role has ECR read access"
		case strings.Contains(msg, "health check"):
			return "tasks fail the load balancer health check; check the container listens on the " +
				"port the target group probes and returns 200 on the health path"
		case strings.Contains(msg, "resource"):
			return "the cluster lacks capacity for the task size; reduce cpu/memory or grow the cluster"
		}
	}
	return "inspect the service events and stopped task reasons in the cluster console"
}

// CheckTargetHealth confirms at least one registered target is healthy.
func (v *Verifier) CheckTargetHealth(ctx context.Context, targetGroupArn string) *CheckResult {
	res := &CheckResult{Name: "service/target-health", Target: targetGroupArn}

	out, err := v.elb.DescribeTargetHealth(ctx, &elbv2.DescribeTargetHealthInput{
		TargetGroupArn: aws.String(targetGroupArn),
	})
	if err != nil {
		res.Detail = err.Error()
		return res
	}
	if len(out.TargetHealthDescriptions) == 0 {
		res.Detail = "no targets registered"
		res.Hint = "the service has not registered tasks with the target group yet; " +
			"check the service and load balancer are in the same subnets"
		return res
	}

	healthy := 0
	var reason string
	for _, d := range out.TargetHealthDescriptions {
		if d.TargetHealth == nil {
			continue
		}
		if d.TargetHealth.State == elbtypes.TargetHealthStateEnumHealthy {
			healthy++
		} else if reason == "" {
			reason = aws.ToString(d.TargetHealth.Description)
		}
	}
	if healthy == 0 {
		res.Detail = fmt.Sprintf("0/%d targets healthy: %s", len(out.TargetHealthDescriptions), reason)
		res.Hint = "check the health check path and port on the target group match the container"
		return res
	}

	res.OK = true
	res.Detail = fmt.Sprintf("%d/%d targets healthy", healthy, len(out.TargetHealthDescriptions))
	return res
}

// CheckPipeline confirms no pipeline stage is stuck in a failed state.
func (v *Verifier) CheckPipeline(ctx context.Context, name string) *CheckResult {
	res := &CheckResult{Name: "pipeline/state", Target: name}

	out, err := v.pipeline.GetPipelineState(ctx, &codepipeline.GetPipelineStateInput{
		Name: aws.String(name),
	})
	if err != nil {
		res.Detail = err.Error()
		return res
	}

	for _, stage := range out.StageStates {
		if stage.LatestExecution == nil {
			continue
		}
		if string(stage.LatestExecution.Status) == "Failed" {
			stageName := aws.ToString(stage.StageName)
			res.Detail = fmt.Sprintf("stage %s failed", stageName)
			res.Hint = pipelineHint(stageName)
			return res
		}
	}

	res.OK = true
	res.Detail = "all stages passing"
	return res
}

func pipelineHint(stageName string) string {
	switch strings.ToLower(stageName) {
	case "source":
		return "the source connection is usually the culprit; reauthorize the repository connection"
	case "build":
		return "open the build logs; missing ECR push permissions on the build role and " +
			"a bad buildspec.yml are the common failures"
	case "deploy":
		return "check imagedefinitions.json names the container exactly as the task definition does"
	default:
		return "open the failed action in the pipeline console for the error detail"
	}
}

// collectOutputs flattens outputs and exports from every applied record.
// Outputs win over exports on key collision within a record.
func collectOutputs(st *model.State) map[string]string {
	merged := map[string]string{}
	for _, rec := range st.Records {
		if rec.Status != model.StatusApplied {
			continue
		}
		for k, val := range rec.Exports {
			merged[k] = val
		}
		for k, val := range rec.Outputs {
			merged[k] = val
		}
	}
	return merged
}
