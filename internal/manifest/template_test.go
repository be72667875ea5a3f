package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const serviceTemplate = `AWSTemplateFormatVersion: "2010-09-09"
Description: Test service template.

Parameters:
  NetworkStackName:
    Type: String
  ContainerPort:
    Type: Number
    Default: 8080

Resources:
  TaskRole:
    Type: AWS::IAM::Role
    Properties:
      RoleName: my-task-role

  ServiceSecurityGroup:
    Type: AWS::EC2::SecurityGroup
    Properties:
      VpcId: !ImportValue
        Fn::Sub: "${NetworkStackName}-VpcId"

  LoadBalancer:
    Type: AWS::ElasticLoadBalancingV2::LoadBalancer
    DependsOn: ServiceSecurityGroup
    Properties:
      SecurityGroups:
        - !Ref ServiceSecurityGroup
      Port: !Ref ContainerPort
      SomeArn: !GetAtt TaskRole.Arn
      Subnets: !Split
        - ","
        - !ImportValue
          Fn::Sub: "${NetworkStackName}-PublicSubnets"

Outputs:
  LoadBalancerArn:
    Value: !Ref LoadBalancer
    Export:
      Name: !Sub "${AWS::StackName}-LoadBalancerArn"
  InternalOnly:
    Value: no-export
`

func TestParseTemplate_Parameters(t *testing.T) {
	tpl, err := ParseTemplate([]byte(serviceTemplate))
	require.NoError(t, err)

	require.Len(t, tpl.Parameters, 2)
	assert.False(t, tpl.Parameters["NetworkStackName"].HasDefault)
	require.True(t, tpl.Parameters["ContainerPort"].HasDefault)
	assert.Equal(t, "8080", tpl.Parameters["ContainerPort"].Default)
	assert.Equal(t, "Number", tpl.Parameters["ContainerPort"].Type)
}

func TestParseTemplate_ResourceEdges(t *testing.T) {
	tpl, err := ParseTemplate([]byte(serviceTemplate))
	require.NoError(t, err)
	require.Len(t, tpl.Resources, 3)

	var deps []string
	for _, r := range tpl.Resources {
		if r.LogicalID == "LoadBalancer" {
			deps = r.DependsOn
		}
	}
	// Explicit DependsOn and the !Ref edge dedupe; !GetAtt adds TaskRole.
	// Ref to the ContainerPort parameter is not an edge.
	assert.Equal(t, []string{"ServiceSecurityGroup", "TaskRole"}, deps)
}

func TestParseTemplate_ImportsAndExports(t *testing.T) {
	tpl, err := ParseTemplate([]byte(serviceTemplate))
	require.NoError(t, err)

	params := map[string]string{"NetworkStackName": "demo-network", "ContainerPort": "8080"}

	imports := tpl.ResolveImports("demo-service", params)
	assert.Equal(t, []string{"demo-network-PublicSubnets", "demo-network-VpcId"}, imports)

	exports := tpl.ResolveExports("demo-service", params)
	assert.Equal(t, []string{"demo-service-LoadBalancerArn"}, exports)
}

func TestParseTemplate_Capabilities(t *testing.T) {
	tpl, err := ParseTemplate([]byte(serviceTemplate))
	require.NoError(t, err)
	// TaskRole fixes RoleName, so the stronger capability is needed.
	assert.Equal(t, []string{"CAPABILITY_NAMED_IAM"}, tpl.Capabilities())

	plain := `Resources:
  Bucket:
    Type: AWS::S3::Bucket
`
	tpl, err = ParseTemplate([]byte(plain))
	require.NoError(t, err)
	assert.Nil(t, tpl.Capabilities())

	unnamed := `Resources:
  Role:
    Type: AWS::IAM::Role
    Properties:
      AssumeRolePolicyDocument:
        Version: "2012-10-17"
`
	tpl, err = ParseTemplate([]byte(unnamed))
	require.NoError(t, err)
	assert.Equal(t, []string{"CAPABILITY_IAM"}, tpl.Capabilities())
}

func TestParseTemplate_LongFormImport(t *testing.T) {
	body := `Resources:
  Service:
    Type: AWS::ECS::Service
    Properties:
      Cluster:
        Fn::ImportValue: demo-service-ClusterName
`
	tpl, err := ParseTemplate([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, []string{"demo-service-ClusterName"}, tpl.ResolveImports("x", nil))
}

func TestParseTemplate_Errors(t *testing.T) {
	_, err := ParseTemplate([]byte(""))
	require.Error(t, err)

	_, err = ParseTemplate([]byte("Parameters:\n  A:\n    Type: String\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no resources")

	_, err = ParseTemplate([]byte("Resources:\n  Bad:\n    Properties: {}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing Type")
}
