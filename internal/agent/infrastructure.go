package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/opsmesh/internal/knowledge"
	"github.com/ShayCichocki/opsmesh/pkg/models"
)

// Resource types registered by the infrastructure agent.
const (
	ResourceEC2Instance = "ec2_instance"
	ResourceS3Bucket    = "s3_bucket"
)

// InfrastructureAgent provisions compute instances and buckets.
type InfrastructureAgent struct {
	base
	prov Provisioner
}

// NewInfrastructureAgent creates an infrastructure agent backed by prov.
func NewInfrastructureAgent(kb *knowledge.KnowledgeBase, prov Provisioner, opts ...Option) *InfrastructureAgent {
	return &InfrastructureAgent{
		base: newBase(models.AgentTypeInfrastructure,
			"Provisions cloud infrastructure (EC2 instances, S3 buckets, networking)",
			InfrastructureKeywords, kb, opts),
		prov: prov,
	}
}

// Execute provisions an instance when the task mentions ec2 and a bucket when
// it mentions s3. With both, the result nests them under "instance" and
// "bucket"; with one, its fields are returned directly.
func (a *InfrastructureAgent) Execute(ctx context.Context, task *models.AgentTask) (map[string]any, error) {
	a.logStart(task)

	desc := strings.ToLower(task.Description)
	wantInstance := strings.Contains(desc, "ec2")
	wantBucket := strings.Contains(desc, "s3")

	var instance, bucket map[string]any
	if wantInstance {
		res, err := a.launchInstance(ctx, task)
		if err != nil {
			return nil, err
		}
		instance = res
	}
	if wantBucket {
		res, err := a.createBucket(ctx, task)
		if err != nil {
			return nil, err
		}
		bucket = res
	}

	switch {
	case instance != nil && bucket != nil:
		return map[string]any{"instance": instance, "bucket": bucket, "status": "completed"}, nil
	case instance != nil:
		return instance, nil
	case bucket != nil:
		return bucket, nil
	default:
		return map[string]any{
			"message": "Simulated infrastructure task: " + task.Description,
			"status":  "completed",
		}, nil
	}
}

func (a *InfrastructureAgent) launchInstance(ctx context.Context, task *models.AgentTask) (map[string]any, error) {
	inst, err := a.prov.LaunchInstance(ctx, InstanceRequest{
		InstanceType:  stringParam(task.Parameters, "instance_type", ""),
		Region:        stringParam(task.Parameters, "region", ""),
		ImageID:       stringParam(task.Parameters, "image_id", ""),
		Name:          stringParam(task.Parameters, "name", task.ID),
		SecurityGroup: stringParam(task.Parameters, "security_group", ""),
	})
	if err != nil {
		return nil, fmt.Errorf("launch instance: %w", err)
	}

	meta := map[string]any{
		"instance_type": inst.InstanceType,
		"region":        inst.Region,
		"status":        inst.State,
		"task_id":       task.ID,
	}
	if sg := stringParam(task.Parameters, "security_group", ""); sg != "" {
		meta["security_group"] = sg
	}
	a.kb.RegisterResource(ResourceEC2Instance, inst.ID, meta)
	a.logger.Info("instance registered", zap.String("task_id", task.ID), zap.String("instance_id", inst.ID))

	return map[string]any{
		"instance_id": inst.ID,
		"status":      inst.State,
		"public_ip":   inst.PublicIP,
	}, nil
}

func (a *InfrastructureAgent) createBucket(ctx context.Context, task *models.AgentTask) (map[string]any, error) {
	b, err := a.prov.CreateBucket(ctx, BucketRequest{
		Name:   stringParam(task.Parameters, "bucket_name", ""),
		Region: stringParam(task.Parameters, "region", ""),
		ACL:    stringParam(task.Parameters, "acl", ""),
	})
	if err != nil {
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	a.kb.RegisterResource(ResourceS3Bucket, b.Name, map[string]any{
		"region":  b.Region,
		"acl":     b.ACL,
		"task_id": task.ID,
	})
	a.logger.Info("bucket registered", zap.String("task_id", task.ID), zap.String("bucket", b.Name))

	return map[string]any{
		"bucket_name": b.Name,
		"bucket_url":  b.URL,
	}, nil
}
