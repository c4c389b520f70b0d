package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/ShayCichocki/opsmesh/internal/version"
)

// ErrNoImage is returned when launching an instance without an AMI.
var ErrNoImage = errors.New("no image id configured for instance launch")

// ec2API is the subset of the EC2 client the provisioner calls.
type ec2API interface {
	RunInstances(ctx context.Context, in *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
}

// s3API is the subset of the S3 client the provisioner calls.
type s3API interface {
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// AWSConfig selects credentials and defaults for AWSProvisioner.
type AWSConfig struct {
	// Region is the default region. Requests may override it.
	Region string
	// Profile is an optional shared config profile.
	Profile string
	// ImageID is the AMI used when a request does not name one.
	ImageID string
}

// AWSProvisioner creates real EC2 instances and S3 buckets.
type AWSProvisioner struct {
	ec2     ec2API
	s3      s3API
	region  string
	imageID string
}

// NewAWSProvisioner loads the default AWS credential chain.
func NewAWSProvisioner(ctx context.Context, cfg AWSConfig) (*AWSProvisioner, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithAppID(version.AppID())}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	region := awsCfg.Region
	if region == "" {
		region = DefaultRegion
	}
	return newAWSProvisioner(ec2.NewFromConfig(awsCfg), s3.NewFromConfig(awsCfg), region, cfg.ImageID), nil
}

func newAWSProvisioner(ec2c ec2API, s3c s3API, region, imageID string) *AWSProvisioner {
	return &AWSProvisioner{ec2: ec2c, s3: s3c, region: region, imageID: imageID}
}

// LaunchInstance runs a single instance and tags it with its name.
func (p *AWSProvisioner) LaunchInstance(ctx context.Context, req InstanceRequest) (Instance, error) {
	if req.Region == "" {
		req.Region = p.region
	}
	if req.ImageID == "" {
		req.ImageID = p.imageID
	}
	req = withInstanceDefaults(req)
	if req.ImageID == "" {
		return Instance{}, ErrNoImage
	}

	in := &ec2.RunInstancesInput{
		ImageId:      aws.String(req.ImageID),
		InstanceType: ec2types.InstanceType(req.InstanceType),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		TagSpecifications: []ec2types.TagSpecification{{
			ResourceType: ec2types.ResourceTypeInstance,
			Tags: []ec2types.Tag{
				{Key: aws.String("managed-by"), Value: aws.String("opsmesh")},
			},
		}},
	}
	if req.Name != "" {
		tags := &in.TagSpecifications[0].Tags
		*tags = append(*tags, ec2types.Tag{Key: aws.String("Name"), Value: aws.String(req.Name)})
	}
	if req.SecurityGroup != "" {
		in.SecurityGroupIds = []string{req.SecurityGroup}
	}

	region := req.Region
	out, err := p.ec2.RunInstances(ctx, in, func(o *ec2.Options) { o.Region = region })
	if err != nil {
		return Instance{}, fmt.Errorf("run instance: %w", err)
	}
	if len(out.Instances) == 0 {
		return Instance{}, errors.New("run instance: no instance returned")
	}

	inst := out.Instances[0]
	state := "pending"
	if inst.State != nil {
		state = string(inst.State.Name)
	}
	return Instance{
		ID:           aws.ToString(inst.InstanceId),
		InstanceType: req.InstanceType,
		Region:       req.Region,
		State:        state,
		PublicIP:     aws.ToString(inst.PublicIpAddress),
	}, nil
}

// CreateBucket creates a bucket in the request region with a canned ACL.
func (p *AWSProvisioner) CreateBucket(ctx context.Context, req BucketRequest) (Bucket, error) {
	if req.Name == "" {
		// Bucket names are global, so generated ones carry a random suffix.
		req.Name = "opsmesh-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
	}
	if req.Region == "" {
		req.Region = p.region
	}
	req = withBucketDefaults(req)

	in := &s3.CreateBucketInput{
		Bucket: aws.String(req.Name),
		ACL:    s3types.BucketCannedACL(req.ACL),
	}
	// us-east-1 rejects an explicit location constraint.
	if req.Region != "us-east-1" {
		in.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(req.Region),
		}
	}

	region := req.Region
	if _, err := p.s3.CreateBucket(ctx, in, func(o *s3.Options) { o.Region = region }); err != nil {
		return Bucket{}, fmt.Errorf("create bucket %s: %w", req.Name, err)
	}
	return Bucket{
		Name:   req.Name,
		Region: req.Region,
		ACL:    req.ACL,
		URL:    bucketURL(req.Name),
	}, nil
}
