package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Defaults applied when a request leaves a field empty.
const (
	DefaultInstanceType = "t2.micro"
	DefaultRegion       = "us-east-1"
	DefaultBucketACL    = "private"
)

// InstanceRequest describes a compute instance to launch.
type InstanceRequest struct {
	InstanceType  string
	Region        string
	ImageID       string
	Name          string
	SecurityGroup string
}

// Instance is a launched compute instance.
type Instance struct {
	ID           string
	InstanceType string
	Region       string
	State        string
	PublicIP     string
}

// BucketRequest describes an object storage bucket to create.
type BucketRequest struct {
	Name   string
	Region string
	ACL    string
}

// Bucket is a created bucket.
type Bucket struct {
	Name   string
	Region string
	ACL    string
	URL    string
}

// Provisioner creates cloud resources for the infrastructure agent.
type Provisioner interface {
	LaunchInstance(ctx context.Context, req InstanceRequest) (Instance, error)
	CreateBucket(ctx context.Context, req BucketRequest) (Bucket, error)
}

// SimulatedProvisioner fabricates resources without touching any cloud.
type SimulatedProvisioner struct {
	newID func() string
}

// NewSimulatedProvisioner creates a provisioner with uuid-derived ids.
func NewSimulatedProvisioner() *SimulatedProvisioner {
	return &SimulatedProvisioner{
		newID: func() string {
			return strings.ReplaceAll(uuid.New().String(), "-", "")
		},
	}
}

// LaunchInstance returns a running instance with an i-<17 hex> id.
func (p *SimulatedProvisioner) LaunchInstance(ctx context.Context, req InstanceRequest) (Instance, error) {
	if err := ctx.Err(); err != nil {
		return Instance{}, err
	}
	req = withInstanceDefaults(req)
	return Instance{
		ID:           "i-" + p.newID()[:17],
		InstanceType: req.InstanceType,
		Region:       req.Region,
		State:        "running",
		PublicIP:     "192.168.1.1",
	}, nil
}

// CreateBucket returns a bucket, generating a name when none is given.
func (p *SimulatedProvisioner) CreateBucket(ctx context.Context, req BucketRequest) (Bucket, error) {
	if err := ctx.Err(); err != nil {
		return Bucket{}, err
	}
	if req.Name == "" {
		req.Name = "bucket-" + p.newID()[:8]
	}
	req = withBucketDefaults(req)
	return Bucket{
		Name:   req.Name,
		Region: req.Region,
		ACL:    req.ACL,
		URL:    bucketURL(req.Name),
	}, nil
}

func withInstanceDefaults(req InstanceRequest) InstanceRequest {
	if req.InstanceType == "" {
		req.InstanceType = DefaultInstanceType
	}
	if req.Region == "" {
		req.Region = DefaultRegion
	}
	return req
}

func withBucketDefaults(req BucketRequest) BucketRequest {
	if req.Region == "" {
		req.Region = DefaultRegion
	}
	if req.ACL == "" {
		req.ACL = DefaultBucketACL
	}
	return req
}

func bucketURL(name string) string {
	return fmt.Sprintf("https://%s.s3.amazonaws.com", name)
}
