package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeEC2 struct {
	in     *ec2.RunInstancesInput
	region string
	err    error
}

func (f *fakeEC2) RunInstances(ctx context.Context, in *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error) {
	f.in = in
	var o ec2.Options
	for _, fn := range optFns {
		fn(&o)
	}
	f.region = o.Region
	if f.err != nil {
		return nil, f.err
	}
	return &ec2.RunInstancesOutput{
		Instances: []ec2types.Instance{{
			InstanceId:      aws.String("i-0123456789abcdef0"),
			PublicIpAddress: aws.String("54.1.2.3"),
			State:           &ec2types.InstanceState{Name: ec2types.InstanceStateNamePending},
		}},
	}, nil
}

type fakeS3 struct {
	in     *s3.CreateBucketInput
	region string
}

func (f *fakeS3) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.in = in
	var o s3.Options
	for _, fn := range optFns {
		fn(&o)
	}
	f.region = o.Region
	return &s3.CreateBucketOutput{}, nil
}

func TestAWSProvisioner_LaunchInstance(t *testing.T) {
	fe := &fakeEC2{}
	p := newAWSProvisioner(fe, &fakeS3{}, "us-west-2", "ami-123")

	inst, err := p.LaunchInstance(context.Background(), InstanceRequest{Name: "web", SecurityGroup: "sg-9"})
	if err != nil {
		t.Fatalf("LaunchInstance: %v", err)
	}

	if inst.ID != "i-0123456789abcdef0" || inst.State != "pending" || inst.PublicIP != "54.1.2.3" {
		t.Errorf("instance = %+v", inst)
	}
	if inst.Region != "us-west-2" || fe.region != "us-west-2" {
		t.Errorf("region = %q, call region = %q", inst.Region, fe.region)
	}
	if aws.ToString(fe.in.ImageId) != "ami-123" || fe.in.InstanceType != ec2types.InstanceType(DefaultInstanceType) {
		t.Errorf("input image=%q type=%q", aws.ToString(fe.in.ImageId), fe.in.InstanceType)
	}
	if len(fe.in.SecurityGroupIds) != 1 || fe.in.SecurityGroupIds[0] != "sg-9" {
		t.Errorf("security groups = %v", fe.in.SecurityGroupIds)
	}
	var named bool
	for _, tag := range fe.in.TagSpecifications[0].Tags {
		if aws.ToString(tag.Key) == "Name" && aws.ToString(tag.Value) == "web" {
			named = true
		}
	}
	if !named {
		t.Error("Name tag missing")
	}
}

func TestAWSProvisioner_LaunchInstanceErrors(t *testing.T) {
	p := newAWSProvisioner(&fakeEC2{}, &fakeS3{}, "us-east-1", "")
	if _, err := p.LaunchInstance(context.Background(), InstanceRequest{}); !errors.Is(err, ErrNoImage) {
		t.Errorf("expected ErrNoImage, got %v", err)
	}

	boom := errors.New("UnauthorizedOperation")
	p = newAWSProvisioner(&fakeEC2{err: boom}, &fakeS3{}, "us-east-1", "ami-1")
	if _, err := p.LaunchInstance(context.Background(), InstanceRequest{}); !errors.Is(err, boom) {
		t.Errorf("expected wrapped api error, got %v", err)
	}
}

func TestAWSProvisioner_CreateBucket(t *testing.T) {
	tests := []struct {
		name           string
		req            BucketRequest
		wantConstraint bool
	}{
		{"default region has no constraint", BucketRequest{Name: "logs"}, false},
		{"other region sets constraint", BucketRequest{Name: "logs", Region: "eu-west-1", ACL: "public-read"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &fakeS3{}
			p := newAWSProvisioner(&fakeEC2{}, fs, "us-east-1", "")

			b, err := p.CreateBucket(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("CreateBucket: %v", err)
			}
			if b.URL != "https://logs.s3.amazonaws.com" {
				t.Errorf("URL = %q", b.URL)
			}
			if got := fs.in.CreateBucketConfiguration != nil; got != tt.wantConstraint {
				t.Errorf("location constraint set = %v, want %v", got, tt.wantConstraint)
			}
			if tt.req.ACL == "" && string(fs.in.ACL) != DefaultBucketACL {
				t.Errorf("ACL = %q", fs.in.ACL)
			}
			if fs.region != b.Region {
				t.Errorf("call region = %q, bucket region = %q", fs.region, b.Region)
			}
		})
	}
}

func TestAWSProvisioner_GeneratesBucketName(t *testing.T) {
	fs := &fakeS3{}
	p := newAWSProvisioner(&fakeEC2{}, fs, "us-east-1", "")

	b, err := p.CreateBucket(context.Background(), BucketRequest{})
	if err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}
	if !strings.HasPrefix(b.Name, "opsmesh-") || len(b.Name) != len("opsmesh-")+12 {
		t.Errorf("generated name = %q", b.Name)
	}
	if aws.ToString(fs.in.Bucket) != b.Name {
		t.Errorf("requested bucket = %q", aws.ToString(fs.in.Bucket))
	}
}
