// Package extract derives task parameters from free-text requests.
package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ShayCichocki/opsmesh/pkg/models"
)

// Extractor fills the parameters of a task for one agent type.
type Extractor interface {
	Extract(ctx context.Context, agentType models.AgentType, request string) (map[string]any, error)
}

// Kinds accepted by New.
const (
	KindEmpty  = "empty"
	KindRegex  = "regex"
	KindClaude = "claude"
)

// allowedKeys lists the parameters each agent type understands.
var allowedKeys = map[models.AgentType][]string{
	models.AgentTypeInfrastructure: {"region", "instance_type", "bucket_name", "acl", "security_group", "image_id"},
	models.AgentTypeDeployment:     {"application", "version", "environment"},
	models.AgentTypeMonitoring:     {"region"},
	models.AgentTypeSecurity:       {"region"},
	models.AgentTypeCost:           {"region"},
}

// filter keeps only keys allowed for the agent type.
func filter(agentType models.AgentType, params map[string]any) map[string]any {
	out := make(map[string]any)
	for _, k := range allowedKeys[agentType] {
		if v, ok := params[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Empty returns no parameters, leaving every agent on its defaults.
type Empty struct{}

// Extract implements Extractor.
func (Empty) Extract(context.Context, models.AgentType, string) (map[string]any, error) {
	return map[string]any{}, nil
}

var (
	regionRe        = regexp.MustCompile(`(?i)\b([a-z]{2}(?:-gov)?-(?:north|south|east|west|central|northeast|southeast|northwest|southwest)-\d)\b`)
	instanceTypeRe  = regexp.MustCompile(`(?i)\b([a-z][0-9][a-z]{0,3}\.(?:nano|micro|small|medium|large|\d*xlarge))\b`)
	bucketRe        = regexp.MustCompile(`(?i)\bbucket\s+(?:named|called)\s+["']?([a-z0-9][a-z0-9.-]{1,62})`)
	aclRe           = regexp.MustCompile(`(?i)\b(public-read-write|public-read|authenticated-read|private)\b`)
	securityGroupRe = regexp.MustCompile(`(?i)\b(sg-[0-9a-f]{8,17})\b`)
	imageRe         = regexp.MustCompile(`(?i)\b(ami-[0-9a-f]{8,17})\b`)
	environmentRe   = regexp.MustCompile(`(?i)\b(dev|development|staging|stage|prod|production|qa)\b`)
	versionRe       = regexp.MustCompile(`(?i)(?:\bv|\bversion\s+v?)(\d+\.\d+\.\d+)\b`)
	applicationRe   = regexp.MustCompile(`(?i)\b(?:app|application|service)\s+(?:named\s+|called\s+)?["']?([a-z][a-z0-9_-]*)`)
)

// stopwords are never taken as application names.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "to": true, "in": true,
	"on": true, "for": true, "with": true, "from": true, "using": true, "into": true,
}

var environmentAliases = map[string]string{
	"development": "dev",
	"stage":       "staging",
	"production":  "prod",
}

// Regex pulls well-known parameter shapes out of the request text.
type Regex struct{}

// Extract implements Extractor.
func (Regex) Extract(ctx context.Context, agentType models.AgentType, request string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	params := make(map[string]any)
	set := func(key string, re *regexp.Regexp, transform func(string) string) {
		m := re.FindStringSubmatch(request)
		if m == nil {
			return
		}
		v := m[1]
		if transform != nil {
			v = transform(v)
		}
		if v != "" {
			params[key] = v
		}
	}

	set("region", regionRe, strings.ToLower)
	set("instance_type", instanceTypeRe, strings.ToLower)
	set("bucket_name", bucketRe, func(s string) string {
		return strings.TrimRight(strings.ToLower(s), ".-")
	})
	set("acl", aclRe, strings.ToLower)
	set("security_group", securityGroupRe, strings.ToLower)
	set("image_id", imageRe, strings.ToLower)
	set("environment", environmentRe, func(s string) string {
		s = strings.ToLower(s)
		if alias, ok := environmentAliases[s]; ok {
			return alias
		}
		return s
	})
	set("version", versionRe, nil)

	for _, m := range applicationRe.FindAllStringSubmatch(request, -1) {
		if name := strings.ToLower(m[1]); !stopwords[name] {
			params["application"] = name
			break
		}
	}

	return filter(agentType, params), nil
}

// New builds the extractor for kind. An empty kind selects Empty.
func New(kind string, cfg ClaudeConfig) (Extractor, error) {
	switch kind {
	case "", KindEmpty:
		return Empty{}, nil
	case KindRegex:
		return Regex{}, nil
	case KindClaude:
		c, err := NewClaude(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown extractor kind %q", kind)
	}
}
