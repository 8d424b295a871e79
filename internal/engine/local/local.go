package local

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/slok/infraware/internal/engine"
	"github.com/slok/infraware/internal/iacspec"
	"github.com/slok/infraware/internal/log"
	"github.com/slok/infraware/internal/model"
)

// EngineConfig is the configuration for the local engine.
type EngineConfig struct {
	// Delay is waited before every call, it simulates a slow engine.
	Delay  time.Duration
	Logger log.Logger
}

func (c *EngineConfig) defaults() error {
	if c.Delay < 0 {
		return fmt.Errorf("delay can't be negative")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "engine.Local"})
	return nil
}

// Engine is a deterministic generation engine. The spec is inferred from
// keywords in the prompt and the artifacts are rendered from templates, it
// doesn't need any external service.
type Engine struct {
	delay  time.Duration
	logger log.Logger
}

// NewEngine creates a new local engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Engine{
		delay:  cfg.Delay,
		logger: cfg.Logger,
	}, nil
}

var _ engine.Engine = &Engine{}

func (e *Engine) GenerateSpec(ctx context.Context, input model.JobInput) ([]byte, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}

	doc := iacspec.Document{
		Project:     input.ProjectName,
		Provider:    string(input.Provider),
		Region:      defaultRegions[input.Provider],
		Description: input.Prompt,
		Resources:   inferResources(input.Prompt),
	}

	data, err := iacspec.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrEngineFailure, err)
	}

	e.logger.Debugf("Generated spec for project %s with %d resources", input.ProjectName, len(doc.Resources))
	return data, nil
}

func (e *Engine) RenderDiagrams(ctx context.Context, spec []byte) ([]model.File, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	return renderFiles(spec, "architecture.mmd", "architecture.dot")
}

func (e *Engine) RenderCode(ctx context.Context, spec []byte) ([]model.File, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	return renderFiles(spec, "providers.tf", "variables.tf", "main.tf", "outputs.tf")
}

func (e *Engine) RenderDocs(ctx context.Context, spec []byte) (*model.File, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	files, err := renderFiles(spec, "README.md")
	if err != nil {
		return nil, err
	}
	return &files[0], nil
}

func (e *Engine) wait(ctx context.Context) error {
	if e.delay == 0 {
		return ctx.Err()
	}

	t := time.NewTimer(e.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var defaultRegions = map[model.Provider]string{
	model.ProviderGCP:   "us-central1",
	model.ProviderAWS:   "us-east-1",
	model.ProviderAzure: "eastus",
}

type rule struct {
	keywords []string
	resource iacspec.Resource
	// dependsOn holds groups of candidates, the first candidate of a group
	// that is part of the spec is used as dependency.
	dependsOn [][]string
}

var rules = []rule{
	{
		keywords: []string{"vpc", "network", "vnet"},
		resource: iacspec.Resource{Name: "vpc", Type: "network", Properties: map[string]any{"cidr": "10.0.0.0/16"}},
	},
	{
		keywords:  []string{"subnet", "public subnet"},
		resource:  iacspec.Resource{Name: "public_subnet", Type: "subnet", Properties: map[string]any{"cidr": "10.0.1.0/24", "public": true}},
		dependsOn: [][]string{{"vpc"}},
	},
	{
		keywords:  []string{"private subnet", "private network"},
		resource:  iacspec.Resource{Name: "private_subnet", Type: "subnet", Properties: map[string]any{"cidr": "10.0.2.0/24", "public": false}},
		dependsOn: [][]string{{"vpc"}},
	},
	{
		keywords:  []string{"firewall", "security group"},
		resource:  iacspec.Resource{Name: "firewall", Type: "firewall", Properties: map[string]any{"allow_ports": []any{22, 80, 443}}},
		dependsOn: [][]string{{"vpc"}},
	},
	{
		keywords:  []string{"web server", "server", "vm", "virtual machine", "instance", "compute"},
		resource:  iacspec.Resource{Name: "web_server", Type: "compute", Properties: map[string]any{"instances": 1, "size": "small"}},
		dependsOn: [][]string{{"public_subnet", "private_subnet", "vpc"}, {"firewall"}},
	},
	{
		keywords:  []string{"load balancer", "balancer", "lb"},
		resource:  iacspec.Resource{Name: "load_balancer", Type: "load_balancer", Properties: map[string]any{"port": 443}},
		dependsOn: [][]string{{"web_server", "kubernetes"}},
	},
	{
		keywords:  []string{"database", "postgres", "postgresql", "mysql", "sql", "db"},
		resource:  iacspec.Resource{Name: "database", Type: "database", Properties: map[string]any{"engine": "postgres", "version": "15", "storage_gb": 20}},
		dependsOn: [][]string{{"private_subnet", "public_subnet", "vpc"}},
	},
	{
		keywords:  []string{"cache", "redis", "memcached"},
		resource:  iacspec.Resource{Name: "cache", Type: "cache", Properties: map[string]any{"engine": "redis", "memory_gb": 1}},
		dependsOn: [][]string{{"private_subnet", "public_subnet", "vpc"}},
	},
	{
		keywords:  []string{"kubernetes", "k8s", "gke", "eks", "aks"},
		resource:  iacspec.Resource{Name: "kubernetes", Type: "kubernetes_cluster", Properties: map[string]any{"node_count": 3}},
		dependsOn: [][]string{{"private_subnet", "public_subnet", "vpc"}},
	},
	{
		keywords: []string{"bucket", "object storage", "storage", "s3", "blob"},
		resource: iacspec.Resource{Name: "bucket", Type: "bucket", Properties: map[string]any{"versioning": true}},
	},
	{
		keywords: []string{"queue", "pubsub", "pub sub", "sqs", "messaging", "service bus"},
		resource: iacspec.Resource{Name: "queue", Type: "queue"},
	},
	{
		keywords:  []string{"function", "lambda", "serverless"},
		resource:  iacspec.Resource{Name: "function", Type: "function", Properties: map[string]any{"runtime": "python3.12"}},
		dependsOn: [][]string{{"queue", "bucket"}},
	},
	{
		keywords:  []string{"dns", "domain"},
		resource:  iacspec.Resource{Name: "dns", Type: "dns"},
		dependsOn: [][]string{{"load_balancer", "web_server"}},
	},
}

// networked resources need a network and are protected by a firewall.
var networked = map[string]bool{
	"compute":            true,
	"database":           true,
	"cache":              true,
	"kubernetes_cluster": true,
	"load_balancer":      true,
}

func inferResources(prompt string) []iacspec.Resource {
	text := " " + normalize(prompt) + " "

	selected := map[string]bool{}
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(text, " "+kw+" ") {
				selected[r.resource.Name] = true
				break
			}
		}
	}

	// Nothing recognized, fall back to a minimal application setup.
	if len(selected) == 0 {
		selected["web_server"] = true
	}

	for _, r := range rules {
		if selected[r.resource.Name] && networked[r.resource.Type] {
			selected["vpc"] = true
			if r.resource.Type == "compute" {
				selected["firewall"] = true
			}
		}
	}
	if selected["vpc"] && !selected["private_subnet"] {
		selected["public_subnet"] = true
	}

	resources := []iacspec.Resource{}
	for _, r := range rules {
		if !selected[r.resource.Name] {
			continue
		}

		res := r.resource
		res.Properties = copyProperties(r.resource.Properties)
		res.DependsOn = nil
		for _, group := range r.dependsOn {
			for _, candidate := range group {
				if selected[candidate] {
					res.DependsOn = append(res.DependsOn, candidate)
					break
				}
			}
		}
		resources = append(resources, res)
	}

	return resources
}

func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func copyProperties(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	c := make(map[string]any, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}
