// Package cloudformation is a thin wrapper over the core client for the
// stack management API. It speaks the form-encoded query protocol and
// exposes the listing pager and stack-status waiter; it carries no
// template or resource logic of its own.
package cloudformation

import (
	"context"
	"fmt"
	"time"

	"github.com/nimbusctl/nimbus/pkg/client"
	"github.com/nimbusctl/nimbus/pkg/protocol"
)

const (
	serviceName = "cloudformation"
	apiVersion  = "2010-05-15"
)

// Client issues CloudFormation API calls.
type Client struct {
	api *client.Client
}

// New wraps a core client.
func New(api *client.Client) *Client {
	return &Client{api: api}
}

// Stack is the subset of stack state the wrapper surfaces.
type Stack struct {
	Name         string
	ID           string
	Status       string
	StatusReason string
}

// Parameter is one template parameter binding.
type Parameter struct {
	Key   string
	Value string
}

func (c *Client) spec(action string, params map[string]any) *protocol.RequestSpec {
	return &protocol.RequestSpec{
		Service:    serviceName,
		Protocol:   protocol.Query,
		Action:     action,
		APIVersion: apiVersion,
		Params:     params,
	}
}

func parameterList(params []Parameter) []any {
	if len(params) == 0 {
		return nil
	}
	out := make([]any, len(params))
	for i, p := range params {
		out[i] = map[string]any{
			"ParameterKey":   p.Key,
			"ParameterValue": p.Value,
		}
	}
	return out
}

func stackFromData(data map[string]any) Stack {
	r := &protocol.Result{Data: data}
	return Stack{
		Name:         r.Str("StackName"),
		ID:           r.Str("StackId"),
		Status:       r.Str("StackStatus"),
		StatusReason: r.Str("StackStatusReason"),
	}
}

// CreateStackInput names a new stack and its template.
type CreateStackInput struct {
	Name         string
	TemplateBody string
	Parameters   []Parameter
	Capabilities []string
}

// CreateStack starts stack creation and returns the new stack id.
func (c *Client) CreateStack(ctx context.Context, input CreateStackInput) (string, error) {
	params := map[string]any{
		"StackName":    input.Name,
		"TemplateBody": input.TemplateBody,
	}
	if list := parameterList(input.Parameters); list != nil {
		params["Parameters"] = list
	}
	if len(input.Capabilities) > 0 {
		params["Capabilities"] = input.Capabilities
	}

	result, err := c.api.Do(ctx, c.spec("CreateStack", params))
	if err != nil {
		return "", fmt.Errorf("failed to create stack %s: %w", input.Name, err)
	}
	return result.Str("StackId"), nil
}

// UpdateStack applies a new template to an existing stack.
func (c *Client) UpdateStack(ctx context.Context, input CreateStackInput) (string, error) {
	params := map[string]any{
		"StackName":    input.Name,
		"TemplateBody": input.TemplateBody,
	}
	if list := parameterList(input.Parameters); list != nil {
		params["Parameters"] = list
	}
	if len(input.Capabilities) > 0 {
		params["Capabilities"] = input.Capabilities
	}

	result, err := c.api.Do(ctx, c.spec("UpdateStack", params))
	if err != nil {
		return "", fmt.Errorf("failed to update stack %s: %w", input.Name, err)
	}
	return result.Str("StackId"), nil
}

// DeleteStack starts stack deletion.
func (c *Client) DeleteStack(ctx context.Context, name string) error {
	if _, err := c.api.Do(ctx, c.spec("DeleteStack", map[string]any{"StackName": name})); err != nil {
		return fmt.Errorf("failed to delete stack %s: %w", name, err)
	}
	return nil
}

// DescribeStacks returns the named stack, or every stack when name is "".
func (c *Client) DescribeStacks(ctx context.Context, name string) ([]Stack, error) {
	params := map[string]any{}
	if name != "" {
		params["StackName"] = name
	}

	result, err := c.api.Do(ctx, c.spec("DescribeStacks", params))
	if err != nil {
		return nil, fmt.Errorf("failed to describe stacks: %w", err)
	}

	var stacks []Stack
	for _, item := range result.List("Stacks") {
		if m, ok := item.(map[string]any); ok {
			stacks = append(stacks, stackFromData(m))
		}
	}
	return stacks, nil
}

// ListStacks pages through stack summaries. Each page replays the
// NextToken cursor into the same operation.
func (c *Client) ListStacks() *client.Pager[Stack] {
	return client.NewPager(func(ctx context.Context, cursor string) ([]Stack, string, error) {
		params := map[string]any{}
		if cursor != "" {
			params["NextToken"] = cursor
		}

		result, err := c.api.Do(ctx, c.spec("ListStacks", params))
		if err != nil {
			return nil, "", err
		}

		var stacks []Stack
		for _, item := range result.List("StackSummaries") {
			if m, ok := item.(map[string]any); ok {
				stacks = append(stacks, stackFromData(m))
			}
		}
		return stacks, result.Str("NextToken"), nil
	})
}

// StackStatus fetches the current status of one stack.
func (c *Client) StackStatus(ctx context.Context, name string) (string, error) {
	stacks, err := c.DescribeStacks(ctx, name)
	if err != nil {
		return "", err
	}
	if len(stacks) == 0 {
		return "", nil
	}
	return stacks[0].Status, nil
}

// WaitForStack polls the stack until it reaches target, a rollback or
// failure state, or maxWait elapses.
func (c *Client) WaitForStack(ctx context.Context, name, target string, interval, maxWait time.Duration) (string, error) {
	return c.api.WaitFor(ctx,
		func(ctx context.Context) (string, error) {
			return c.StackStatus(ctx, name)
		},
		client.WaiterSpec{
			Name:     "cloudformation-stack",
			Interval: interval,
			MaxWait:  maxWait,
			Success:  target,
			Failure: []string{
				"CREATE_FAILED",
				"ROLLBACK_COMPLETE",
				"ROLLBACK_FAILED",
				"UPDATE_ROLLBACK_COMPLETE",
				"UPDATE_ROLLBACK_FAILED",
				"DELETE_FAILED",
			},
		})
}
