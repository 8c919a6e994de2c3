// Package sqs is a thin wrapper over the core client for the queue API,
// which speaks the JSON-RPC protocol with the action carried in the
// X-Amz-Target header.
package sqs

import (
	"context"
	"fmt"

	"github.com/nimbusctl/nimbus/pkg/client"
	"github.com/nimbusctl/nimbus/pkg/protocol"
)

const (
	serviceName = "sqs"
	targetName  = "AmazonSQS"
	jsonVersion = "1.0"
)

// Client issues SQS API calls.
type Client struct {
	api *client.Client
}

// New wraps a core client.
func New(api *client.Client) *Client {
	return &Client{api: api}
}

func (c *Client) spec(action string, params map[string]any) *protocol.RequestSpec {
	return &protocol.RequestSpec{
		Service:     serviceName,
		Protocol:    protocol.JSONRPC,
		Target:      targetName,
		Action:      action,
		JSONVersion: jsonVersion,
		Params:      params,
	}
}

// CreateQueue creates a queue and returns its URL. Attributes like
// VisibilityTimeout or MessageRetentionPeriod pass through as strings.
func (c *Client) CreateQueue(ctx context.Context, name string, attributes map[string]string) (string, error) {
	params := map[string]any{"QueueName": name}
	if len(attributes) > 0 {
		params["Attributes"] = attributes
	}

	result, err := c.api.Do(ctx, c.spec("CreateQueue", params))
	if err != nil {
		return "", fmt.Errorf("failed to create queue %s: %w", name, err)
	}
	return result.Str("QueueUrl"), nil
}

// GetQueueAttributes fetches the named attributes of a queue, or all of
// them when names is empty.
func (c *Client) GetQueueAttributes(ctx context.Context, queueURL string, names []string) (map[string]string, error) {
	if len(names) == 0 {
		names = []string{"All"}
	}
	params := map[string]any{
		"QueueUrl":       queueURL,
		"AttributeNames": names,
	}

	result, err := c.api.Do(ctx, c.spec("GetQueueAttributes", params))
	if err != nil {
		return nil, fmt.Errorf("failed to get queue attributes: %w", err)
	}

	attributes := map[string]string{}
	for key, value := range result.Map("Attributes") {
		if s, ok := value.(string); ok {
			attributes[key] = s
		}
	}
	return attributes, nil
}

// DeleteQueue removes a queue.
func (c *Client) DeleteQueue(ctx context.Context, queueURL string) error {
	if _, err := c.api.Do(ctx, c.spec("DeleteQueue", map[string]any{"QueueUrl": queueURL})); err != nil {
		return fmt.Errorf("failed to delete queue: %w", err)
	}
	return nil
}

// ListQueues pages through queue URLs, optionally filtered by name prefix.
func (c *Client) ListQueues(prefix string) *client.Pager[string] {
	return client.NewPager(func(ctx context.Context, cursor string) ([]string, string, error) {
		params := map[string]any{}
		if prefix != "" {
			params["QueueNamePrefix"] = prefix
		}
		if cursor != "" {
			params["NextToken"] = cursor
		}

		result, err := c.api.Do(ctx, c.spec("ListQueues", params))
		if err != nil {
			return nil, "", err
		}

		var urls []string
		for _, item := range result.List("QueueUrls") {
			if s, ok := item.(string); ok {
				urls = append(urls, s)
			}
		}
		return urls, result.Str("NextToken"), nil
	})
}
