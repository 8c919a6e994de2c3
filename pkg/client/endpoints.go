package client

import (
	"fmt"
	"strings"
)

const providerDomain = "amazonaws.com"

// Services addressed through a single global endpoint rather than a
// regional one.
var globalServices = map[string]bool{
	"iam":        true,
	"route53":    true,
	"cloudfront": true,
}

// Endpoint resolves the base URL for a service in a region by convention:
// https://<service>.<region>.<provider-domain>, with the global-service and
// override exceptions.
func (c *Client) Endpoint(service, region string) string {
	if c.override != "" {
		return strings.TrimSuffix(c.override, "/")
	}
	if globalServices[service] {
		return fmt.Sprintf("https://%s.%s", service, providerDomain)
	}
	return fmt.Sprintf("https://%s.%s.%s", service, region, providerDomain)
}
