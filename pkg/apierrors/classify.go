package apierrors

import (
	"strings"
)

// The classification tables below are the single place that encodes
// provider-specific error-code knowledge. The dispatcher and waiter consume
// only the resulting Class.

var throttlingCodes = map[string]bool{
	"Throttling":                             true,
	"ThrottlingException":                    true,
	"ThrottledException":                     true,
	"TooManyRequestsException":               true,
	"RequestLimitExceeded":                   true,
	"RequestThrottled":                       true,
	"RequestThrottledException":              true,
	"ProvisionedThroughputExceededException": true,
	"SlowDown":                               true,
	"BandwidthLimitExceeded":                 true,
	"LimitExceededException":                 true,
}

var transientCodes = map[string]bool{
	"RequestTimeout":                 true,
	"RequestTimeoutException":        true,
	"ServiceUnavailable":             true,
	"InternalFailure":                true,
	"InternalError":                  true,
	"InternalServerError":            true,
	"TransactionInProgressException": true,
	"IDPCommunicationError":          true,
}

var fatalCodes = map[string]bool{
	"AccessDenied":                true,
	"AccessDeniedException":       true,
	"UnauthorizedOperation":       true,
	"InvalidClientTokenId":        true,
	"MissingAuthenticationToken":  true,
	"SignatureDoesNotMatch":       true,
	"ExpiredToken":                true,
	"ExpiredTokenException":       true,
	"UnrecognizedClientException": true,
	"ValidationException":         true,
	"MalformedPolicyDocument":     true,
	"InvalidParameterValue":       true,
	"InvalidParameterCombination": true,
}

var retryableStatuses = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// Classify maps a provider error code, message, and HTTP status to a Class.
// Codes take precedence over statuses; the message is consulted only for the
// handful of codes (ValidationError and friends) that multiplex several
// conditions behind one code string.
func Classify(code, message string, httpStatus int) Class {
	// Some protocols prefix codes with a namespace, e.g.
	// "com.amazonaws.sqs#QueueDoesNotExist".
	if i := strings.LastIndexByte(code, '#'); i >= 0 {
		code = code[i+1:]
	}

	switch {
	case throttlingCodes[code] || httpStatus == 429:
		return ClassThrottling
	case transientCodes[code]:
		return ClassTransient
	case isConflictCode(code, message):
		return ClassConflict
	case isNotFoundCode(code, message):
		return ClassNotFound
	case fatalCodes[code]:
		return ClassFatal
	case retryableStatuses[httpStatus] || httpStatus >= 500:
		return ClassTransient
	default:
		return ClassFatal
	}
}

// RetryableStatus reports whether an HTTP status code alone, absent any
// decoded error body, warrants a retry.
func RetryableStatus(status int) bool {
	return retryableStatuses[status]
}

func isNotFoundCode(code, message string) bool {
	switch code {
	case "NoSuchEntity", "NoSuchQueue", "QueueDoesNotExist", "NoSuchBucket",
		"NoSuchHostedZone", "NoSuchDistribution", "StackNotFound",
		"ResourceNotFoundException", "NotFoundException", "NoSuchKey":
		return true
	}
	if strings.HasSuffix(code, "NotFound") || strings.HasSuffix(code, ".NotFound") {
		return true
	}
	// CloudFormation reports a missing stack as a generic validation error.
	if code == "ValidationError" && strings.Contains(message, "does not exist") {
		return true
	}
	return false
}

func isConflictCode(code, message string) bool {
	switch code {
	case "EntityAlreadyExists", "AlreadyExistsException", "QueueAlreadyExists",
		"ResourceConflictException", "BucketAlreadyOwnedByYou",
		"QueueNameExists", "ConflictException":
		return true
	}
	if strings.HasSuffix(code, "AlreadyExists") {
		return true
	}
	// CloudFormation reports a no-op update as a generic validation error.
	if code == "ValidationError" && strings.Contains(message, "No updates are to be performed") {
		return true
	}
	return false
}
