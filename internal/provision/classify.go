package provision

import (
	"context"
	"errors"
	"strings"
)

// FailureKind is the fixed failure taxonomy for fetch/verify errors.
type FailureKind string

const (
	// FailureSSHKey: local SSH setup interferes with outbound HTTPS.
	FailureSSHKey FailureKind = "ssh_key"
	// FailureNetwork: connection refused or timed out.
	FailureNetwork FailureKind = "network"
	// FailureAuth: upstream rejected credentials.
	FailureAuth FailureKind = "auth"
	// FailureService: the runtime daemon is unreachable.
	FailureService FailureKind = "service"
	// FailureRegistry: the model or its manifest is missing upstream.
	FailureRegistry FailureKind = "registry"
	// FailureDisk: no space or filesystem permissions.
	FailureDisk FailureKind = "disk"
	// FailureModelNotFound: the local alias is unknown to the runtime.
	FailureModelNotFound FailureKind = "model_not_found"
	// FailureUnknown is the fallback bucket.
	FailureUnknown FailureKind = "unknown"
)

// String returns the string representation of the failure kind
func (k FailureKind) String() string {
	return string(k)
}

// classificationRules maps failure text to a kind. Rules are applied in
// order; earlier kinds take precedence. New runtime output patterns go
// here, never into the orchestrator.
var classificationRules = []struct {
	kind     FailureKind
	patterns []string
}{
	{FailureSSHKey, []string{
		"ssh_key",
		"ssh key",
		"permission denied (publickey)",
		"unprotected private key",
	}},
	{FailureNetwork, []string{
		"connection refused",
		"timed out",
		"timeout",
		"deadline exceeded",
		"no such host",
		"network is unreachable",
		"connection reset",
		"tls handshake",
	}},
	{FailureAuth, []string{
		"unauthorized",
		"forbidden",
		"authentication required",
		"status 401",
		"status 403",
	}},
	{FailureService, []string{
		"runtime unreachable",
		"could not connect to ollama",
		"ollama server not responding",
		"daemon not running",
		"service unavailable",
	}},
	{FailureRegistry, []string{
		"manifest unknown",
		"pull model manifest",
		"file does not exist",
		"not found in registry",
		"repository does not exist",
	}},
	{FailureDisk, []string{
		"no space left",
		"disk quota exceeded",
		"permission denied",
		"read-only file system",
	}},
	{FailureModelNotFound, []string{
		"model not found",
		"no such model",
		"unknown model",
	}},
}

// Classify maps free-text runtime output to a FailureKind using the
// ordered rule table.
func Classify(output string) FailureKind {
	lower := strings.ToLower(output)

	for _, rule := range classificationRules {
		for _, pattern := range rule.patterns {
			if strings.Contains(lower, pattern) {
				return rule.kind
			}
		}
	}
	return FailureUnknown
}

// ClassifyError classifies an error from a fetch or verify call. A
// context deadline is a NETWORK failure: the download ran out of time.
func ClassifyError(err error) FailureKind {
	if err == nil {
		return FailureUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureNetwork
	}
	return Classify(err.Error())
}
