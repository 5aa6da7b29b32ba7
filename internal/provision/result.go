package provision

// SetupResult summarizes one orchestration pass. The three flags are
// mutually exclusive by construction; a pass that attempted nothing
// sets none of them, which is distinct from complete failure.
type SetupResult struct {
	Succeeded []string `json:"succeeded"`
	Failed    []string `json:"failed"`

	// FailureReasons maps a failed identifier to its classified kind.
	FailureReasons map[string]FailureKind `json:"failure_reasons,omitempty"`

	AllSucceeded   bool `json:"all_succeeded"`
	PartialSuccess bool `json:"partial_success"`
	NoneSucceeded  bool `json:"none_succeeded"`
}

// Summarize partitions outcomes into succeeded and failed identifier
// lists, preserving orchestration order, and derives the overall flags.
func Summarize(outcomes []PullOutcome) SetupResult {
	result := SetupResult{
		Succeeded: []string{},
		Failed:    []string{},
	}

	for _, outcome := range outcomes {
		if outcome.Success {
			result.Succeeded = append(result.Succeeded, outcome.Model)
			continue
		}
		result.Failed = append(result.Failed, outcome.Model)
		if result.FailureReasons == nil {
			result.FailureReasons = make(map[string]FailureKind)
		}
		result.FailureReasons[outcome.Model] = outcome.FailureKind
	}

	attempted := len(outcomes) > 0
	result.AllSucceeded = attempted && len(result.Failed) == 0
	result.NoneSucceeded = attempted && len(result.Succeeded) == 0
	result.PartialSuccess = len(result.Succeeded) > 0 && len(result.Failed) > 0

	return result
}

// FailedRoles returns the roles whose outcome was a failure, for the
// retry entry point.
func FailedRoles(outcomes []PullOutcome) []PullOutcome {
	var failed []PullOutcome
	for _, outcome := range outcomes {
		if !outcome.Success {
			failed = append(failed, outcome)
		}
	}
	return failed
}
