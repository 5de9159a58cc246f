package stage

// Summary counts results by status.
type Summary struct {
	Copied  int `json:"copied" yaml:"copied" toml:"copied"`
	Linked  int `json:"linked" yaml:"linked" toml:"linked"`
	Skipped int `json:"skipped" yaml:"skipped" toml:"skipped"`
	Failed  int `json:"failed" yaml:"failed" toml:"failed"`
}

// Total is the number of entries summarized.
func (s Summary) Total() int {
	return s.Copied + s.Linked + s.Skipped + s.Failed
}

// Summarize counts results by status.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch r.Status {
		case StatusCopied:
			s.Copied++
		case StatusLinked:
			s.Linked++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

// Failures returns only the failed results.
func Failures(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Status == StatusFailed {
			out = append(out, r)
		}
	}
	return out
}

// HasFailures reports whether any result failed.
func HasFailures(results []Result) bool {
	for _, r := range results {
		if r.Status == StatusFailed {
			return true
		}
	}
	return false
}
