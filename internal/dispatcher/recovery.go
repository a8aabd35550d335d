package dispatcher

import "strings"

// Classify annotates an execution failure message with a coarse
// recovery-hint category. It does not alter retry behavior: retries
// remain the operator-driven failed -> backlog transition.
func Classify(errMsg string) string {
	lower := strings.ToLower(errMsg)
	switch {
	case strings.Contains(lower, "context deadline exceeded") || strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out"):
		return "[timeout] " + errMsg
	case strings.Contains(lower, "unauthorized") || strings.Contains(lower, "401") || strings.Contains(lower, "api key") || strings.Contains(lower, "forbidden"):
		return "[auth] " + errMsg
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") || strings.Contains(lower, "network") || strings.Contains(lower, "dial tcp"):
		return "[network] " + errMsg
	default:
		return "[unknown] " + errMsg
	}
}
