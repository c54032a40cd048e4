package policy

import "fmt"

// RefusalMessage builds the user-facing text for a declined request.
func RefusalMessage(reason, alternative string) string {
	msg := fmt.Sprintf("I'm unable to help with this request. Reason: %s", reason)
	if alternative != "" {
		msg += " Alternative: " + alternative
	}
	return msg + " If you believe this is an error, please rephrase your request or provide additional context."
}
