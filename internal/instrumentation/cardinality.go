package instrumentation

import "strings"

// ExtractUserDomain extracts the domain part from an email address so audit
// lines and metric labels never carry the full attendee address.
//
//	ExtractUserDomain("jane@example.com")  // "example.com"
//	ExtractUserDomain("invalid")           // "unknown"
func ExtractUserDomain(email string) string {
	if email == "" {
		return "unknown"
	}

	parts := strings.Split(email, "@")
	if len(parts) == 2 && parts[1] != "" {
		return parts[1]
	}

	return "unknown"
}

// Calendar operations recorded by the gateway.
const (
	OperationList        = "list"
	OperationGet         = "get"
	OperationPatchStart  = "patch_start"
	OperationPatchEnd    = "patch_end"
	OperationDelete      = "delete"
	OperationCreate      = "create"
	OperationCreateBlock = "create_block"
	OperationSend        = "send"
)
