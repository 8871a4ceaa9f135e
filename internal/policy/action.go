// action.go defines the closed set of actions a policy rule can scope and a
// signed link can be exercised with.
package policy

// Action identifies what a request wants to do with a media object.
type Action string

// Known actions. Download and copy have per-link counters; view is audited
// but not counted.
const (
	ActionDownload Action = "download"
	ActionCopy     Action = "copy"
	ActionView     Action = "view"
)

// ParseAction maps a request-supplied action string to an Action. The empty
// string defaults to download (links are served with attachment disposition).
func ParseAction(s string) (Action, bool) {
	switch s {
	case "":
		return ActionDownload, true
	case string(ActionDownload):
		return ActionDownload, true
	case string(ActionCopy):
		return ActionCopy, true
	case string(ActionView):
		return ActionView, true
	default:
		return "", false
	}
}
