package views

import (
	"strings"

	"github.com/a-h/templ"

	"github.com/networkteam/pwire/protocol"
	"github.com/networkteam/pwire/trace"
)

type BadgeVariant string

const (
	BadgeVariantSecondary BadgeVariant = "secondary"
	BadgeVariantSuccess   BadgeVariant = "success"
	BadgeVariantWarning   BadgeVariant = "warning"
	BadgeVariantError     BadgeVariant = "error"
	BadgeVariantOutline   BadgeVariant = "outline"
)

func badgeClasses(variant BadgeVariant) string {
	classes := []string{"badge"}
	switch variant {
	case BadgeVariantSecondary:
		classes = append(classes, "badge-secondary")
	case BadgeVariantSuccess:
		classes = append(classes, "badge-success")
	case BadgeVariantWarning:
		classes = append(classes, "badge-warning")
	case BadgeVariantError:
		classes = append(classes, "badge-error")
	case BadgeVariantOutline:
		classes = append(classes, "badge-outline")
	default:
		classes = append(classes, "badge-default")
	}
	return strings.Join(classes, " ")
}

// frameBadge labels a frame as call, response, error or event.
func frameBadge(frame trace.Frame) templ.Component {
	switch {
	case frame.Error != "":
		return Badge(BadgeVariantError, "error")
	case frame.IsResponse():
		return Badge(BadgeVariantSuccess, "response")
	case frame.Direction == protocol.DirectionSend:
		return Badge(BadgeVariantSecondary, "call")
	case frame.Method == protocol.MethodCreate || frame.Method == protocol.MethodDispose || frame.Method == protocol.MethodAdopt:
		return Badge(BadgeVariantOutline, "lifecycle")
	default:
		return Badge(BadgeVariantWarning, "event")
	}
}
