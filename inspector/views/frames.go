package views

import (
	"strconv"

	"github.com/gofrs/uuid"

	"github.com/networkteam/pwire/protocol"
	"github.com/networkteam/pwire/trace"
)

func frameListProps(props InspectorProps) FrameListProps {
	listProps := FrameListProps{Frames: props.Frames}
	if props.SelectedFrame != nil {
		listProps.SelectedFrameID = &props.SelectedFrame.ID
	}
	return listProps
}

func frameClasses(frame trace.Frame, selected *uuid.UUID) string {
	if selected != nil && *selected == frame.ID {
		return "frame selected"
	}
	return "frame"
}

func directionArrow(d protocol.Direction) string {
	if d == protocol.DirectionSend {
		return "→"
	}
	return "←"
}

type detailRow struct {
	label string
	value string
}

func frameDetailRows(frame trace.Frame) []detailRow {
	rows := []detailRow{
		{label: "Direction", value: string(frame.Direction)},
		{label: "Time", value: frame.Time.Format("2006-01-02 15:04:05.000")},
	}
	if frame.CallID != 0 {
		rows = append(rows, detailRow{label: "Call", value: strconv.Itoa(frame.CallID)})
	}
	if frame.Duration > 0 {
		rows = append(rows, detailRow{label: "Duration", value: formatDuration(frame.Duration)})
	}
	if frame.Error != "" {
		rows = append(rows, detailRow{label: "Error", value: frame.Error})
	}
	return append(rows, detailRow{label: "Size", value: formatSize(frame.Payload.Size())})
}
