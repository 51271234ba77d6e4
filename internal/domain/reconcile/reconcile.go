// Package reconcile turns webhook response bodies into an ordered task list.
//
// The webhook is a workflow-automation proxy in front of a spreadsheet and its
// responses come in several shapes. Decode tries each known shape in turn
// (direct array, wrapped array, single object) and reports which one matched,
// so callers can decide whether the result is a complete list or whether they
// have to fall back to a full fetch.
package reconcile

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/taskmaster/tasksync/internal/domain/entities"
)

// Shape identifies which response format a body matched.
type Shape int

const (
	// ShapeNone is valid JSON that carries no recognizable task list.
	ShapeNone Shape = iota
	// ShapeEmpty is an empty or whitespace-only body.
	ShapeEmpty
	// ShapeInvalid is a non-empty body that is not JSON.
	ShapeInvalid
	// ShapeDirect is an array whose elements are tasks.
	ShapeDirect
	// ShapeWrapped is an array whose first element holds the tasks under "tasks".
	ShapeWrapped
	// ShapeSingle is a lone task object.
	ShapeSingle
)

func (s Shape) String() string {
	switch s {
	case ShapeEmpty:
		return "empty"
	case ShapeInvalid:
		return "invalid"
	case ShapeDirect:
		return "direct"
	case ShapeWrapped:
		return "wrapped"
	case ShapeSingle:
		return "single"
	default:
		return "none"
	}
}

// Options tune task mapping.
type Options struct {
	// Now supplies defaults for missing ids and creation times. Defaults to time.Now.
	Now func() time.Time
	// StrictStatus clamps statuses other than Pending and Completed to Pending.
	StrictStatus bool
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Result is the outcome of Decode.
type Result struct {
	Shape Shape
	// Tasks holds the mapped list for ShapeDirect and ShapeWrapped, and the lone
	// task for ShapeSingle. It is empty for every other shape.
	Tasks []entities.Task
	// Err is the JSON error for ShapeInvalid.
	Err error
}

// Complete reports whether the result is a non-empty, ordered task list that can
// replace the local collection as is.
func (r Result) Complete() bool {
	return (r.Shape == ShapeDirect || r.Shape == ShapeWrapped) && len(r.Tasks) > 0
}

// Decode classifies body and maps any tasks it carries, preserving their order.
func Decode(body []byte, opts Options) Result {
	if len(bytes.TrimSpace(body)) == 0 {
		return Result{Shape: ShapeEmpty}
	}

	value, err := parse(body)
	if err != nil {
		return Result{Shape: ShapeInvalid, Err: err}
	}

	now := opts.now()

	switch v := value.(type) {
	case []any:
		if len(v) == 0 {
			return Result{Shape: ShapeNone}
		}
		first, _ := v[0].(map[string]any)
		if truthy(first["id"]) && truthy(first["title"]) {
			return Result{Shape: ShapeDirect, Tasks: mapAll(v, now, opts.StrictStatus)}
		}
		if truthy(first["tasks"]) {
			inner, ok := first["tasks"].([]any)
			if !ok || len(inner) == 0 {
				return Result{Shape: ShapeNone}
			}
			return Result{Shape: ShapeWrapped, Tasks: mapAll(inner, now, opts.StrictStatus)}
		}
		return Result{Shape: ShapeNone}
	case map[string]any:
		if truthy(v["id"]) && truthy(v["title"]) {
			return Result{Shape: ShapeSingle, Tasks: []entities.Task{mapTask(v, now, opts.StrictStatus)}}
		}
	}
	return Result{Shape: ShapeNone}
}

// MapTask converts one raw remote record into a local task.
func MapTask(raw map[string]any, opts Options) entities.Task {
	return mapTask(raw, opts.now(), opts.StrictStatus)
}

func mapAll(items []any, now time.Time, strict bool) []entities.Task {
	tasks := make([]entities.Task, 0, len(items))
	for _, item := range items {
		raw, _ := item.(map[string]any)
		tasks = append(tasks, mapTask(raw, now, strict))
	}
	return tasks
}

func mapTask(raw map[string]any, now time.Time, strict bool) entities.Task {
	id := ""
	if v, ok := raw["id"]; ok && v != nil {
		id = stringify(v)
	}
	if id == "" {
		id = strconv.FormatInt(now.UnixMilli(), 10)
	}

	status := entities.TaskStatus(valueOr(raw["status"], string(entities.TaskStatusPending)))
	if status == entities.TaskStatusSynced {
		status = entities.TaskStatusPending
	}
	if strict && !status.IsKnown() {
		status = entities.TaskStatusPending
	}

	task := entities.Task{
		ID:          id,
		Title:       strings.TrimSpace(valueOr(raw["title"], "")),
		Description: valueOr(raw["description"], ""),
		DueDate:     valueOr(raw["dueDate"], ""),
		Priority:    entities.Priority(valueOr(raw["priority"], string(entities.PriorityMedium))),
		Status:      status,
		CreatedAt:   valueOr(raw["createdAt"], entities.FormatTime(now)),
	}

	if rowNumber, ok := raw["row_number"]; ok {
		if b, err := json.Marshal(rowNumber); err == nil {
			task.RowNumber = b
		}
	}

	return task
}

// parse decodes a single JSON value, keeping numbers in their textual form.
func parse(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after top-level value")
	}
	return value, nil
}

// truthy follows the loose checks the webhook contract was written against:
// null, false, 0 and "" are false, everything else (including empty objects) is true.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	default:
		return true
	}
}

func valueOr(v any, def string) string {
	if !truthy(v) {
		return def
	}
	return stringify(v)
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
