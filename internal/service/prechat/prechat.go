// Package prechat enforces the required fields of a department's pre-chat
// form. The same check runs in the widget client and on the server.
package prechat

import (
	"reflect"
	"sort"
	"strings"

	"chatdesk-backend/internal/model"
)

type Result struct {
	OK              bool
	MissingFieldIDs []string
}

// Validate matches submitted values to fields by id. Labels are ignored and
// unknown keys are tolerated. Missing ids are reported in form order.
func Validate(fields []model.PreChatFormField, submitted map[string]any) Result {
	ordered := Sorted(fields)

	var missing []string
	for _, field := range ordered {
		if !field.Required {
			continue
		}
		value, ok := submitted[field.ID]
		if !ok || isEmpty(value) {
			missing = append(missing, field.ID)
		}
	}

	return Result{OK: len(missing) == 0, MissingFieldIDs: missing}
}

// Sorted returns a copy of fields ordered by their explicit order value.
func Sorted(fields []model.PreChatFormField) []model.PreChatFormField {
	out := make([]model.PreChatFormField, len(fields))
	copy(out, fields)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Order < out[j].Order
	})
	return out
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case bool:
		// an unticked required checkbox
		return !v
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return true
		}
		return isEmpty(rv.Elem().Interface())
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	}
	return false
}
