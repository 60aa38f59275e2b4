package relation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pitabwire/schemadmin/model"
)

// displayKeys are tried in order when deriving an option's display string.
var displayKeys = []string{"name", "title", "label", "display_name", "full_name"}

// trailingKeys are tried after the first/last name pair.
var trailingKeys = []string{"email", "username", "value"}

// ExtractItems normalizes a list response: a bare array or an envelope with a
// "results" array. Any other shape yields nil. Array elements that are not
// objects are skipped.
func ExtractItems(body any) ([]map[string]any, bool) {
	var arr []any
	switch v := body.(type) {
	case []any:
		arr = v
	case []map[string]any:
		return v, true
	case map[string]any:
		results, ok := v["results"].([]any)
		if !ok {
			return nil, false
		}
		arr = results
	default:
		return nil, false
	}

	items := make([]map[string]any, 0, len(arr))
	for _, el := range arr {
		if m, ok := el.(map[string]any); ok {
			items = append(items, m)
		}
	}
	return items, true
}

// DisplayFor derives the display string of an item. The first non-empty of
// name, title, label, display_name, full_name, "first_name last_name",
// email, username and value wins; otherwise "<kind> #<id>".
func DisplayFor(item map[string]any, kind string) string {
	for _, k := range displayKeys {
		if s := scalarString(item[k]); s != "" {
			return s
		}
	}
	full := strings.TrimSpace(scalarString(item["first_name"]) + " " + scalarString(item["last_name"]))
	if full != "" {
		return full
	}
	for _, k := range trailingKeys {
		if s := scalarString(item[k]); s != "" {
			return s
		}
	}
	return fmt.Sprintf("%s #%s", kind, scalarString(ItemID(item)))
}

// ItemID returns the primary key of an item: "id", else "pk".
func ItemID(item map[string]any) any {
	if id, ok := item["id"]; ok && id != nil {
		return id
	}
	return item["pk"]
}

// Options converts items into relation options. Items without a primary key
// are skipped.
func Options(items []map[string]any, kind string) []model.RelationOption {
	options := make([]model.RelationOption, 0, len(items))
	for _, item := range items {
		id := ItemID(item)
		if id == nil {
			continue
		}
		options = append(options, model.RelationOption{ID: id, Display: DisplayFor(item, kind)})
	}
	return options
}

// ChoiceOptions converts a field's fixed choices into options.
func ChoiceOptions(choices []model.Choice) []model.RelationOption {
	options := make([]model.RelationOption, 0, len(choices))
	for _, c := range choices {
		label := c.Label
		if label == "" {
			label = scalarString(c.Value)
		}
		options = append(options, model.RelationOption{ID: c.Value, Display: label})
	}
	return options
}

func scalarString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case bool:
		return strconv.FormatBool(s)
	}
	return ""
}
