package workload

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ExtractJSONPath extracts a value from a JSON document using a JSONPath
// expression such as $.deal.id or $.items[0].name.
func ExtractJSONPath(json []byte, path string) (string, error) {
	if len(json) == 0 {
		return "", fmt.Errorf("empty JSON document")
	}
	if path == "" {
		return "", fmt.Errorf("empty JSONPath expression")
	}

	result := gjson.GetBytes(json, toGjsonPath(path))
	if !result.Exists() {
		return "", fmt.Errorf("path not found: %s", path)
	}
	if result.Type == gjson.Null {
		return "null", nil
	}
	return result.String(), nil
}

// toGjsonPath converts JSONPath syntax to gjson's:
//
//	$.users[0].name  ->  users.0.name
//	$['name']        ->  name
func toGjsonPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	path = strings.NewReplacer(`['`, ".", `']`, "", `["`, ".", `"]`, "").Replace(path)
	path = strings.NewReplacer("[", ".", "]", "").Replace(path)
	return strings.TrimPrefix(path, ".")
}
