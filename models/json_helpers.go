package models

import (
	"encoding/json"
	"gorm.io/datatypes"
)

func ConvertToJSON(data interface{}) (datatypes.JSON, error) {
	bytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(bytes), nil
}

// ExtractJSONObject returns the first balanced top-level JSON object inside
// s. Model replies often wrap JSON in prose or code fences; this peels both
// away without attempting a full parse.
func ExtractJSONObject(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if start == -1 {
			if ch == '{' {
				start = i
				depth = 1
			}
			continue
		}
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}