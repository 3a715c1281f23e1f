package entitystore

import (
	"fmt"
	"strconv"
	"strings"
)

// VectorToString converts a float64 slice to the pgvector text format
// [1.0,2.0,3.0]. The same formatting is used for both storage and query
// parameters so comparisons are consistent.
func VectorToString(vector []float64) string {
	if len(vector) == 0 {
		return "[]"
	}

	var sb strings.Builder
	sb.WriteByte('[')
	for i, val := range vector {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(val, 'f', -1, 64))
	}
	sb.WriteByte(']')
	return sb.String()
}

// StringToVector parses the pgvector text format back into a float64 slice.
func StringToVector(vectorStr string) ([]float64, error) {
	if vectorStr == "" || vectorStr == "[]" {
		return []float64{}, nil
	}

	vectorStr = strings.Trim(vectorStr, "[]")
	if vectorStr == "" {
		return []float64{}, nil
	}

	parts := strings.Split(vectorStr, ",")
	vector := make([]float64, len(parts))
	for i, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid vector element %q: %w", part, err)
		}
		vector[i] = val
	}

	return vector, nil
}
