package resolver

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// flexSize decodes a byte count sent as a JSON number, a float, a numeric
// string, or null. Anything unusable decodes as 0, i.e. unknown.
type flexSize int64

func (s *flexSize) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == "" {
		*s = 0
		return nil
	}

	var num json.Number
	if strings.HasPrefix(raw, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		num = json.Number(strings.TrimSpace(str))
	} else {
		num = json.Number(raw)
	}

	if n, err := strconv.ParseInt(num.String(), 10, 64); err == nil {
		*s = flexSize(n)
		return nil
	}
	f, err := strconv.ParseFloat(num.String(), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > math.MaxInt64 {
		*s = 0
		return nil
	}
	*s = flexSize(f)
	return nil
}

func (s flexSize) String() string {
	return fmt.Sprintf("%d", int64(s))
}
