package resolver

import (
	"encoding/json"
	"testing"
)

func TestFlexSize(t *testing.T) {
	tests := []struct {
		json string
		want int64
	}{
		{`3000000`, 3000000},
		{`3000000.0`, 3000000},
		{`"1024"`, 1024},
		{`" 2048 "`, 2048},
		{`null`, 0},
		{`-5`, -5},
		{`"unknown"`, 0},
		{`1e6`, 1000000},
	}
	for _, tt := range tests {
		var s flexSize
		if err := json.Unmarshal([]byte(tt.json), &s); err != nil {
			t.Errorf("Unmarshal(%s) error = %v", tt.json, err)
			continue
		}
		if int64(s) != tt.want {
			t.Errorf("Unmarshal(%s) = %d, want %d", tt.json, s, tt.want)
		}
	}
}
