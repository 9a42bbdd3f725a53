package server

import (
	"errors"
	"net/url"
	"testing"
)

func TestParseBatchRequest(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{query: "", want: 1},
		{query: "count=", want: 1},
		{query: "count=1", want: 1},
		{query: "count=%2042%20", want: 42},
		{query: "count=100", want: 100},
		{query: "count=0", wantErr: true},
		{query: "count=-1", wantErr: true},
		{query: "count=101", wantErr: true},
		{query: "count=ten", wantErr: true},
		{query: "count=99999999999999999999", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatalf("ParseQuery: %v", err)
			}
			got, err := ParseBatchRequest(q, 100)
			if tt.wantErr {
				var perr *ParamError
				if !errors.As(err, &perr) {
					t.Fatalf("ParseBatchRequest(%q) error = %v, want *ParamError", tt.query, err)
				}
				if perr.Param != "count" {
					t.Fatalf("Param = %q", perr.Param)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBatchRequest(%q) error = %v", tt.query, err)
			}
			if got.Count != tt.want {
				t.Fatalf("Count = %d, want %d", got.Count, tt.want)
			}
		})
	}
}
