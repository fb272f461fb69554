package domain

import (
	"encoding/json"
	"testing"
)

func TestParseUnits(t *testing.T) {
	tests := []struct {
		name     string
		human    string
		decimals int32
		want     string
		wantErr  bool
	}{
		{"whole", "1000", 0, "1000", false},
		{"fraction", "1.5", 18, "1500000000000000000", false},
		{"smallest unit", "0.000001", 6, "1", false},
		{"too precise", "0.0000001", 6, "", true},
		{"garbage", "abc", 18, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUnits(tt.human, tt.decimals)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestAmount_MulBps(t *testing.T) {
	a, _ := ParseAmount("999999999999999999")
	if got := a.MulBps(8800).String(); got != "879999999999999999" {
		t.Errorf("expected 879999999999999999, got %s", got)
	}
	if got := NewAmount(1).MulBps(8800).String(); got != "0" {
		t.Errorf("expected truncation to 0, got %s", got)
	}
}

func TestAmount_JSONRoundTripsAsString(t *testing.T) {
	a, _ := ParseAmount("120000000000000001")
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"120000000000000001"` {
		t.Errorf("expected quoted string, got %s", data)
	}

	var back Amount
	if err := json.Unmarshal([]byte(`120000000000000001`), &back); err != nil {
		t.Fatalf("unmarshal bare number: %v", err)
	}
	if back.Cmp(a) != 0 {
		t.Errorf("expected %s, got %s", a, back)
	}
}

func TestAmount_ScanNumeric(t *testing.T) {
	var a Amount
	if err := a.Scan([]byte("880")); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if a.String() != "880" {
		t.Errorf("expected 880, got %s", a)
	}
	if err := a.Scan("60.0000"); err != nil {
		t.Fatalf("scan with scale: %v", err)
	}
	if a.String() != "60" {
		t.Errorf("expected 60, got %s", a)
	}
}

func TestAmount_ZeroValue(t *testing.T) {
	var a Amount
	if !a.IsZero() || a.String() != "0" {
		t.Errorf("zero value should be 0, got %s", a)
	}
	if got := a.Add(NewAmount(5)).String(); got != "5" {
		t.Errorf("expected 5, got %s", got)
	}
}
