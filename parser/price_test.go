package parser

import "testing"

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantRaw   string
		wantValue float64
		wantNil   bool
	}{
		{
			name:      "rupee with thousands separator",
			input:     "₹1,299.00",
			wantRaw:   "₹1,299.00",
			wantValue: 1299.00,
		},
		{
			name:      "indian grouping",
			input:     "Rs. 2,50,000",
			wantRaw:   "Rs. 2,50,000",
			wantValue: 250000,
		},
		{
			name:      "plain number",
			input:     "450",
			wantRaw:   "450",
			wantValue: 450,
		},
		{
			name:      "surrounding whitespace",
			input:     "  ₹99.50\n",
			wantRaw:   "₹99.50",
			wantValue: 99.50,
		},
		{
			name:    "out of stock placeholder",
			input:   "Out of stock",
			wantRaw: "Out of stock",
			wantNil: true,
		},
		{
			name:    "empty",
			input:   "",
			wantRaw: "",
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, value := ParsePrice(tt.input)
			if raw != tt.wantRaw {
				t.Errorf("raw = %q, want %q", raw, tt.wantRaw)
			}
			if tt.wantNil {
				if value != nil {
					t.Errorf("value = %v, want nil", *value)
				}
				return
			}
			if value == nil {
				t.Fatalf("value = nil, want %v", tt.wantValue)
			}
			if *value != tt.wantValue {
				t.Errorf("value = %v, want %v", *value, tt.wantValue)
			}
		})
	}
}
