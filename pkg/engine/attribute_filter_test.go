package engine

import (
	"testing"
)

func TestAttributeFilter_EqualsOperator(t *testing.T) {
	proc, err := NewAttributeFilterProcessor(AttributeFilterConfig{
		Name:      "test",
		Attribute: "verb",
		Operator:  OpEquals,
		Value:     "GET",
	})
	if err != nil {
		t.Fatalf("Failed to create processor: %v", err)
	}

	tests := []struct {
		name     string
		input    string
		wantDrop bool
	}{
		{
			name:     "wire event match - drop",
			input:    `{"id":"1","detail":{"requestConfig":{"verb":"GET","path":"/buckets"}}}`,
			wantDrop: true,
		},
		{
			name:     "bare detail match - drop",
			input:    `{"requestConfig":{"verb":"GET"}}`,
			wantDrop: true,
		},
		{
			name:     "no match - pass",
			input:    `{"detail":{"requestConfig":{"verb":"POST"}}}`,
			wantDrop: false,
		},
		{
			name:     "case differs - pass (equals is exact)",
			input:    `{"requestConfig":{"verb":"get"}}`,
			wantDrop: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, drop, err := proc.Process(nil, []byte(tt.input))
			if err != nil {
				t.Errorf("Process() error = %v", err)
			}
			if drop != tt.wantDrop {
				t.Errorf("Process() drop = %v, want %v", drop, tt.wantDrop)
			}
		})
	}
}

func TestAttributeFilter_ContainsOperator(t *testing.T) {
	proc, err := NewAttributeFilterProcessor(AttributeFilterConfig{
		Name:      "skip-objects",
		Attribute: "path",
		Operator:  OpContains,
		Value:     "/object",
	})
	if err != nil {
		t.Fatalf("Failed to create processor: %v", err)
	}

	tests := []struct {
		name     string
		input    string
		wantDrop bool
	}{
		{
			name:     "object upload - drop",
			input:    `{"detail":{"requestConfig":{"verb":"POST","path":"/photos/object"}}}`,
			wantDrop: true,
		},
		{
			name:     "object delete - drop",
			input:    `{"requestConfig":{"verb":"DELETE","path":"/photos/object/cat.png"}}`,
			wantDrop: true,
		},
		{
			name:     "bucket create - pass",
			input:    `{"requestConfig":{"verb":"POST","path":"/bucket"}}`,
			wantDrop: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, drop, err := proc.Process(nil, []byte(tt.input))
			if err != nil {
				t.Errorf("Process() error = %v", err)
			}
			if drop != tt.wantDrop {
				t.Errorf("Process() drop = %v, want %v", drop, tt.wantDrop)
			}
		})
	}
}

func TestAttributeFilter_RegexOperator(t *testing.T) {
	proc, err := NewAttributeFilterProcessor(AttributeFilterConfig{
		Name:      "test",
		Attribute: "path",
		Operator:  OpRegex,
		Value:     "^/[a-z0-9-]+/rename$",
	})
	if err != nil {
		t.Fatalf("Failed to create processor: %v", err)
	}

	tests := []struct {
		name     string
		input    string
		wantDrop bool
	}{
		{
			name:     "rename - drop",
			input:    `{"requestConfig":{"verb":"POST","path":"/photos/rename"}}`,
			wantDrop: true,
		},
		{
			name:     "create - pass",
			input:    `{"requestConfig":{"verb":"POST","path":"/bucket"}}`,
			wantDrop: false,
		},
		{
			name:     "nested rename - pass",
			input:    `{"requestConfig":{"verb":"POST","path":"/a/photos/rename"}}`,
			wantDrop: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, drop, err := proc.Process(nil, []byte(tt.input))
			if err != nil {
				t.Errorf("Process() error = %v", err)
			}
			if drop != tt.wantDrop {
				t.Errorf("Process() drop = %v, want %v", drop, tt.wantDrop)
			}
		})
	}
}

func TestAttributeFilter_StatusCode(t *testing.T) {
	proc, err := NewAttributeFilterProcessor(AttributeFilterConfig{
		Name:      "test",
		Attribute: "status",
		Operator:  OpEquals,
		Value:     "409",
	})
	if err != nil {
		t.Fatalf("Failed to create processor: %v", err)
	}

	tests := []struct {
		name     string
		input    string
		wantDrop bool
	}{
		{
			name:     "numeric value match - drop",
			input:    `{"requestConfig":{"verb":"POST","status":409}}`,
			wantDrop: true,
		},
		{
			name:     "string value match - drop",
			input:    `{"detail":{"requestConfig":{"status":"409"}}}`,
			wantDrop: true,
		},
		{
			name:     "no match - pass",
			input:    `{"requestConfig":{"verb":"POST","status":200}}`,
			wantDrop: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, drop, err := proc.Process(nil, []byte(tt.input))
			if err != nil {
				t.Errorf("Process() error = %v", err)
			}
			if drop != tt.wantDrop {
				t.Errorf("Process() drop = %v, want %v", drop, tt.wantDrop)
			}
		})
	}
}

func TestAttributeFilter_ExplicitPath(t *testing.T) {
	proc, err := NewAttributeFilterProcessor(AttributeFilterConfig{
		Name:     "test",
		Path:     "detail/headers/hx.target",
		Operator: OpEquals,
		Value:    "#objects",
	})
	if err != nil {
		t.Fatalf("Failed to create processor: %v", err)
	}

	tests := []struct {
		name     string
		input    string
		wantDrop bool
	}{
		{
			name:     "explicit path match - drop",
			input:    `{"detail":{"headers":{"hx.target":"#objects"}}}`,
			wantDrop: true,
		},
		{
			name:     "explicit path no match - pass",
			input:    `{"detail":{"headers":{"hx.target":"#buckets"}}}`,
			wantDrop: false,
		},
		{
			name:     "path not found - pass",
			input:    `{"detail":{}}`,
			wantDrop: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, drop, err := proc.Process(nil, []byte(tt.input))
			if err != nil {
				t.Errorf("Process() error = %v", err)
			}
			if drop != tt.wantDrop {
				t.Errorf("Process() drop = %v, want %v", drop, tt.wantDrop)
			}
		})
	}
}

func TestAttributeFilter_GenericSearchPaths(t *testing.T) {
	proc, err := NewAttributeFilterProcessor(AttributeFilterConfig{
		Name:      "test",
		Attribute: "tenant",
		Operator:  OpEquals,
		Value:     "acme",
	})
	if err != nil {
		t.Fatalf("Failed to create processor: %v", err)
	}

	tests := []struct {
		name  string
		input string
	}{
		{name: "top level", input: `{"tenant":"acme"}`},
		{name: "in detail", input: `{"detail":{"tenant":"acme"}}`},
		{name: "in detail.requestConfig", input: `{"detail":{"requestConfig":{"tenant":"acme"}}}`},
		{name: "in bare requestConfig", input: `{"requestConfig":{"tenant":"acme"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, drop, err := proc.Process(nil, []byte(tt.input))
			if err != nil {
				t.Errorf("Process() error = %v", err)
			}
			if !drop {
				t.Errorf("Process() drop = false, want true")
			}
		})
	}
}

func TestAttributeFilter_NonJSONInput(t *testing.T) {
	proc, err := NewAttributeFilterProcessor(AttributeFilterConfig{
		Name:      "test",
		Attribute: "verb",
		Value:     "POST",
	})
	if err != nil {
		t.Fatalf("Failed to create processor: %v", err)
	}

	_, drop, err := proc.Process(nil, []byte("POST /bucket 200"))
	if err != nil {
		t.Errorf("Process() error = %v", err)
	}
	if drop {
		t.Error("Expected non-JSON input to pass through (fail-open)")
	}
}

func TestAttributeFilter_InvalidConfig(t *testing.T) {
	cases := []AttributeFilterConfig{
		{Name: "neither", Operator: OpEquals, Value: "x"},
		{Name: "both", Attribute: "verb", Path: "a/b", Value: "x"},
		{Name: "bad regex", Attribute: "path", Operator: OpRegex, Value: "[invalid"},
		{Name: "bad operator", Attribute: "path", Operator: "startsWith", Value: "/"},
	}

	for _, cfg := range cases {
		t.Run(cfg.Name, func(t *testing.T) {
			if _, err := NewAttributeFilterProcessor(cfg); err == nil {
				t.Errorf("Expected error for %s config", cfg.Name)
			}
		})
	}
}

func TestConvertToGjsonPath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "detail/requestConfig/verb", expected: "detail.requestConfig.verb"},
		{input: "detail/headers/hx.target", expected: "detail.headers.hx\\.target"},
		{input: "simple", expected: "simple"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := convertToGjsonPath(tt.input); result != tt.expected {
				t.Errorf("convertToGjsonPath(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
