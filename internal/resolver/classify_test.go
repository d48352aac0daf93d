package resolver

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		kind      Kind
		modelID   int
		versionID int
	}{
		{
			name:      "download endpoint",
			input:     "https://civitai.com/api/download/models/555",
			kind:      KindDownloadEndpoint,
			versionID: 555,
		},
		{
			name:      "download endpoint with query",
			input:     "https://civitai.com/api/download/models/555?type=Model&format=SafeTensor",
			kind:      KindDownloadEndpoint,
			versionID: 555,
		},
		{
			name:      "version page",
			input:     "https://civitai.com/models/1234/some-model-name?modelVersionId=5678",
			kind:      KindVersionPage,
			modelID:   1234,
			versionID: 5678,
		},
		{
			name:    "model page with name segment",
			input:   "https://civitai.com/models/1234/some-model-name",
			kind:    KindModelPage,
			modelID: 1234,
		},
		{
			name:    "model page bare",
			input:   "https://civitai.com/models/1234",
			kind:    KindModelPage,
			modelID: 1234,
		},
		{
			name:    "bare id",
			input:   "42",
			kind:    KindBareID,
			modelID: 42,
		},
		{
			name:      "foreign url with version query param",
			input:     "https://example.com/share?modelVersionId=777",
			kind:      KindQueryVersion,
			versionID: 777,
		},
		{
			name:    "foreign url with model query param",
			input:   "https://example.com/share?modelId=888",
			kind:    KindQueryModel,
			modelID: 888,
		},
		{
			name:  "free text name",
			input: "Realistic Vision",
			kind:  KindUnknown,
		},
		{
			name:  "empty string",
			input: "",
			kind:  KindUnknown,
		},
		{
			name:  "whitespace only",
			input: "   ",
			kind:  KindUnknown,
		},
		{
			name:  "negative number",
			input: "-5",
			kind:  KindUnknown,
		},
		{
			name:      "surrounding whitespace trimmed",
			input:     "  https://civitai.com/api/download/models/9  ",
			kind:      KindDownloadEndpoint,
			versionID: 9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := Classify(tt.input)
			if ref.Kind != tt.kind {
				t.Errorf("Classify(%q).Kind = %s, want %s", tt.input, ref.Kind, tt.kind)
			}
			if ref.ModelID != tt.modelID {
				t.Errorf("Classify(%q).ModelID = %d, want %d", tt.input, ref.ModelID, tt.modelID)
			}
			if ref.VersionID != tt.versionID {
				t.Errorf("Classify(%q).VersionID = %d, want %d", tt.input, ref.VersionID, tt.versionID)
			}
		})
	}
}

// The version-page pattern must win over the model-page pattern for URLs
// matching both.
func TestClassifyPatternOrder(t *testing.T) {
	ref := Classify("https://civitai.com/models/10/name?modelVersionId=20")
	if ref.Kind != KindVersionPage {
		t.Fatalf("Kind = %s, want %s", ref.Kind, KindVersionPage)
	}
	if ref.ModelID != 10 || ref.VersionID != 20 {
		t.Errorf("IDs = (%d, %d), want (10, 20)", ref.ModelID, ref.VersionID)
	}
}

// Classification is total: arbitrary garbage degrades to KindUnknown.
func TestClassifyTotality(t *testing.T) {
	inputs := []string{
		"http://[::1]:namedport", // unparseable URL
		"https://civitai.com/models/notanumber",
		"models/123",
		"ftp://civitai.com/api/download/models/5",
		"\x00\x01\x02",
		"99999999999999999999999999", // overflows int
	}
	for _, input := range inputs {
		ref := Classify(input)
		if ref.Kind != KindUnknown {
			t.Errorf("Classify(%q).Kind = %s, want %s", input, ref.Kind, KindUnknown)
		}
	}
}

func TestIsNameLike(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"Realistic Vision", true},
		{"model-v2", true},
		{"42", false},
		{"https://civitai.com/models/42", false},
		{"http://example.com", false},
		{"", false},
		{"   ", false},
	}
	for _, tt := range tests {
		if got := IsNameLike(tt.input); got != tt.expected {
			t.Errorf("IsNameLike(%q) = %t, want %t", tt.input, got, tt.expected)
		}
	}
}
