package resolver

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies the shape of a raw model reference.
type Kind int

const (
	// KindDownloadEndpoint is an already-canonical download URL.
	KindDownloadEndpoint Kind = iota
	// KindVersionPage is a model page URL carrying a modelVersionId query
	// parameter.
	KindVersionPage
	// KindModelPage is a model page URL, with or without a trailing slash
	// or name segment.
	KindModelPage
	// KindBareID is a bare positive integer.
	KindBareID
	// KindQueryVersion is a URL whose only usable datum is a
	// modelVersionId query parameter.
	KindQueryVersion
	// KindQueryModel is a URL whose only usable datum is a modelId query
	// parameter.
	KindQueryModel
	// KindUnknown is anything else: free text, malformed URLs, empty
	// strings.
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindDownloadEndpoint:
		return "download_endpoint"
	case KindVersionPage:
		return "version_page"
	case KindModelPage:
		return "model_page"
	case KindBareID:
		return "bare_id"
	case KindQueryVersion:
		return "query_version"
	case KindQueryModel:
		return "query_model"
	default:
		return "unknown"
	}
}

// Reference is the classified form of a raw model locator. Exactly one
// Kind applies to any input; IDs not implied by the Kind are zero.
type Reference struct {
	Original  string
	Kind      Kind
	ModelID   int
	VersionID int
}

// URL patterns for the recognized Civitai reference shapes. Order
// matters: the most specific pattern must win, so the version-page
// pattern is tried before the general model-page one.
var (
	downloadEndpointRegex = regexp.MustCompile(`^https://civitai\.com/api/download/models/(\d+)`)
	versionPageRegex      = regexp.MustCompile(`^https://civitai\.com/models/(\d+)/.*\?modelVersionId=(\d+)`)
	modelPageRegex        = regexp.MustCompile(`^https://civitai\.com/models/(\d+)`)
	bareIDRegex           = regexp.MustCompile(`^\d+$`)
)

// Classify maps a raw string to a typed Reference. It is total and
// deterministic: malformed input degrades to KindUnknown, never an error.
func Classify(raw string) Reference {
	trimmed := strings.TrimSpace(raw)
	unknown := Reference{Original: trimmed, Kind: KindUnknown}

	if m := downloadEndpointRegex.FindStringSubmatch(trimmed); m != nil {
		id, err := strconv.Atoi(m[1])
		if err != nil {
			return unknown
		}
		return Reference{Original: trimmed, Kind: KindDownloadEndpoint, VersionID: id}
	}

	if m := versionPageRegex.FindStringSubmatch(trimmed); m != nil {
		modelID, err1 := strconv.Atoi(m[1])
		versionID, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			return unknown
		}
		return Reference{Original: trimmed, Kind: KindVersionPage, ModelID: modelID, VersionID: versionID}
	}

	if m := modelPageRegex.FindStringSubmatch(trimmed); m != nil {
		id, err := strconv.Atoi(m[1])
		if err != nil {
			return unknown
		}
		return Reference{Original: trimmed, Kind: KindModelPage, ModelID: id}
	}

	if bareIDRegex.MatchString(trimmed) {
		if id, err := strconv.Atoi(trimmed); err == nil {
			return Reference{Original: trimmed, Kind: KindBareID, ModelID: id}
		}
		return unknown
	}

	// None of the path patterns matched; a parseable URL may still carry
	// a usable ID in its query string.
	if parsed, err := url.Parse(trimmed); err == nil {
		query := parsed.Query()
		if v := query.Get("modelVersionId"); v != "" {
			if id, err := strconv.Atoi(v); err == nil {
				return Reference{Original: trimmed, Kind: KindQueryVersion, VersionID: id}
			}
		}
		if v := query.Get("modelId"); v != "" {
			if id, err := strconv.Atoi(v); err == nil {
				return Reference{Original: trimmed, Kind: KindQueryModel, ModelID: id}
			}
		}
	}

	return unknown
}

// IsNameLike reports whether a raw input reads as a human model name
// rather than a URL or a bare numeric ID.
func IsNameLike(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return false
	}
	return !strings.HasPrefix(trimmed, "http") && !bareIDRegex.MatchString(trimmed)
}
