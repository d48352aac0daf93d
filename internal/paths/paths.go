package paths

import (
	"path/filepath"
	"strings"

	"go-civitai-fetch/internal/helpers"
)

// FallbackDir is the destination used for model-type tags with no entry
// in the configured mapping and no "other" override.
const FallbackDir = "models/Other"

// ModelExtension is the fixed extension given to destination filenames
// guessed from catalog display names. Servers may override it via
// Content-Disposition at download time.
const ModelExtension = ".safetensors"

// DirForType maps an internal model-type tag to its configured relative
// destination directory, falling back to the "other" entry and then to
// FallbackDir for unrecognized tags.
func DirForType(modelPaths map[string]string, modelType string) string {
	tag := strings.ToLower(strings.TrimSpace(modelType))
	if dir, ok := modelPaths[tag]; ok && dir != "" {
		return dir
	}
	if dir, ok := modelPaths["other"]; ok && dir != "" {
		return dir
	}
	return FallbackDir
}

// Destination builds the guessed absolute destination path for a catalog
// entry: <savePath>/<type dir>/<slug(displayName)><ModelExtension>.
func Destination(savePath string, modelPaths map[string]string, modelType, displayName string) string {
	name := helpers.ConvertToSlug(displayName)
	if name == "" {
		name = "unnamed_model"
	}
	return filepath.Join(savePath, DirForType(modelPaths, modelType), name+ModelExtension)
}
