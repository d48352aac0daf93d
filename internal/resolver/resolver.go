package resolver

import (
	"errors"
	"fmt"
	"strings"

	"go-civitai-fetch/internal/api"
	"go-civitai-fetch/internal/models"

	log "github.com/sirupsen/logrus"
)

// ErrUnresolvable is returned when every resolution strategy for a
// reference has been exhausted.
var ErrUnresolvable = errors.New("could not resolve reference to a download URL")

// Resolver turns classified references into canonical download URLs by
// orchestrating API lookups with deterministic fallbacks.
type Resolver struct {
	Client *api.Client
	// TypeFilter, when set, narrows name searches to one internal
	// model-type tag. It has no effect on ID lookups.
	TypeFilter string
}

// New creates a Resolver backed by the given API client.
func New(client *api.Client) *Resolver {
	return &Resolver{Client: client}
}

// ResolveRaw classifies a raw string and resolves it.
func (r *Resolver) ResolveRaw(raw string, nameHint string) (string, error) {
	return r.Resolve(Classify(raw), nameHint)
}

// Resolve produces a canonical download URL for a reference, trying each
// strategy in order and short-circuiting on the first success. Network
// failures on one path are treated as "not found" so the chain can
// continue; only exhaustion of every path yields ErrUnresolvable.
func (r *Resolver) Resolve(ref Reference, nameHint string) (string, error) {
	log.Debugf("Resolving reference %q classified as %s", ref.Original, ref.Kind)

	// Already canonical: return as-is, no network call.
	if ref.Kind == KindDownloadEndpoint {
		return ref.Original, nil
	}

	modelID := ref.ModelID
	preferredVersionID := 0

	if ref.Kind == KindVersionPage || ref.Kind == KindQueryVersion {
		version, err := r.Client.GetModelVersionByID(ref.VersionID)
		switch {
		case err != nil:
			log.WithError(err).Warnf("Could not fetch version info for ID %d", ref.VersionID)
		case version.DownloadUrl != "":
			log.Debugf("Resolved version ID %d directly to its download URL", ref.VersionID)
			return version.DownloadUrl, nil
		default:
			log.Warnf("No download URL on version %d, falling back to model lookup", ref.VersionID)
			if modelID == 0 {
				modelID = version.ModelId
			}
		}
		preferredVersionID = ref.VersionID
	}

	if modelID > 0 {
		model, err := r.Client.GetModelByID(modelID)
		if err != nil {
			log.WithError(err).Warnf("Could not fetch model info for ID %d", modelID)
		} else if url, ok := bestDownloadURL(model, preferredVersionID); ok {
			log.Debugf("Resolved model ID %d to download URL", modelID)
			return url, nil
		}
	}

	// Name search only applies to inputs nothing else could classify.
	if ref.Kind == KindUnknown && nameHint != "" {
		if url, ok := r.searchByName(nameHint); ok {
			return url, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrUnresolvable, ref.Original)
}

// searchByName queries the API for a model name and applies the file
// selection policy to the best match. An exact case-insensitive name
// match is preferred over the first search hit.
func (r *Resolver) searchByName(name string) (string, bool) {
	results, err := r.Client.SearchModelsByName(name, r.TypeFilter)
	if err != nil {
		log.WithError(err).Warnf("Name search failed for %q", name)
		return "", false
	}
	if len(results) == 0 {
		log.Debugf("Name search for %q returned no results", name)
		return "", false
	}

	chosen := results[0]
	for _, m := range results {
		if strings.EqualFold(m.Name, name) {
			chosen = m
			break
		}
	}

	if url, ok := bestDownloadURL(chosen, 0); ok {
		log.Debugf("Found download URL via search for %q (model %d)", name, chosen.ID)
		return url, true
	}
	return "", false
}

// bestDownloadURL extracts the best download URL from a model record.
//
// When preferredVersionID is set (a version-page reference fell back to
// the model lookup) that version is tried first; otherwise version index
// 0, the server's "latest", is used without re-sorting. Within the chosen
// version a direct downloadUrl wins. Failing that, files are scanned:
// a primary safetensor file ends the scan immediately, and otherwise the
// first safetensor file beats the first primary file beats the first file
// of any kind. A qualifying file synthesizes the canonical endpoint for
// the version ID.
func bestDownloadURL(model models.Model, preferredVersionID int) (string, bool) {
	if len(model.ModelVersions) == 0 {
		log.Warnf("No versions found on model %d", model.ID)
		return "", false
	}

	if preferredVersionID != 0 {
		for _, v := range model.ModelVersions {
			if v.ID == preferredVersionID && v.DownloadUrl != "" {
				return v.DownloadUrl, true
			}
		}
	}

	latest := model.ModelVersions[0]
	if latest.DownloadUrl != "" {
		return latest.DownloadUrl, true
	}

	var safetensorFile, primaryFile, anyFile *models.File
	for i := range latest.Files {
		f := &latest.Files[i]
		isSafetensor := strings.EqualFold(f.Metadata.Format, "safetensor")
		if isSafetensor {
			if safetensorFile == nil {
				safetensorFile = f
			}
			if f.Primary {
				safetensorFile = f
				break
			}
		} else if f.Primary && primaryFile == nil {
			primaryFile = f
		}
		if anyFile == nil {
			anyFile = f
		}
	}

	chosen := safetensorFile
	if chosen == nil {
		chosen = primaryFile
	}
	if chosen == nil {
		chosen = anyFile
	}
	if chosen == nil {
		log.Warnf("No files found on version %d of model %d", latest.ID, model.ID)
		return "", false
	}

	return api.DownloadURLForVersion(latest.ID), true
}
