package models

type (
	// Config holds the application's configuration settings.
	Config struct {
		SavePath       string            `toml:"SavePath" json:"SavePath"`
		CatalogDir     string            `toml:"CatalogDir" json:"CatalogDir"`
		DatabasePath   string            `toml:"DatabasePath" json:"DatabasePath"`
		IndexPath      string            `toml:"IndexPath" json:"IndexPath"`
		LogLevel       string            `toml:"LogLevel" json:"LogLevel"`
		LogFormat      string            `toml:"LogFormat" json:"LogFormat"`
		APIKey         string            `toml:"ApiKey" json:"ApiKey"`
		ModelPaths     map[string]string `toml:"ModelPaths" json:"ModelPaths"`
		Download       DownloadConfig    `toml:"Download" json:"Download"`
		Torrent        TorrentConfig     `toml:"Torrent" json:"Torrent"`
		APITimeoutSec  int               `toml:"ApiTimeoutSec" json:"ApiTimeoutSec"`
		LogApiRequests bool              `toml:"LogApiRequests" json:"LogApiRequests"`
	}

	// DownloadConfig holds settings for the download engine.
	DownloadConfig struct {
		Concurrency   int  `toml:"Concurrency"`
		RetryAttempts int  `toml:"RetryAttempts"`
		TimeoutSec    int  `toml:"TimeoutSec"`
		SkipExisting  bool `toml:"SkipExisting"`
		VerifyHashes  bool `toml:"VerifyHashes"`
	}

	// TorrentConfig holds settings specific to the 'torrent' command.
	TorrentConfig struct {
		OutputDir     string   `toml:"OutputDir"`
		Trackers      []string `toml:"Trackers"`
		PieceLengthKB int      `toml:"PieceLengthKB"`
		Overwrite     bool     `toml:"Overwrite"`
		MagnetLinks   bool     `toml:"MagnetLinks"`
	}

	// Model is the record returned by /api/v1/models/{id}. Fields the API
	// omits unmarshal to their zero values; a missing ModelVersions slice
	// is a valid state, not an error.
	Model struct {
		Name          string         `json:"name"`
		Type          string         `json:"type"`
		Description   string         `json:"description"`
		Creator       Creator        `json:"creator"`
		Tags          []string       `json:"tags"`
		ModelVersions []ModelVersion `json:"modelVersions"`
		ID            int            `json:"id"`
		Nsfw          bool           `json:"nsfw"`
	}

	Creator struct {
		Username string `json:"username"`
		Image    string `json:"image"`
	}

	// ModelVersion is returned embedded in a Model and directly by
	// /api/v1/model-versions/{id}. The server orders a model's versions
	// newest first; index 0 is treated as "latest".
	ModelVersion struct {
		Name        string `json:"name"`
		CreatedAt   string `json:"createdAt"`
		PublishedAt string `json:"publishedAt"`
		BaseModel   string `json:"baseModel"`
		DownloadUrl string `json:"downloadUrl"`
		Files       []File `json:"files"`
		ID          int    `json:"id"`
		ModelId     int    `json:"modelId"`
	}

	File struct {
		Name        string   `json:"name"`
		Type        string   `json:"type"`
		DownloadUrl string   `json:"downloadUrl"`
		Metadata    Metadata `json:"metadata"`
		Hashes      Hashes   `json:"hashes"`
		SizeKB      float64  `json:"sizeKB"`
		ID          int      `json:"id"`
		Primary     bool     `json:"primary"`
	}

	Metadata struct {
		Fp     string `json:"fp"`
		Size   string `json:"size"`
		Format string `json:"format"`
	}

	Hashes struct {
		AutoV2 string `json:"AutoV2"`
		SHA256 string `json:"SHA256"`
		CRC32  string `json:"CRC32"`
		BLAKE3 string `json:"BLAKE3"`
	}

	// SearchResponse is the body of /api/v1/models?query=...
	SearchResponse struct {
		Items    []Model            `json:"items"`
		Metadata PaginationMetadata `json:"metadata"`
	}

	PaginationMetadata struct {
		NextPage    string `json:"nextPage"`
		NextCursor  string `json:"nextCursor"`
		TotalItems  int    `json:"totalItems"`
		CurrentPage int    `json:"currentPage"`
		PageSize    int    `json:"pageSize"`
	}

	// HistoryEntry is the per-download record kept in the local history
	// database, keyed by model version ID.
	HistoryEntry struct {
		ModelName    string `json:"modelName"`
		ModelType    string `json:"modelType"`
		VersionName  string `json:"versionName"`
		Filename     string `json:"filename"`
		Folder       string `json:"folder"`
		URL          string `json:"url"`
		Status       string `json:"status"`
		ErrorDetails string `json:"errorDetails,omitempty"`
		Timestamp    int64  `json:"timestamp"`
		ModelID      int    `json:"modelId"`
		VersionID    int    `json:"versionId"`
	}
)

// History status constants
const (
	StatusDownloaded = "Downloaded"
	StatusSkipped    = "Skipped"
	StatusError      = "Error"
)
