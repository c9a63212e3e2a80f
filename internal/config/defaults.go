package config

// Defaults for the semantic block.
const (
	DefaultDataDir       = "/usr/local/var/clipsearch/data"
	DefaultModelURL      = "https://huggingface.co/onnx-community/embeddinggemma-300m-ONNX/resolve/main/onnx/model_quantized.onnx"
	DefaultMinModelSize  = 100 * 1024 * 1024
	DefaultMinSimilarity = 0.2
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = DefaultDataDir + "/db/history.db"
	}

	s := &cfg.Semantic
	if s.ModelPath == "" {
		s.ModelPath = DefaultDataDir + "/models/embeddinggemma-300m.onnx"
	}
	if s.ModelURL == "" {
		s.ModelURL = DefaultModelURL
	}
	if s.MinModelSizeBytes == 0 {
		s.MinModelSizeBytes = DefaultMinModelSize
	}
	if s.Dimensions == 0 {
		s.Dimensions = 256
	}
	if s.NativeDimensions == 0 {
		s.NativeDimensions = 768
	}
	if s.MaxTokens == 0 {
		s.MaxTokens = 512
	}
	if s.MaxItemsInMemory == 0 {
		s.MaxItemsInMemory = 50000
	}
	if s.BatchSize == 0 {
		s.BatchSize = 100
	}
	if s.ProgressInterval == 0 {
		s.ProgressInterval = 10
	}
	if s.DownloadChunkSize == 0 {
		s.DownloadChunkSize = 8192
	}
	if s.DownloadTimeoutSeconds == 0 {
		s.DownloadTimeoutSeconds = 30
	}
	if s.QueryCacheSize == 0 {
		s.QueryCacheSize = 1000
	}
	if s.DefaultLimit == 0 {
		s.DefaultLimit = 20
	}
	if s.MaxLimit == 0 {
		s.MaxLimit = 100
	}
	if len(s.ONNX.InputNames) == 0 {
		s.ONNX.InputNames = []string{"input_ids", "attention_mask"}
	}
	if s.ONNX.OutputName == "" {
		s.ONNX.OutputName = "sentence_embedding"
	}
}
