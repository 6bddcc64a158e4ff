package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/contentdb/data/db/entities.db"
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "/usr/local/var/contentdb/data/indices/bleve"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/contentdb/data/indices/vectors"
	}
	if cfg.Matrix.MaxRows == 0 {
		cfg.Matrix.MaxRows = 100000
	}
	if cfg.Matrix.TopTerms == 0 {
		cfg.Matrix.TopTerms = 100
	}
	if cfg.Matrix.IDField == "" {
		cfg.Matrix.IDField = "id"
	}
	for i := range cfg.Matrix.Fields {
		f := &cfg.Matrix.Fields[i]
		if f.Source == "" {
			f.Source = f.Name
		}
		if f.TopTerms == 0 {
			f.TopTerms = cfg.Matrix.TopTerms
		}
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Retrieval.DefaultLimit == 0 {
		cfg.Retrieval.DefaultLimit = 10
	}
	if cfg.Retrieval.MaxLimit == 0 {
		cfg.Retrieval.MaxLimit = 100
	}
	if cfg.Retrieval.SimilarTerms == 0 {
		cfg.Retrieval.SimilarTerms = 25
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".json", ".yaml", ".yml", ".xlsx", ".txt", ".md", ".pdf", ".docx", ".odt", ".rtf", ".pptx", ".odp", ".ods"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
