package config

import "slices"

// IngestConfig is the snapshot of settings one ingestion run consumes.
// Slices are copied so the run cannot observe later changes to Config.
type IngestConfig struct {
	Root             string
	OutputDir        string
	Basename         string
	Strategy         string
	ChunkSize        int
	MaxChunkSize     int
	MaxFileChars     int
	Concurrency      int
	ProgressInterval int
	SkipDirs         []string
	Extensions       []string
	Fields           []string
	Index            IndexConfig
}

// QueryConfig is the snapshot of settings one query consumes.
type QueryConfig struct {
	DataDir         string
	Basename        string
	NumResults      int
	MaxContextChars int
	SearchEf        int
}

// IngestConfig builds the run value for an ingestion.
func (c Config) IngestConfig() IngestConfig {
	return IngestConfig{
		Root:             c.Ingest.Root,
		OutputDir:        c.IngestOutputDir(),
		Basename:         c.Index.Basename,
		Strategy:         c.Ingest.Strategy,
		ChunkSize:        c.Ingest.ChunkSize,
		MaxChunkSize:     c.Ingest.MaxChunkSize,
		MaxFileChars:     c.Ingest.MaxFileChars,
		Concurrency:      c.Ingest.Concurrency,
		ProgressInterval: c.Ingest.ProgressInterval,
		SkipDirs:         slices.Clone(c.Ingest.SkipDirs),
		Extensions:       slices.Clone(c.Ingest.Extensions),
		Fields:           slices.Clone(c.Ingest.Fields),
		Index:            c.Index,
	}
}

// QueryConfig builds the run value for a query.
func (c Config) QueryConfig() QueryConfig {
	return QueryConfig{
		DataDir:         c.Query.DataDir,
		Basename:        c.Index.Basename,
		NumResults:      c.Query.NumResults,
		MaxContextChars: c.Query.MaxContextChars,
		SearchEf:        c.Index.EfSearch,
	}
}
