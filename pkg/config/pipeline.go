package config

import "time"

// Pipeline holds the tunables for the ETL and backfill engine. It is built
// once in main from the environment and passed to each component at
// construction time; nothing below main reads the process environment.
type Pipeline struct {
	// StagingDir is where the disposable staging database files are created.
	// Empty means the OS temp directory.
	StagingDir string

	// BatchSize is the number of warehouse rows buffered per category before
	// a staging write.
	BatchSize int

	// TransferChunkSize is the number of staged rows moved per INSERT while
	// publishing to the operational store.
	TransferChunkSize int

	// RetentionDays is the maximum age of operational rows relative to the
	// processed date. Rows strictly older are purged.
	RetentionDays int

	// BackfillDelay is the pause between days in a sequential backfill, to
	// bound load on the warehouse.
	BackfillDelay time.Duration

	// BackfillChunkDays is the default chunk width for parallel backfills.
	BackfillChunkDays int

	// BackfillMaxParallel is the default concurrency bound for parallel
	// backfills.
	BackfillMaxParallel int
}

// DefaultPipeline returns the default pipeline tunables.
func DefaultPipeline() Pipeline {
	return Pipeline{
		BatchSize:           100000,
		TransferChunkSize:   10000,
		RetentionDays:       180,
		BackfillDelay:       2 * time.Second,
		BackfillChunkDays:   7,
		BackfillMaxParallel: 3,
	}
}

// PipelineFromEnv builds the pipeline configuration from the environment,
// falling back to defaults for anything unset.
func PipelineFromEnv() Pipeline {
	cfg := DefaultPipeline()
	cfg.StagingDir = GetEnv("ETL_STAGING_DIR", cfg.StagingDir)
	cfg.BatchSize = GetEnvInt("ETL_BATCH_SIZE", cfg.BatchSize)
	cfg.TransferChunkSize = GetEnvInt("ETL_TRANSFER_CHUNK_SIZE", cfg.TransferChunkSize)
	cfg.RetentionDays = GetEnvInt("ETL_RETENTION_DAYS", cfg.RetentionDays)
	cfg.BackfillDelay = time.Duration(GetEnvInt("BACKFILL_DELAY_SECONDS", int(cfg.BackfillDelay/time.Second))) * time.Second
	cfg.BackfillChunkDays = GetEnvInt("BACKFILL_CHUNK_DAYS", cfg.BackfillChunkDays)
	cfg.BackfillMaxParallel = GetEnvInt("BACKFILL_MAX_PARALLEL", cfg.BackfillMaxParallel)
	return cfg
}
