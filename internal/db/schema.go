package db

// SchemaSQL contains the database schema initialization SQL.
// Field names match the dashboard wire contract.
const SchemaSQL = `
    -- ==========================================================================
    -- INDEXING JOB TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS indexing_job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS source_type ON indexing_job TYPE string;
    DEFINE FIELD IF NOT EXISTS source_url ON indexing_job TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON indexing_job TYPE string DEFAULT 'pending';
    DEFINE FIELD IF NOT EXISTS total_files ON indexing_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS processed_files ON indexing_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS failed_files ON indexing_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS current_file ON indexing_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS progress_percent ON indexing_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS started_at ON indexing_job TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS completed_at ON indexing_job TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS error_message ON indexing_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS metadata ON indexing_job TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS created_at ON indexing_job TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS job_status ON indexing_job FIELDS status;
    DEFINE INDEX IF NOT EXISTS job_started ON indexing_job FIELDS started_at;

    -- ==========================================================================
    -- QUERY LOG TABLE (write-once)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS query_log SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS query_text ON query_log TYPE string;
    DEFINE FIELD IF NOT EXISTS response_text ON query_log TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS sources ON query_log TYPE option<array<object>> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS response_time_ms ON query_log TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS timestamp ON query_log TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS client_type ON query_log TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS session_id ON query_log TYPE option<string>;

    DEFINE INDEX IF NOT EXISTS query_timestamp ON query_log FIELDS timestamp;
    DEFINE INDEX IF NOT EXISTS query_client ON query_log FIELDS client_type;

    -- ==========================================================================
    -- SYSTEM METRIC TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS system_metric SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS metric_name ON system_metric TYPE string;
    DEFINE FIELD IF NOT EXISTS metric_value ON system_metric TYPE float;
    DEFINE FIELD IF NOT EXISTS labels ON system_metric TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS timestamp ON system_metric TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS metric_timestamp ON system_metric FIELDS timestamp;
    DEFINE INDEX IF NOT EXISTS metric_name ON system_metric FIELDS metric_name;
`
