package postgresql

// migrations returns the schema migrations keyed by version.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflows (
				id UUID PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				name TEXT NOT NULL,
				trigger_type TEXT NOT NULL,
				trigger_config JSONB NOT NULL DEFAULT '{}',
				steps JSONB NOT NULL DEFAULT '[]',
				enabled BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_workflows_tenant ON workflows (tenant_id);
			CREATE INDEX IF NOT EXISTS idx_workflows_trigger_type ON workflows (trigger_type) WHERE enabled;

			CREATE TABLE IF NOT EXISTS workflow_executions (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL REFERENCES workflows (id),
				tenant_id TEXT NOT NULL,
				status TEXT NOT NULL,
				current_step INTEGER NOT NULL DEFAULT 0,
				trigger_payload JSONB NOT NULL DEFAULT '{}',
				step_outputs JSONB NOT NULL DEFAULT '{}',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				wait_until TIMESTAMP WITH TIME ZONE,
				last_error TEXT
			);

			CREATE INDEX IF NOT EXISTS idx_executions_workflow ON workflow_executions (workflow_id, started_at DESC);
			CREATE INDEX IF NOT EXISTS idx_executions_waiting ON workflow_executions (wait_until) WHERE status = 'waiting';

			CREATE TABLE IF NOT EXISTS step_execution_records (
				id UUID PRIMARY KEY,
				execution_id UUID NOT NULL REFERENCES workflow_executions (id),
				step_index INTEGER NOT NULL,
				outcome TEXT NOT NULL,
				output JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_step_records_execution ON step_execution_records (execution_id, created_at);

			CREATE TABLE IF NOT EXISTS webhook_subscriptions (
				id UUID PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				url TEXT NOT NULL,
				event_types JSONB NOT NULL DEFAULT '[]',
				secret TEXT NOT NULL,
				active BOOLEAN NOT NULL DEFAULT TRUE,
				max_retries INTEGER NOT NULL DEFAULT 3,
				timeout_seconds INTEGER NOT NULL DEFAULT 30,
				allowed_ips JSONB NOT NULL DEFAULT '[]',
				headers JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_subscriptions_tenant ON webhook_subscriptions (tenant_id);

			CREATE TABLE IF NOT EXISTS webhook_events (
				id UUID PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				event_type TEXT NOT NULL,
				payload JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_events_tenant_type ON webhook_events (tenant_id, event_type, created_at DESC);

			CREATE TABLE IF NOT EXISTS delivery_attempts (
				id UUID PRIMARY KEY,
				subscription_id UUID NOT NULL REFERENCES webhook_subscriptions (id),
				event_id UUID NOT NULL REFERENCES webhook_events (id),
				attempt_number INTEGER NOT NULL,
				http_status INTEGER,
				success BOOLEAN NOT NULL,
				error TEXT,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				next_retry_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				UNIQUE (subscription_id, event_id, attempt_number)
			);

			CREATE INDEX IF NOT EXISTS idx_attempts_subscription ON delivery_attempts (subscription_id, created_at DESC);
			CREATE INDEX IF NOT EXISTS idx_attempts_due_retries ON delivery_attempts (next_retry_at) WHERE NOT success AND next_retry_at IS NOT NULL;
		`,
	}
}
