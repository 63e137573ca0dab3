package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE graphs (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL DEFAULT '',
				definition JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE runs (
				execution_id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				current_node_id VARCHAR(255) NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				error_message TEXT NOT NULL DEFAULT '',
				state JSONB NOT NULL
			);

			CREATE INDEX idx_runs_workflow_id ON runs(workflow_id);
			CREATE INDEX idx_runs_status ON runs(status);
		`,
		2: `
			-- Approval gates and cooperative cancellation
			ALTER TABLE runs
				ADD COLUMN approval_id VARCHAR(255) NOT NULL DEFAULT '',
				ADD COLUMN cancel_requested BOOLEAN NOT NULL DEFAULT false;

			CREATE TABLE approvals (
				approval_id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL,
				workflow_id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				message TEXT NOT NULL DEFAULT '',
				user_id VARCHAR(255) NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'approved', 'rejected')),
				decided_by VARCHAR(255) NOT NULL DEFAULT '',
				comment TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				decided_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_approvals_execution_id ON approvals(execution_id);
			CREATE INDEX idx_approvals_status ON approvals(status);
		`,
	}
}
