package database

// users, businesses, reservations and comments belong to the surrounding
// platform. They are created here only so the metric and access queries have
// something to read from in a fresh database.

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		rating DOUBLE PRECISION,
		is_admin BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS is_admin BOOLEAN NOT NULL DEFAULT FALSE`,
	`CREATE TABLE IF NOT EXISTS businesses (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		business_id BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		business_id BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS campaigns (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		start_date TIMESTAMPTZ NOT NULL,
		end_date TIMESTAMPTZ NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_single_use BOOLEAN NOT NULL DEFAULT FALSE,
		usage_duration_minutes INTEGER NOT NULL DEFAULT 10,
		rule_type TEXT NOT NULL DEFAULT 'static' CHECK (rule_type IN ('static', 'dynamic')),
		trigger_event TEXT NOT NULL DEFAULT 'none'
			CHECK (trigger_event IN ('none', 'registration', 'reservation', 'purchase')),
		criteria_json JSONB,
		rules_description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS campaign_businesses (
		campaign_id BIGINT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
		business_id BIGINT NOT NULL,
		PRIMARY KEY (campaign_id, business_id)
	)`,
	`CREATE TABLE IF NOT EXISTS campaign_assignments (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		campaign_id BIGINT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
		assigned_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ,
		is_used BOOLEAN NOT NULL DEFAULT FALSE,
		assigned_by_rule_engine BOOLEAN NOT NULL DEFAULT FALSE,
		qr_token TEXT UNIQUE,
		qr_expires_at TIMESTAMPTZ,
		UNIQUE (user_id, campaign_id)
	)`,
	`CREATE TABLE IF NOT EXISTS campaign_usages (
		id BIGSERIAL PRIMARY KEY,
		assignment_id BIGINT NOT NULL REFERENCES campaign_assignments(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL,
		business_id BIGINT NOT NULL,
		used_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rule_evaluation_logs (
		id BIGSERIAL PRIMARY KEY,
		run_id UUID NOT NULL,
		user_id BIGINT NOT NULL,
		campaign_id BIGINT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
		rule_result JSONB NOT NULL,
		eligible BOOLEAN NOT NULL,
		evaluated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS activities (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		business_id BIGINT,
		action_type TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_businesses_user_id ON businesses(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_user_id ON reservations(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_comments_user_id ON comments(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_campaigns_dynamic ON campaigns(rule_type, is_active)`,
	`CREATE INDEX IF NOT EXISTS idx_assignments_user_unused ON campaign_assignments(user_id, is_used)`,
	`CREATE INDEX IF NOT EXISTS idx_rule_logs_user_campaign ON rule_evaluation_logs(user_id, campaign_id)`,
	`CREATE INDEX IF NOT EXISTS idx_usages_user_id ON campaign_usages(user_id)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		rating REAL,
		is_admin BOOLEAN NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS businesses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		business_id INTEGER,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		business_id INTEGER,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS campaigns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		start_date DATETIME NOT NULL,
		end_date DATETIME NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		is_single_use BOOLEAN NOT NULL DEFAULT 0,
		usage_duration_minutes INTEGER NOT NULL DEFAULT 10,
		rule_type TEXT NOT NULL DEFAULT 'static' CHECK (rule_type IN ('static', 'dynamic')),
		trigger_event TEXT NOT NULL DEFAULT 'none'
			CHECK (trigger_event IN ('none', 'registration', 'reservation', 'purchase')),
		criteria_json TEXT,
		rules_description TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS campaign_businesses (
		campaign_id INTEGER NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
		business_id INTEGER NOT NULL,
		PRIMARY KEY (campaign_id, business_id)
	)`,
	`CREATE TABLE IF NOT EXISTS campaign_assignments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		campaign_id INTEGER NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
		assigned_at DATETIME NOT NULL,
		expires_at DATETIME,
		is_used BOOLEAN NOT NULL DEFAULT 0,
		assigned_by_rule_engine BOOLEAN NOT NULL DEFAULT 0,
		qr_token TEXT UNIQUE,
		qr_expires_at DATETIME,
		UNIQUE (user_id, campaign_id)
	)`,
	`CREATE TABLE IF NOT EXISTS campaign_usages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		assignment_id INTEGER NOT NULL REFERENCES campaign_assignments(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL,
		business_id INTEGER NOT NULL,
		used_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rule_evaluation_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		campaign_id INTEGER NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
		rule_result TEXT NOT NULL,
		eligible BOOLEAN NOT NULL,
		evaluated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS activities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		business_id INTEGER,
		action_type TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_businesses_user_id ON businesses(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_user_id ON reservations(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_comments_user_id ON comments(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_campaigns_dynamic ON campaigns(rule_type, is_active)`,
	`CREATE INDEX IF NOT EXISTS idx_assignments_user_unused ON campaign_assignments(user_id, is_used)`,
	`CREATE INDEX IF NOT EXISTS idx_rule_logs_user_campaign ON rule_evaluation_logs(user_id, campaign_id)`,
	`CREATE INDEX IF NOT EXISTS idx_usages_user_id ON campaign_usages(user_id)`,
}
