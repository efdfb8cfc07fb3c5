package store

import "fmt"

// schemaTemplate is shared by both drivers; %[1]s is the timestamp type.
const schemaTemplate = `
CREATE TABLE IF NOT EXISTS work_templates (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	created_at %[1]s NOT NULL,
	updated_at %[1]s NOT NULL
);

CREATE TABLE IF NOT EXISTS template_stations (
	id TEXT PRIMARY KEY,
	template_id TEXT NOT NULL REFERENCES work_templates(id) ON DELETE CASCADE,
	customer_id TEXT,
	worker_id TEXT,
	station_order INTEGER NOT NULL DEFAULT 0,
	scheduled_time TEXT,
	created_at %[1]s NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_template_stations_template ON template_stations(template_id, station_order);

CREATE TABLE IF NOT EXISTS work_schedules (
	id TEXT PRIMARY KEY,
	template_id TEXT NOT NULL REFERENCES work_templates(id),
	schedule_date TEXT NOT NULL UNIQUE,
	created_at %[1]s NOT NULL,
	updated_at %[1]s NOT NULL
);

CREATE TABLE IF NOT EXISTS service_points (
	id TEXT PRIMARY KEY,
	customer_id TEXT NOT NULL,
	device_type TEXT NOT NULL DEFAULT '',
	scent_type TEXT NOT NULL DEFAULT '',
	refill_amount INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_service_points_customer ON service_points(customer_id);

CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	customer_id TEXT,
	one_time_customer_id TEXT,
	worker_id TEXT NOT NULL,
	scheduled_at %[1]s NOT NULL,
	status TEXT NOT NULL,
	order_number INTEGER,
	notes TEXT,
	template_id TEXT,
	station_id TEXT,
	source_key TEXT UNIQUE,
	created_at %[1]s NOT NULL,
	updated_at %[1]s NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status_date ON jobs(status, scheduled_at);
CREATE INDEX IF NOT EXISTS idx_jobs_worker_date ON jobs(worker_id, scheduled_at);

CREATE TABLE IF NOT EXISTS job_service_points (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL REFERENCES jobs(id),
	service_point_id TEXT NOT NULL REFERENCES service_points(id),
	custom_refill_amount INTEGER,
	image_url TEXT
);
CREATE INDEX IF NOT EXISTS idx_job_service_points_job ON job_service_points(job_id);

CREATE TABLE IF NOT EXISTS installation_jobs (
	id TEXT PRIMARY KEY,
	worker_id TEXT NOT NULL,
	scheduled_at %[1]s NOT NULL,
	status TEXT NOT NULL,
	device_type TEXT,
	battery_type TEXT
);

CREATE TABLE IF NOT EXISTS special_jobs (
	id TEXT PRIMARY KEY,
	worker_id TEXT NOT NULL,
	scheduled_at %[1]s NOT NULL,
	status TEXT NOT NULL,
	device_type TEXT,
	battery_type TEXT
);

CREATE TABLE IF NOT EXISTS audit_logs (
	id TEXT PRIMARY KEY,
	actor TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id TEXT NOT NULL,
	metadata TEXT,
	payload_digest TEXT,
	ip TEXT,
	user_agent TEXT,
	created_at %[1]s NOT NULL
);
`

var (
	schemaPostgres = fmt.Sprintf(schemaTemplate, "TIMESTAMPTZ")
	schemaSQLite   = fmt.Sprintf(schemaTemplate, "DATETIME")
)
