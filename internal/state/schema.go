package state

// Timestamps are fixed-width UTC text (see TimeLayout) so that ORDER BY on
// the text column matches chronological order. Booleans are 0/1 integers.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS agents (
  skill_id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT,
  agent_type TEXT NOT NULL,
  schedule TEXT,
  requires_connection TEXT,
  agent_config TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS agent_activations (
  user_id TEXT NOT NULL,
  skill_id TEXT NOT NULL,
  enabled INTEGER NOT NULL DEFAULT 0,
  config TEXT,
  last_used_at TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  PRIMARY KEY (user_id, skill_id)
);

CREATE TABLE IF NOT EXISTS agent_runs (
  id TEXT PRIMARY KEY,
  agent_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  couple_id TEXT,
  status TEXT NOT NULL,
  result TEXT,
  error_message TEXT,
  state TEXT,
  started_at TEXT NOT NULL,
  completed_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_agent_runs_user_agent_started ON agent_runs(user_id, agent_id, started_at);

CREATE UNIQUE INDEX IF NOT EXISTS idx_agent_runs_one_running ON agent_runs(user_id, agent_id) WHERE status = 'running';

CREATE TABLE IF NOT EXISTS agent_state (
  user_id TEXT NOT NULL,
  agent_id TEXT NOT NULL,
  schema_version INTEGER NOT NULL,
  version INTEGER NOT NULL,
  state TEXT,
  run_id TEXT,
  updated_at TEXT NOT NULL,
  PRIMARY KEY (user_id, agent_id)
);

CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  agent_id TEXT,
  run_id TEXT,
  message_type TEXT NOT NULL,
  title TEXT,
  content TEXT NOT NULL,
  priority TEXT NOT NULL,
  is_read INTEGER NOT NULL DEFAULT 0,
  is_dismissed INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications(user_id, created_at);

CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  couple_id TEXT,
  summary TEXT NOT NULL,
  category TEXT,
  priority TEXT,
  completed INTEGER NOT NULL DEFAULT 0,
  due_date TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  completed_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);

CREATE TABLE IF NOT EXISTS couples (
  id TEXT PRIMARY KEY,
  partner_a TEXT NOT NULL,
  partner_b TEXT,
  created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS profiles (
  user_id TEXT PRIMARY KEY,
  display_name TEXT,
  phone_number TEXT,
  timezone TEXT
);

CREATE TABLE IF NOT EXISTS connections (
  user_id TEXT NOT NULL,
  provider TEXT NOT NULL,
  connected_at TEXT NOT NULL,
  PRIMARY KEY (user_id, provider)
);

CREATE TABLE IF NOT EXISTS health_readings (
  user_id TEXT NOT NULL,
  day TEXT NOT NULL,
  readiness_score REAL,
  sleep_score REAL,
  stress_score REAL,
  sleep_hours REAL,
  hrv REAL,
  PRIMARY KEY (user_id, day)
);

CREATE TABLE IF NOT EXISTS important_dates (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  couple_id TEXT,
  title TEXT NOT NULL,
  kind TEXT,
  date TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS memories (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  content TEXT NOT NULL,
  created_at TEXT NOT NULL
);
`
