package store

const schema = `
CREATE TABLE IF NOT EXISTS sweeps (
	run_id      TEXT PRIMARY KEY,
	created_at  TIMESTAMP NOT NULL,
	start_date  TEXT NOT NULL,
	end_date    TEXT NOT NULL,
	span_days   INTEGER NOT NULL,
	class_codes TEXT NOT NULL,
	total_cases INTEGER NOT NULL,
	queries     INTEGER NOT NULL,
	failures    TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS cases (
	run_id        TEXT NOT NULL REFERENCES sweeps(run_id) ON DELETE CASCADE,
	position      INTEGER NOT NULL,
	case_no       TEXT NOT NULL,
	county_no     INTEGER NOT NULL,
	county_name   TEXT NOT NULL,
	caption       TEXT NOT NULL,
	party_name    TEXT NOT NULL,
	status        TEXT NOT NULL,
	filing_date   TEXT,
	dob           TEXT,
	is_dob_sealed INTEGER NOT NULL,
	class_codes   TEXT NOT NULL,
	raw           TEXT NOT NULL,
	PRIMARY KEY (run_id, case_no, county_no)
);

CREATE INDEX IF NOT EXISTS idx_cases_position ON cases(run_id, position);

CREATE TABLE IF NOT EXISTS details (
	case_no    TEXT NOT NULL,
	county_no  INTEGER NOT NULL,
	run_id     TEXT,
	source     TEXT NOT NULL,
	error      TEXT NOT NULL,
	detail     TEXT,
	fetched_at TIMESTAMP NOT NULL,
	PRIMARY KEY (case_no, county_no)
);

CREATE TABLE IF NOT EXISTS parties (
	case_no       TEXT NOT NULL,
	county_no     INTEGER NOT NULL,
	position      INTEGER NOT NULL,
	county_name   TEXT NOT NULL,
	caption       TEXT NOT NULL,
	party_name    TEXT NOT NULL,
	party_type    TEXT NOT NULL,
	address       TEXT NOT NULL,
	dob           TEXT NOT NULL,
	is_dob_sealed INTEGER NOT NULL,
	role_status   TEXT NOT NULL,
	PRIMARY KEY (case_no, county_no, position),
	FOREIGN KEY (case_no, county_no) REFERENCES details(case_no, county_no) ON DELETE CASCADE
);
`
