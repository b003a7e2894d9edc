package postgres

// Schema creates the tables used by the monitor when they do not exist.
const Schema = `
create table if not exists charger (
	id serial primary key,
	name varchar(50) not null default '',
	description text,
	ip_address varchar(50),
	mqtt_port integer default 1883,
	mqtt_user varchar(75),
	password text,
	rest_api_port integer default 5555
);

create table if not exists charging_controller (
	id varchar(64) primary key,
	charging_point_id bigint,
	charging_point_name varchar(256),
	parent_device_uid varchar(64),
	position integer,
	device_name varchar(256),
	firmware_version varchar(64),
	hardware_version varchar(64),
	charger_id integer not null references charger(id) on delete cascade
);

create table if not exists connection_status (
	charger_id integer primary key references charger(id) on delete cascade,
	mqtt_status boolean not null,
	rest_api_status boolean not null,
	updated_at timestamptz not null default now()
);

create table if not exists last_known_state (
	controller_id varchar(64) primary key,
	state varchar(16) not null check (state in ('connected', 'disconnected'))
);

create table if not exists charging_session (
	id bigserial primary key,
	controller_id varchar(64) not null references charging_controller(id) on delete cascade,
	start_timestamp timestamptz not null,
	start_real_power double precision not null,
	rfid_tag varchar(64),
	rfid_timestamp timestamptz,
	end_timestamp timestamptz,
	end_real_power double precision,
	consumption double precision,
	duration double precision
);

create unique index if not exists charging_session_one_open
	on charging_session (controller_id) where end_timestamp is null;
`
