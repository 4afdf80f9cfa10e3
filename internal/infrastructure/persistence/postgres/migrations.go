package postgres

// GetMigrations returns the embedded schema history.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_progression", SQL: migration001},
		{Version: 2, Name: "create_completed_books", SQL: migration002},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: STREAKS, XP, ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001 = `
CREATE TABLE IF NOT EXISTS streak_states (
    user_id            TEXT PRIMARY KEY,
    current_streak     INTEGER NOT NULL DEFAULT 0,
    longest_streak     INTEGER NOT NULL DEFAULT 0,
    last_active_date   DATE,
    total_days         INTEGER NOT NULL DEFAULT 0,
    grace_used         BOOLEAN NOT NULL DEFAULT FALSE,
    grace_last_used    DATE,
    prayer_current     INTEGER NOT NULL DEFAULT 0,
    prayer_longest     INTEGER NOT NULL DEFAULT 0,
    prayer_last_active DATE,
    updated_at         TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_streak CHECK (current_streak >= 0 AND longest_streak >= current_streak),
    CONSTRAINT valid_prayer CHECK (prayer_current >= 0 AND prayer_longest >= prayer_current),
    CONSTRAINT valid_total_days CHECK (total_days >= 0),
    CONSTRAINT valid_grace CHECK (grace_used = (grace_last_used IS NOT NULL))
);

CREATE TABLE IF NOT EXISTS xp_events (
    id         UUID PRIMARY KEY,
    user_id    TEXT NOT NULL,
    event_type TEXT NOT NULL,
    xp_earned  INTEGER NOT NULL,
    context    JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_xp_earned CHECK (xp_earned > 0)
);

CREATE INDEX IF NOT EXISTS idx_xp_events_user_created ON xp_events(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS xp_aggregates (
    user_id       TEXT PRIMARY KEY,
    total_xp      INTEGER NOT NULL DEFAULT 0,
    current_level INTEGER NOT NULL DEFAULT 1,
    updated_at    TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_total_xp CHECK (total_xp >= 0)
);

CREATE TABLE IF NOT EXISTS achievement_defs (
    id            BIGSERIAL PRIMARY KEY,
    key           TEXT NOT NULL UNIQUE,
    name          TEXT NOT NULL,
    description   TEXT NOT NULL DEFAULT '',
    xp_value      INTEGER NOT NULL DEFAULT 0,
    category      TEXT NOT NULL DEFAULT '',
    tier_required TEXT NOT NULL DEFAULT '',
    hidden        BOOLEAN NOT NULL DEFAULT FALSE,
    sort_order    INTEGER NOT NULL DEFAULT 0,
    criteria      JSONB NOT NULL,
    created_at    TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_xp_value CHECK (xp_value >= 0)
);

CREATE TABLE IF NOT EXISTS user_achievements (
    id             BIGSERIAL PRIMARY KEY,
    user_id        TEXT NOT NULL,
    achievement_id BIGINT NOT NULL REFERENCES achievement_defs(id),
    unlocked_at    TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT unique_user_achievement UNIQUE (user_id, achievement_id)
);

CREATE INDEX IF NOT EXISTS idx_user_achievements_user ON user_achievements(user_id);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: COMPLETED BOOKS
// ══════════════════════════════════════════════════════════════════════════════

const migration002 = `
CREATE TABLE IF NOT EXISTS completed_books (
    user_id      TEXT NOT NULL,
    book         TEXT NOT NULL,
    completed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, book)
);
`
