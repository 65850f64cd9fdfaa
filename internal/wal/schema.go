package wal

const schema = `
-- One row per not-yet-pushed review outcome, keyed by card direction.
-- A NULL state_json means the direction was undone back to "never reviewed".
CREATE TABLE IF NOT EXISTS wal_entries (
    deck TEXT NOT NULL,
    term TEXT NOT NULL,
    reverse INTEGER NOT NULL,
    state_json TEXT,
    recorded_at DATETIME NOT NULL,

    PRIMARY KEY(deck, term, reverse)
);
`
