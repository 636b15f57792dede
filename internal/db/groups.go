package db

import (
	"context"

	"github.com/susu3304/warikanbot/internal/settlement"
	"github.com/susu3304/warikanbot/internal/warikan"
)

const groupColumns = `id, guild_id, channel_id, organizer_id, name, base_currency, status, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (*warikan.Group, error) {
	var g warikan.Group
	if err := row.Scan(&g.ID, &g.GuildID, &g.ChannelID, &g.OrganizerID, &g.Name, &g.BaseCurrency, &g.Status, &g.CreatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}

func (db *DB) CreateGroup(ctx context.Context, g warikan.Group) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO warikan_groups (id, guild_id, channel_id, organizer_id, name, base_currency, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		g.ID, g.GuildID, g.ChannelID, g.OrganizerID, g.Name, g.BaseCurrency, g.Status, g.CreatedAt,
	)
	return mapError(err, nil)
}

func (db *DB) Group(ctx context.Context, id string) (*warikan.Group, error) {
	g, err := scanGroup(db.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM warikan_groups WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, warikan.ErrGroupNotFound)
	}
	return g, nil
}

// ActiveGroupByChannel returns the active group for the given channel, if any.
func (db *DB) ActiveGroupByChannel(ctx context.Context, channelID string) (*warikan.Group, error) {
	g, err := scanGroup(db.pool.QueryRow(ctx,
		`SELECT `+groupColumns+` FROM warikan_groups WHERE channel_id = $1 AND status = 'active' LIMIT 1`,
		channelID,
	))
	if err != nil {
		return nil, mapError(err, warikan.ErrNoActiveGroup)
	}
	return g, nil
}

// ListGroups returns the groups of a guild, newest first.
func (db *DB) ListGroups(ctx context.Context, guildID string) ([]warikan.Group, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+groupColumns+` FROM warikan_groups WHERE guild_id = $1 ORDER BY created_at DESC, id`,
		guildID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []warikan.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// CloseGroup sets the group status to closed.
func (db *DB) CloseGroup(ctx context.Context, id string) error {
	ct, err := db.pool.Exec(ctx,
		`UPDATE warikan_groups SET status = 'closed', closed_at = CURRENT_TIMESTAMP WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return warikan.ErrGroupNotFound
	}
	return nil
}

func (db *DB) SetBaseCurrency(ctx context.Context, groupID, code string) error {
	ct, err := db.pool.Exec(ctx, `UPDATE warikan_groups SET base_currency = $2 WHERE id = $1`, groupID, code)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return warikan.ErrGroupNotFound
	}
	return nil
}

// AddMember inserts a member or refreshes its name. xmax is zero only for
// freshly inserted rows.
func (db *DB) AddMember(ctx context.Context, groupID string, p settlement.Person) (bool, error) {
	var inserted bool
	err := db.pool.QueryRow(ctx,
		`INSERT INTO warikan_members (group_id, person_id, name)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (group_id, person_id) DO UPDATE
		 SET name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE warikan_members.name END
		 RETURNING (xmax = 0)`,
		groupID, p.ID, p.Name,
	).Scan(&inserted)
	if err != nil {
		return false, mapError(err, nil)
	}
	return inserted, nil
}

// Members returns the members of a group in join order.
func (db *DB) Members(ctx context.Context, groupID string) ([]settlement.Person, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT person_id, name FROM warikan_members WHERE group_id = $1 ORDER BY seq`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []settlement.Person
	for rows.Next() {
		var p settlement.Person
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (db *DB) SetRate(ctx context.Context, groupID, code string, rate float64) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO warikan_rates (group_id, currency, rate)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (group_id, currency) DO UPDATE SET rate = EXCLUDED.rate, updated_at = CURRENT_TIMESTAMP`,
		groupID, code, rate,
	)
	return mapError(err, nil)
}

func (db *DB) Rates(ctx context.Context, groupID string) (settlement.Rates, error) {
	rows, err := db.pool.Query(ctx, `SELECT currency, rate FROM warikan_rates WHERE group_id = $1`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := settlement.Rates{}
	for rows.Next() {
		var code string
		var rate float64
		if err := rows.Scan(&code, &rate); err != nil {
			return nil, err
		}
		out[code] = rate
	}
	return out, rows.Err()
}
