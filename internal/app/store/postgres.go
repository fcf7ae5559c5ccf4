package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hzbot/internal/app/db"
	"hzbot/internal/app/platform"
	"hzbot/internal/pkg/randx"
)

// Postgres is the Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an already migrated pool (see db.NewPool).
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) loadIdentifiers(ctx context.Context, q pgx.Tx, userID int64) ([]platform.UserIdentifier, error) {
	var rows pgx.Rows
	var err error
	const query = `SELECT kind, value FROM user_identifiers WHERE user_id = $1 ORDER BY kind, value`
	if q != nil {
		rows, err = q.Query(ctx, query, userID)
	} else {
		rows, err = p.pool.Query(ctx, query, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("query user identifiers: %w", err)
	}

	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (platform.UserIdentifier, error) {
		var id platform.UserIdentifier
		var kind string
		err := row.Scan(&kind, &id.Value)
		id.Kind = platform.UserKind(kind)
		return id, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan user identifiers: %w", err)
	}
	return ids, nil
}

func (p *Postgres) GetUser(ctx context.Context, id platform.UserIdentifier) (*User, error) {
	var userID int64
	err := p.pool.QueryRow(ctx,
		`SELECT user_id FROM user_identifiers WHERE kind = $1 AND value = $2`,
		string(id.Kind), id.Value,
	).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by identifier: %w", err)
	}
	return p.GetUserByID(ctx, userID)
}

func (p *Postgres) GetUserByID(ctx context.Context, id int64) (*User, error) {
	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !exists {
		return nil, nil
	}

	ids, err := p.loadIdentifiers(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	return &User{ID: id, Identifiers: ids}, nil
}

func (p *Postgres) GetOrCreateUser(ctx context.Context, id platform.UserIdentifier) (*User, error) {
	if u, err := p.GetUser(ctx, id); err != nil || u != nil {
		return u, err
	}

	var user *User
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var userID int64
		if err := tx.QueryRow(ctx, `INSERT INTO users DEFAULT VALUES RETURNING id`).Scan(&userID); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO user_identifiers (user_id, kind, value) VALUES ($1, $2, $3)`,
			userID, string(id.Kind), id.Value,
		); err != nil {
			return err
		}

		user = &User{ID: userID, Identifiers: []platform.UserIdentifier{id}}
		return nil
	})

	// A concurrent dispatch registered the same identifier first.
	if db.IsUniqueViolation(err) {
		return p.GetUser(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (p *Postgres) MergeUsers(ctx context.Context, keepID, dropID int64) (*User, error) {
	if keepID == dropID {
		return p.GetUserByID(ctx, keepID)
	}

	var merged *User
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id FROM users WHERE id = ANY($1) FOR UPDATE`, []int64{keepID, dropID})
		if err != nil {
			return fmt.Errorf("lock users: %w", err)
		}
		locked, err := pgx.CollectRows(rows, pgx.RowTo[int64])
		if err != nil {
			return fmt.Errorf("lock users: %w", err)
		}
		if len(locked) != 2 {
			return ErrUserNotFound
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO user_data (user_id, name, value, public)
			SELECT $1, name, value, public FROM user_data WHERE user_id = $2
			ON CONFLICT (user_id, name) DO UPDATE SET value = EXCLUDED.value, public = EXCLUDED.public`,
			keepID, dropID,
		); err != nil {
			return fmt.Errorf("reparent user data: %w", err)
		}

		if _, err := tx.Exec(ctx, `UPDATE user_identifiers SET user_id = $1 WHERE user_id = $2`, keepID, dropID); err != nil {
			return fmt.Errorf("reparent identifiers: %w", err)
		}

		if _, err := tx.Exec(ctx, `UPDATE web_sessions SET user_id = $1 WHERE user_id = $2`, keepID, dropID); err != nil {
			return fmt.Errorf("reparent sessions: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, dropID); err != nil {
			return fmt.Errorf("delete merged user: %w", err)
		}

		ids, err := p.loadIdentifiers(ctx, tx, keepID)
		if err != nil {
			return err
		}
		merged = &User{ID: keepID, Identifiers: ids}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

func scanChannel(row pgx.Row) (*Channel, error) {
	var ch Channel
	var kind string
	if err := row.Scan(&ch.ID, &kind, &ch.Identifier.Channel); err != nil {
		return nil, err
	}
	ch.Identifier.Kind = platform.ChannelKind(kind)
	return &ch, nil
}

func (p *Postgres) GetChannel(ctx context.Context, id platform.ChannelIdentifier) (*Channel, error) {
	ch, err := scanChannel(p.pool.QueryRow(ctx,
		`SELECT id, platform, channel FROM channels WHERE platform = $1 AND channel = $2`,
		string(id.Kind), id.Channel,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get channel: %w", err)
	}
	return ch, nil
}

func (p *Postgres) GetChannelByID(ctx context.Context, id int64) (*Channel, error) {
	ch, err := scanChannel(p.pool.QueryRow(ctx, `SELECT id, platform, channel FROM channels WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get channel by id: %w", err)
	}
	return ch, nil
}

func (p *Postgres) GetOrCreateChannel(ctx context.Context, id platform.ChannelIdentifier) (*Channel, bool, error) {
	ch, err := scanChannel(p.pool.QueryRow(ctx, `
		INSERT INTO channels (platform, channel) VALUES ($1, $2)
		ON CONFLICT (platform, channel) DO NOTHING
		RETURNING id, platform, channel`,
		string(id.Kind), id.Channel,
	))
	if err == nil {
		return ch, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("create channel: %w", err)
	}

	ch, err = p.GetChannel(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if ch == nil {
		return nil, false, fmt.Errorf("channel %s vanished after insert conflict", id)
	}
	return ch, false, nil
}

func (p *Postgres) ListChannels(ctx context.Context) ([]Channel, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, platform, channel FROM channels ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}

	channels, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Channel, error) {
		ch, err := scanChannel(row)
		if err != nil {
			return Channel{}, err
		}
		return *ch, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan channels: %w", err)
	}
	return channels, nil
}

const commandColumns = `id, COALESCE(channel_id, 0), name, action, permissions, cooldown_ms`

func scanCommand(row pgx.Row) (*Command, error) {
	var c Command
	var perms *string
	var cooldownMs int64
	if err := row.Scan(&c.ID, &c.ChannelID, &c.Name, &c.Action, &perms, &cooldownMs); err != nil {
		return nil, err
	}
	if perms != nil {
		level, err := platform.ParsePermissions(*perms)
		if err != nil {
			return nil, err
		}
		c.Permissions = &level
	}
	c.Cooldown = time.Duration(cooldownMs) * time.Millisecond
	return &c, nil
}

// commandScope returns the predicate selecting the commands of channelID, bound to $1.
// Global commands have a NULL channel_id. Keeping the two predicates apart lets them use
// UNIQUE (channel_id, name) and commands_global_name_idx respectively.
func commandScope(channelID int64) string {
	if channelID == GlobalChannelID {
		return `channel_id IS NULL AND $1::BIGINT = 0`
	}
	return `channel_id = $1`
}

func (p *Postgres) GetCommand(ctx context.Context, channelID int64, name string) (*Command, error) {
	c, err := scanCommand(p.pool.QueryRow(ctx,
		`SELECT `+commandColumns+` FROM commands WHERE `+commandScope(channelID)+` AND name = $2`,
		channelID, name,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get command: %w", err)
	}
	return c, nil
}

func (p *Postgres) ListCommands(ctx context.Context, channelID int64) ([]Command, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+commandColumns+` FROM commands WHERE `+commandScope(channelID)+` ORDER BY name`,
		channelID,
	)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}

	commands, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Command, error) {
		c, err := scanCommand(row)
		if err != nil {
			return Command{}, err
		}
		return *c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan commands: %w", err)
	}
	return commands, nil
}

func (p *Postgres) AddCommand(ctx context.Context, cmd Command) (*Command, error) {
	if err := validateNewCommand(cmd); err != nil {
		return nil, err
	}

	var perms *string
	if cmd.Permissions != nil {
		s := cmd.Permissions.String()
		perms = &s
	}

	err := p.pool.QueryRow(ctx, `
		INSERT INTO commands (channel_id, name, action, permissions, cooldown_ms)
		VALUES (NULLIF($1, 0), $2, $3, $4, $5)
		RETURNING id`,
		cmd.ChannelID, cmd.Name, cmd.Action, perms, cmd.Cooldown.Milliseconds(),
	).Scan(&cmd.ID)
	if db.IsUniqueViolation(err) {
		return nil, ErrAlreadyExists
	}
	if err != nil {
		return nil, fmt.Errorf("add command: %w", err)
	}
	return &cmd, nil
}

func (p *Postgres) UpdateCommand(ctx context.Context, channelID int64, name, action string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE commands SET action = $3 WHERE `+commandScope(channelID)+` AND name = $2`,
		channelID, name, action,
	)
	if err != nil {
		return fmt.Errorf("update command: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidValue
	}
	return nil
}

func (p *Postgres) DeleteCommand(ctx context.Context, channelID int64, name string) error {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM commands WHERE `+commandScope(channelID)+` AND name = $2`,
		channelID, name,
	)
	if err != nil {
		return fmt.Errorf("delete command: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidValue
	}
	return nil
}

func (p *Postgres) GetFilters(ctx context.Context, channelID int64) ([]Filter, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, channel_id, regex, block_message, replacement FROM filters WHERE channel_id = $1 ORDER BY id`,
		channelID,
	)
	if err != nil {
		return nil, fmt.Errorf("get filters: %w", err)
	}

	filters, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Filter, error) {
		var f Filter
		err := row.Scan(&f.ID, &f.ChannelID, &f.Regex, &f.BlockMessage, &f.Replacement)
		return f, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan filters: %w", err)
	}
	return filters, nil
}

func (p *Postgres) AddFilter(ctx context.Context, f Filter) (*Filter, error) {
	err := p.pool.QueryRow(ctx,
		`INSERT INTO filters (channel_id, regex, block_message, replacement) VALUES ($1, $2, $3, $4) RETURNING id`,
		f.ChannelID, f.Regex, f.BlockMessage, f.Replacement,
	).Scan(&f.ID)
	if err != nil {
		return nil, fmt.Errorf("add filter: %w", err)
	}
	return &f, nil
}

func (p *Postgres) GetPrefix(ctx context.Context, channelID int64) (string, bool, error) {
	var prefix string
	err := p.pool.QueryRow(ctx, `SELECT prefix FROM prefixes WHERE channel_id = $1`, channelID).Scan(&prefix)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get prefix: %w", err)
	}
	return prefix, true, nil
}

func (p *Postgres) SetPrefix(ctx context.Context, channelID int64, prefix string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO prefixes (channel_id, prefix) VALUES ($1, $2)
		ON CONFLICT (channel_id) DO UPDATE SET prefix = EXCLUDED.prefix`,
		channelID, prefix,
	)
	if err != nil {
		return fmt.Errorf("set prefix: %w", err)
	}
	return nil
}

func (p *Postgres) GetUserData(ctx context.Context, userID int64, name string) (*UserData, error) {
	data := UserData{UserID: userID, Name: name}
	err := p.pool.QueryRow(ctx,
		`SELECT value, public FROM user_data WHERE user_id = $1 AND name = $2`, userID, name,
	).Scan(&data.Value, &data.Public)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user data: %w", err)
	}
	return &data, nil
}

func (p *Postgres) SetUserData(ctx context.Context, data UserData, overwrite bool) error {
	query := `INSERT INTO user_data (user_id, name, value, public) VALUES ($1, $2, $3, $4)`
	if overwrite {
		query += ` ON CONFLICT (user_id, name) DO UPDATE SET value = EXCLUDED.value, public = EXCLUDED.public`
	}

	_, err := p.pool.Exec(ctx, query, data.UserID, data.Name, data.Value, data.Public)
	switch {
	case db.IsUniqueViolation(err):
		return ErrAlreadyExists
	case db.IsForeignKeyViolation(err):
		return ErrUserNotFound
	case err != nil:
		return fmt.Errorf("set user data: %w", err)
	}
	return nil
}

func (p *Postgres) RemoveUserData(ctx context.Context, userID int64, name string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM user_data WHERE user_id = $1 AND name = $2`, userID, name); err != nil {
		return fmt.Errorf("remove user data: %w", err)
	}
	return nil
}

func (p *Postgres) GetWebSession(ctx context.Context, sessionID string) (*WebSession, error) {
	session := WebSession{SessionID: sessionID}
	err := p.pool.QueryRow(ctx,
		`SELECT user_id, username FROM web_sessions WHERE session_id = $1`, sessionID,
	).Scan(&session.UserID, &session.Username)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get web session: %w", err)
	}
	return &session, nil
}

func (p *Postgres) CreateWebSession(ctx context.Context, userID int64, username string) (*WebSession, error) {
	sessionID, err := randx.SessionID()
	if err != nil {
		return nil, err
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO web_sessions (session_id, user_id, username) VALUES ($1, $2, $3)`,
		sessionID, userID, username,
	)
	if db.IsForeignKeyViolation(err) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("create web session: %w", err)
	}
	return &WebSession{SessionID: sessionID, UserID: userID, Username: username}, nil
}
