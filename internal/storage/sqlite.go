package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"mangawatch/internal/locale"
	"mangawatch/internal/release"
	"mangawatch/internal/transport"
	logx "mangawatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("sqlite store opened", logx.String("path", cfg.Path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) TrackedItems(ctx context.Context) ([]release.TrackedItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, site, site_item_id, name, last_release FROM tracked_items ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []release.TrackedItem
	for rows.Next() {
		var it release.TrackedItem
		var site string
		if err := rows.Scan(&it.ID, &site, &it.Key.SiteItemID, &it.Name, &it.LastRelease); err != nil {
			return nil, err
		}
		it.Key.Site = release.SiteID(site)
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AddTrackedItem(ctx context.Context, item release.TrackedItem) (int64, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tracked_items(site, site_item_id, name, last_release) VALUES(?,?,?,?)
		 ON CONFLICT(site, site_item_id) DO UPDATE SET name=excluded.name`,
		string(item.Key.Site), item.Key.SiteItemID, item.Name, item.LastRelease)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM tracked_items WHERE site = ? AND site_item_id = ?`,
		string(item.Key.Site), item.Key.SiteItemID).Scan(&id)
	return id, err
}

func (s *sqliteStore) UpdateLastRelease(ctx context.Context, itemID int64, label string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tracked_items SET last_release = ? WHERE id = ?`, label, itemID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return err
}

func (s *sqliteStore) Subscriptions(ctx context.Context, itemID int64) (Subscriptions, error) {
	var subs Subscriptions

	rows, err := s.db.QueryContext(ctx,
		`SELECT server_id FROM server_alerts WHERE item_id = ? ORDER BY id`, itemID)
	if err != nil {
		return subs, err
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return subs, err
		}
		subs.Servers = append(subs.Servers, transport.ServerID(id))
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return subs, err
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx,
		`SELECT server_id, user_id FROM group_alerts WHERE item_id = ? ORDER BY id`, itemID)
	if err != nil {
		return subs, err
	}
	for rows.Next() {
		var srv, usr int64
		if err := rows.Scan(&srv, &usr); err != nil {
			rows.Close()
			return subs, err
		}
		subs.Group = append(subs.Group, GroupMember{
			Server: transport.ServerID(srv),
			User:   transport.UserID(usr),
		})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return subs, err
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx,
		`SELECT user_id FROM private_alerts WHERE item_id = ? ORDER BY id`, itemID)
	if err != nil {
		return subs, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return subs, err
		}
		subs.Private = append(subs.Private, transport.UserID(id))
	}
	return subs, rows.Err()
}

func (s *sqliteStore) AddServerSubscription(ctx context.Context, itemID int64, server transport.ServerID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO server_alerts(item_id, server_id) VALUES(?,?)
		 ON CONFLICT(item_id, server_id) DO NOTHING`,
		itemID, int64(server))
	return err
}

func (s *sqliteStore) AddGroupSubscription(ctx context.Context, itemID int64, server transport.ServerID, user transport.UserID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO group_alerts(item_id, server_id, user_id) VALUES(?,?,?)
		 ON CONFLICT(item_id, server_id, user_id) DO NOTHING`,
		itemID, int64(server), int64(user))
	return err
}

func (s *sqliteStore) AddPrivateSubscription(ctx context.Context, itemID int64, user transport.UserID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO private_alerts(item_id, user_id) VALUES(?,?)
		 ON CONFLICT(item_id, user_id) DO NOTHING`,
		itemID, int64(user))
	return err
}

func (s *sqliteStore) RemoveServerSubscriptions(ctx context.Context, server transport.ServerID) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM server_alerts WHERE server_id = ?`, int64(server)); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM group_alerts WHERE server_id = ?`, int64(server))
	return err
}

func (s *sqliteStore) ChannelBinding(ctx context.Context, server transport.ServerID) (transport.ChannelID, bool, error) {
	var ch int64
	err := s.db.QueryRowContext(ctx,
		`SELECT channel_id FROM server_channels WHERE server_id = ?`, int64(server)).Scan(&ch)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return transport.ChannelID(ch), true, nil
}

func (s *sqliteStore) SaveChannelBinding(ctx context.Context, server transport.ServerID, ch transport.ChannelID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO server_channels(server_id, channel_id) VALUES(?,?)
		 ON CONFLICT(server_id) DO UPDATE SET channel_id=excluded.channel_id`,
		int64(server), int64(ch))
	return err
}

func (s *sqliteStore) SetUserLocale(ctx context.Context, user transport.UserID, tag string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_locales(user_id, locale) VALUES(?,?)
		 ON CONFLICT(user_id) DO UPDATE SET locale=excluded.locale`,
		int64(user), tag)
	return err
}

func (s *sqliteStore) SetServerLocale(ctx context.Context, server transport.ServerID, tag string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO server_locales(server_id, locale) VALUES(?,?)
		 ON CONFLICT(server_id) DO UPDATE SET locale=excluded.locale`,
		int64(server), tag)
	return err
}

func (s *sqliteStore) LocaleSnapshot(ctx context.Context) (locale.Snapshot, error) {
	snap := locale.Snapshot{
		Users:   map[transport.UserID]string{},
		Servers: map[transport.ServerID]string{},
	}

	rows, err := s.db.QueryContext(ctx, `SELECT user_id, locale FROM user_locales`)
	if err != nil {
		return snap, err
	}
	for rows.Next() {
		var id int64
		var tag string
		if err := rows.Scan(&id, &tag); err != nil {
			rows.Close()
			return snap, err
		}
		snap.Users[transport.UserID(id)] = tag
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return snap, err
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT server_id, locale FROM server_locales`)
	if err != nil {
		return snap, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var tag string
		if err := rows.Scan(&id, &tag); err != nil {
			return snap, err
		}
		snap.Servers[transport.ServerID(id)] = tag
	}
	return snap, rows.Err()
}
