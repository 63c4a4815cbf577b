package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jacobsoderblom/krypin/internal/model"
)

// Postgres is the database-backed store. It delegates concurrency to a
// pooled connection; the bigserial seq column provides the
// deterministic tiebreak for records sharing a last_updated timestamp.
type Postgres struct {
	pool *pgxpool.Pool
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS areas (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	parent UUID REFERENCES areas(id)
);

CREATE TABLE IF NOT EXISTS devices (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	adapter TEXT NOT NULL,
	manufacturer TEXT,
	model TEXT,
	sw_version TEXT,
	hw_version TEXT,
	area UUID REFERENCES areas(id),
	metadata JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS entities (
	id UUID PRIMARY KEY,
	device_id UUID NOT NULL REFERENCES devices(id),
	name TEXT NOT NULL,
	domain TEXT NOT NULL,
	icon TEXT,
	key TEXT,
	attributes JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS entity_states (
	seq BIGSERIAL PRIMARY KEY,
	entity_id UUID NOT NULL REFERENCES entities(id),
	value JSONB,
	attributes JSONB NOT NULL DEFAULT '{}',
	last_changed TIMESTAMPTZ NOT NULL,
	last_updated TIMESTAMPTZ NOT NULL,
	source TEXT
);

CREATE INDEX IF NOT EXISTS idx_entity_states_latest
	ON entity_states (entity_id, last_updated DESC);
`

// NewPostgres connects to the database at connURL and ensures the
// schema exists.
func NewPostgres(ctx context.Context, connURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Postgres{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Postgres) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, pgSchema)
	return err
}

// Close releases the connection pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

// mapWriteErr translates foreign-key violations into the storage
// sentinel so callers can distinguish bad references from engine
// faults.
func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return fmt.Errorf("%w: %s", ErrReferentialIntegrity, pgErr.Detail)
	}
	return err
}

func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func marshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (s *Postgres) ListAreas(ctx context.Context) ([]model.Area, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, parent FROM areas`)
	if err != nil {
		return nil, fmt.Errorf("list areas: %w", err)
	}
	defer rows.Close()
	var out []model.Area
	for rows.Next() {
		a, err := scanArea(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArea(row rowScanner) (model.Area, error) {
	var (
		a      model.Area
		id     string
		parent *string
	)
	if err := row.Scan(&id, &a.Name, &parent); err != nil {
		return model.Area{}, fmt.Errorf("scan area: %w", err)
	}
	parsed, err := model.ParseAreaID(id)
	if err != nil {
		return model.Area{}, fmt.Errorf("scan area id: %w", err)
	}
	a.ID = parsed
	if parent != nil {
		p, err := model.ParseAreaID(*parent)
		if err != nil {
			return model.Area{}, fmt.Errorf("scan area parent: %w", err)
		}
		a.Parent = &p
	}
	return a, nil
}

func (s *Postgres) UpsertArea(ctx context.Context, area model.Area) error {
	var parent *string
	if area.Parent != nil {
		p := area.Parent.String()
		parent = &p
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO areas (id, name, parent) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, parent = EXCLUDED.parent`,
		area.ID.String(), area.Name, parent)
	if err != nil {
		return fmt.Errorf("upsert area: %w", mapWriteErr(err))
	}
	return nil
}

func (s *Postgres) GetArea(ctx context.Context, id model.AreaID) (model.Area, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, name, parent FROM areas WHERE id = $1`, id.String())
	a, err := scanArea(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Area{}, ErrNotFound
	}
	return a, err
}

func (s *Postgres) ListDevices(ctx context.Context) ([]model.Device, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, adapter, manufacturer, model, sw_version, hw_version, area, metadata
		FROM devices`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()
	var out []model.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDevice(row rowScanner) (model.Device, error) {
	var (
		d                                         model.Device
		id                                        string
		manufacturer, mdl, swVersion, hwVersion   *string
		area                                      *string
		metadata                                  []byte
	)
	if err := row.Scan(&id, &d.Name, &d.Adapter, &manufacturer, &mdl, &swVersion, &hwVersion, &area, &metadata); err != nil {
		return model.Device{}, fmt.Errorf("scan device: %w", err)
	}
	parsed, err := model.ParseDeviceID(id)
	if err != nil {
		return model.Device{}, fmt.Errorf("scan device id: %w", err)
	}
	d.ID = parsed
	if manufacturer != nil {
		d.Manufacturer = *manufacturer
	}
	if mdl != nil {
		d.Model = *mdl
	}
	if swVersion != nil {
		d.SWVersion = *swVersion
	}
	if hwVersion != nil {
		d.HWVersion = *hwVersion
	}
	if area != nil {
		a, err := model.ParseAreaID(*area)
		if err != nil {
			return model.Device{}, fmt.Errorf("scan device area: %w", err)
		}
		d.Area = &a
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &d.Metadata); err != nil {
			return model.Device{}, fmt.Errorf("scan device metadata: %w", err)
		}
	}
	return d, nil
}

func (s *Postgres) UpsertDevice(ctx context.Context, device model.Device) error {
	metadata, err := marshalMap(device.Metadata)
	if err != nil {
		return fmt.Errorf("upsert device: encode metadata: %w", err)
	}
	var area *string
	if device.Area != nil {
		a := device.Area.String()
		area = &a
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO devices (id, name, adapter, manufacturer, model, sw_version, hw_version, area, metadata)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, adapter = EXCLUDED.adapter,
			manufacturer = EXCLUDED.manufacturer, model = EXCLUDED.model,
			sw_version = EXCLUDED.sw_version, hw_version = EXCLUDED.hw_version,
			area = EXCLUDED.area, metadata = EXCLUDED.metadata`,
		device.ID.String(), device.Name, device.Adapter,
		device.Manufacturer, device.Model, device.SWVersion, device.HWVersion,
		area, metadata)
	if err != nil {
		return fmt.Errorf("upsert device: %w", mapWriteErr(err))
	}
	return nil
}

func (s *Postgres) GetDevice(ctx context.Context, id model.DeviceID) (model.Device, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, adapter, manufacturer, model, sw_version, hw_version, area, metadata
		FROM devices WHERE id = $1`, id.String())
	d, err := scanDevice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Device{}, ErrNotFound
	}
	return d, err
}

func (s *Postgres) ListEntities(ctx context.Context) ([]model.Entity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, device_id, name, domain, icon, key, attributes FROM entities`)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()
	var out []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntity(row rowScanner) (model.Entity, error) {
	var (
		e          model.Entity
		id, device string
		domain     string
		icon, key  *string
		attributes []byte
	)
	if err := row.Scan(&id, &device, &e.Name, &domain, &icon, &key, &attributes); err != nil {
		return model.Entity{}, fmt.Errorf("scan entity: %w", err)
	}
	parsed, err := model.ParseEntityID(id)
	if err != nil {
		return model.Entity{}, fmt.Errorf("scan entity id: %w", err)
	}
	e.ID = parsed
	deviceID, err := model.ParseDeviceID(device)
	if err != nil {
		return model.Entity{}, fmt.Errorf("scan entity device id: %w", err)
	}
	e.DeviceID = deviceID
	e.Domain = model.EntityDomain(domain)
	if icon != nil {
		e.Icon = *icon
	}
	if key != nil {
		e.Key = *key
	}
	if len(attributes) > 0 {
		if err := json.Unmarshal(attributes, &e.Attributes); err != nil {
			return model.Entity{}, fmt.Errorf("scan entity attributes: %w", err)
		}
	}
	return e, nil
}

func (s *Postgres) UpsertEntity(ctx context.Context, entity model.Entity) error {
	attributes, err := marshalMap(entity.Attributes)
	if err != nil {
		return fmt.Errorf("upsert entity: encode attributes: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO entities (id, device_id, name, domain, icon, key, attributes)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)
		ON CONFLICT (id) DO UPDATE SET
			device_id = EXCLUDED.device_id, name = EXCLUDED.name,
			domain = EXCLUDED.domain, icon = EXCLUDED.icon,
			key = EXCLUDED.key, attributes = EXCLUDED.attributes`,
		entity.ID.String(), entity.DeviceID.String(), entity.Name, string(entity.Domain),
		entity.Icon, entity.Key, attributes)
	if err != nil {
		return fmt.Errorf("upsert entity: %w", mapWriteErr(err))
	}
	return nil
}

func (s *Postgres) GetEntity(ctx context.Context, id model.EntityID) (model.Entity, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, device_id, name, domain, icon, key, attributes
		FROM entities WHERE id = $1`, id.String())
	e, err := scanEntity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Entity{}, ErrNotFound
	}
	return e, err
}

func (s *Postgres) SetEntityState(ctx context.Context, state model.EntityState) error {
	value, err := marshalJSON(state.Value)
	if err != nil {
		return fmt.Errorf("set entity state: encode value: %w", err)
	}
	attributes, err := marshalMap(state.Attributes)
	if err != nil {
		return fmt.Errorf("set entity state: encode attributes: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO entity_states (entity_id, value, attributes, last_changed, last_updated, source)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))`,
		state.EntityID.String(), value, attributes,
		state.LastChanged.UTC(), state.LastUpdated.UTC(), state.Source)
	if err != nil {
		return fmt.Errorf("set entity state: %w", mapWriteErr(err))
	}
	return nil
}

func scanState(row rowScanner) (model.EntityState, error) {
	var (
		st         model.EntityState
		id         string
		value      []byte
		attributes []byte
		source     *string
	)
	if err := row.Scan(&id, &value, &attributes, &st.LastChanged, &st.LastUpdated, &source); err != nil {
		return model.EntityState{}, fmt.Errorf("scan entity state: %w", err)
	}
	parsed, err := model.ParseEntityID(id)
	if err != nil {
		return model.EntityState{}, fmt.Errorf("scan entity state id: %w", err)
	}
	st.EntityID = parsed
	if len(value) > 0 {
		if err := json.Unmarshal(value, &st.Value); err != nil {
			return model.EntityState{}, fmt.Errorf("scan entity state value: %w", err)
		}
	}
	if len(attributes) > 0 {
		if err := json.Unmarshal(attributes, &st.Attributes); err != nil {
			return model.EntityState{}, fmt.Errorf("scan entity state attributes: %w", err)
		}
	}
	if source != nil {
		st.Source = *source
	}
	return st, nil
}

func (s *Postgres) LatestEntityState(ctx context.Context, id model.EntityID) (model.EntityState, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT entity_id, value, attributes, last_changed, last_updated, source
		FROM entity_states WHERE entity_id = $1
		ORDER BY last_updated DESC, seq DESC LIMIT 1`, id.String())
	st, err := scanState(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.EntityState{}, ErrNotFound
	}
	return st, err
}

func (s *Postgres) EntityStateHistory(ctx context.Context, id model.EntityID, since *time.Time, limit int) ([]model.EntityState, error) {
	query := `
		SELECT entity_id, value, attributes, last_changed, last_updated, source
		FROM entity_states WHERE entity_id = $1`
	args := []any{id.String()}
	if since != nil {
		query += ` AND last_changed >= $2`
		args = append(args, since.UTC())
	}
	query += ` ORDER BY last_updated DESC, seq DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("entity state history: %w", err)
	}
	defer rows.Close()
	var out []model.EntityState
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
