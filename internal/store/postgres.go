package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"liveboard/pkg/wire"
)

// Postgres persists records and frames through a pgx connection pool.
// Geometry-heavy columns (points) are stored as JSON text, matching the wire
// form clients already exchange.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database and verifies the connection.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() { p.pool.Close() }

func (p *Postgres) LoadObjects(ctx context.Context, boardID string) ([]wire.BoardObject, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, type, x, y, width, height, rotation, color, text, z_index,
		       created_by, updated_at, points, start_object_id, end_object_id
		FROM board_objects WHERE board_id = $1`, boardID)
	if err != nil {
		return nil, fmt.Errorf("loading objects: %w", err)
	}
	defer rows.Close()

	var objects []wire.BoardObject
	for rows.Next() {
		var (
			obj            wire.BoardObject
			createdBy      *string
			points         *string
			startID, endID *string
		)
		if err := rows.Scan(&obj.ID, &obj.Type, &obj.X, &obj.Y, &obj.Width, &obj.Height,
			&obj.Rotation, &obj.Color, &obj.Text, &obj.ZIndex,
			&createdBy, &obj.UpdatedAt, &points, &startID, &endID); err != nil {
			return nil, fmt.Errorf("scanning object row: %w", err)
		}
		obj.BoardID = boardID
		if createdBy != nil {
			obj.CreatedBy = *createdBy
		}
		if startID != nil {
			obj.StartObjectID = *startID
		}
		if endID != nil {
			obj.EndObjectID = *endID
		}
		if points != nil && *points != "" {
			var pts wire.Points
			if err := json.Unmarshal([]byte(*points), &pts); err == nil {
				obj.Points = pts
			}
		}
		objects = append(objects, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading objects: %w", err)
	}
	return objects, nil
}

func (p *Postgres) UpsertObject(ctx context.Context, boardID string, obj wire.BoardObject) error {
	var points *string
	if len(obj.Points) > 0 {
		data, err := json.Marshal(obj.Points)
		if err != nil {
			return fmt.Errorf("encoding points: %w", err)
		}
		s := string(data)
		points = &s
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO board_objects
			(id, board_id, type, x, y, width, height, rotation, color, text,
			 z_index, created_by, updated_at, points, start_object_id, end_object_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NULLIF($12,''),$13,$14,NULLIF($15,''),NULLIF($16,''))
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type, x = EXCLUDED.x, y = EXCLUDED.y,
			width = EXCLUDED.width, height = EXCLUDED.height,
			rotation = EXCLUDED.rotation, color = EXCLUDED.color,
			text = EXCLUDED.text, z_index = EXCLUDED.z_index,
			updated_at = EXCLUDED.updated_at, points = EXCLUDED.points,
			start_object_id = EXCLUDED.start_object_id,
			end_object_id = EXCLUDED.end_object_id`,
		obj.ID, boardID, obj.Type, obj.X, obj.Y, obj.Width, obj.Height,
		obj.Rotation, obj.Color, obj.Text, obj.ZIndex, obj.CreatedBy,
		obj.UpdatedAt, points, obj.StartObjectID, obj.EndObjectID)
	if err != nil {
		return fmt.Errorf("upserting object %s: %w", obj.ID, err)
	}
	return nil
}

func (p *Postgres) DeleteObject(ctx context.Context, boardID, objectID string) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM board_objects WHERE board_id = $1 AND id = $2`, boardID, objectID)
	if err != nil {
		return fmt.Errorf("deleting object %s: %w", objectID, err)
	}
	return nil
}

func (p *Postgres) LoadFrames(ctx context.Context, boardID string) ([]wire.Frame, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, "index", label FROM board_frames
		WHERE board_id = $1 ORDER BY "index"`, boardID)
	if err != nil {
		return nil, fmt.Errorf("loading frames: %w", err)
	}
	defer rows.Close()

	var frames []wire.Frame
	for rows.Next() {
		var f wire.Frame
		if err := rows.Scan(&f.ID, &f.Index, &f.Label); err != nil {
			return nil, fmt.Errorf("scanning frame row: %w", err)
		}
		f.BoardID = boardID
		frames = append(frames, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading frames: %w", err)
	}
	return frames, nil
}

func (p *Postgres) UpsertFrame(ctx context.Context, boardID string, frame wire.Frame) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO board_frames (id, board_id, "index", label)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET "index" = EXCLUDED."index", label = EXCLUDED.label`,
		frame.ID, boardID, frame.Index, frame.Label)
	if err != nil {
		return fmt.Errorf("upserting frame %s: %w", frame.ID, err)
	}
	return nil
}

func (p *Postgres) DeleteFrame(ctx context.Context, boardID, frameID string) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM board_frames WHERE board_id = $1 AND id = $2`, boardID, frameID)
	if err != nil {
		return fmt.Errorf("deleting frame %s: %w", frameID, err)
	}
	return nil
}
