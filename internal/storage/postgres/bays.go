package postgres

import (
	"context"
	"fmt"

	"github.com/icodeuridevice/AICarServiceAgent/internal/db"
	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
)

func (s *Store) EnsureBays(ctx context.Context, ids []string) error {
	return s.db.WithTx(ctx, func(ctx context.Context) error {
		for _, id := range ids {
			if err := s.db.Exec(ctx, `INSERT INTO bays (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, id); err != nil {
				return fmt.Errorf("ensure bay %s: %w", id, err)
			}
		}
		return nil
	})
}

func (s *Store) ListBays(ctx context.Context) ([]domain.Bay, error) {
	rows, err := s.db.Query(ctx, `SELECT id, active FROM bays ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list bays: %w", err)
	}
	defer rows.Close()

	var out []domain.Bay
	for rows.Next() {
		var b domain.Bay
		if err := rows.Scan(&b.ID, &b.Active); err != nil {
			return nil, fmt.Errorf("scan bay: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) GetBay(ctx context.Context, id string) (domain.Bay, error) {
	b := domain.Bay{ID: id}
	if err := s.db.QueryRow(ctx, `SELECT active FROM bays WHERE id = $1`, id).Scan(&b.Active); err != nil {
		return domain.Bay{}, fmt.Errorf("bay %s: %w", id, db.WrapNotFound(err))
	}
	return b, nil
}

func (s *Store) SetBayActive(ctx context.Context, id string, active bool) error {
	n, err := s.db.ExecRows(ctx, `UPDATE bays SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set bay %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("bay %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
