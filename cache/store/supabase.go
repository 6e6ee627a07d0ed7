package store

import (
	"context"

	"github.com/supabase-community/supabase-go"
	"go.uber.org/zap"
)

// supabaseRows implements rowClient against a Supabase table.
//
// The postgrest query builders do not take a context argument; the context
// is implicitly used in the underlying HTTP requests made by the client.
type supabaseRows struct {
	client *supabase.Client
	table  string
}

// NewSharedSupabase builds a shared tier over a Supabase table. The table
// must expose the columns cache_key (unique), data, source and expires_at.
func NewSharedSupabase(client *supabase.Client, table, source string, breakerCfg BreakerConfig, logger *zap.Logger) *Shared {
	rows := &supabaseRows{client: client, table: table}
	return NewShared(rows, source, breakerCfg, logger)
}

func (s *supabaseRows) SelectByKey(ctx context.Context, key string) ([]cacheRow, error) {
	var rows []cacheRow
	_, err := s.client.From(s.table).
		Select("cache_key,data,source,expires_at", "", false).
		Eq("cache_key", key).
		ExecuteTo(&rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *supabaseRows) Insert(ctx context.Context, row cacheRow) error {
	_, _, err := s.client.From(s.table).
		Insert(row, false, "", "", "").
		Execute()
	return err
}

func (s *supabaseRows) DeleteByKey(ctx context.Context, key string) error {
	_, _, err := s.client.From(s.table).
		Delete("", "").
		Eq("cache_key", key).
		Execute()
	return err
}

func (s *supabaseRows) DeleteByPrefix(ctx context.Context, prefix string) error {
	_, _, err := s.client.From(s.table).
		Delete("", "").
		Like("cache_key", prefix+"%").
		Execute()
	return err
}

func (s *supabaseRows) List(ctx context.Context) ([]cacheRow, error) {
	var rows []cacheRow
	_, err := s.client.From(s.table).
		Select("cache_key,data,source,expires_at", "", false).
		ExecuteTo(&rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
