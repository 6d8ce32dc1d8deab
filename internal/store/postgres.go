package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/1001-digital/ponder-artifacts/internal/models"
)

// PostgresStore implements Store on top of a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres using the given DSN.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// GetToken returns the record for (collection, tokenId), or nil when absent.
func (s *PostgresStore) GetToken(ctx context.Context, collection, tokenID string) (*models.TokenRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT collection, token_id, standard,
		       COALESCE(token_uri, ''), COALESCE(name, ''), COALESCE(description, ''),
		       COALESCE(image, ''), COALESCE(animation_url, ''), raw_data, updated_at
		FROM token_artifacts
		WHERE collection = $1 AND token_id = $2
	`, collection, tokenID)

	var record models.TokenRecord
	var rawData []byte
	err := row.Scan(
		&record.Collection,
		&record.TokenID,
		&record.Standard,
		&record.TokenURI,
		&record.Name,
		&record.Description,
		&record.Image,
		&record.AnimationURL,
		&rawData,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read token record: %w", err)
	}

	if err := decodeRawData(rawData, &record.RawData); err != nil {
		return nil, err
	}
	return &record, nil
}

// UpsertToken fully replaces the row for the record's key, creating it when
// absent. Empty optional fields are stored as NULL.
func (s *PostgresStore) UpsertToken(ctx context.Context, record *models.TokenRecord) error {
	rawData, err := encodeRawData(record.RawData)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO token_artifacts (
			collection, token_id, standard, token_uri, name, description,
			image, animation_url, raw_data, updated_at
		) VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''),
		          NULLIF($7, ''), NULLIF($8, ''), $9, $10)
		ON CONFLICT (collection, token_id)
		DO UPDATE SET
			standard = EXCLUDED.standard,
			token_uri = EXCLUDED.token_uri,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			image = EXCLUDED.image,
			animation_url = EXCLUDED.animation_url,
			raw_data = EXCLUDED.raw_data,
			updated_at = EXCLUDED.updated_at
	`,
		record.Collection,
		record.TokenID,
		record.Standard,
		record.TokenURI,
		record.Name,
		record.Description,
		record.Image,
		record.AnimationURL,
		rawData,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert token record: %w", err)
	}
	return nil
}

// GetCollection returns the record for a collection address, or nil when absent.
func (s *PostgresStore) GetCollection(ctx context.Context, address string) (*models.CollectionRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT collection, standard,
		       COALESCE(name, ''), COALESCE(symbol, ''), COALESCE(owner, ''),
		       COALESCE(contract_uri, ''), COALESCE(description, ''), COALESCE(image, ''),
		       raw_data, updated_at
		FROM collection_artifacts
		WHERE collection = $1
	`, address)

	var record models.CollectionRecord
	var rawData []byte
	err := row.Scan(
		&record.Collection,
		&record.Standard,
		&record.Name,
		&record.Symbol,
		&record.Owner,
		&record.ContractURI,
		&record.Description,
		&record.Image,
		&rawData,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read collection record: %w", err)
	}

	if err := decodeRawData(rawData, &record.RawData); err != nil {
		return nil, err
	}
	return &record, nil
}

// UpsertCollection fully replaces the row for the record's address.
func (s *PostgresStore) UpsertCollection(ctx context.Context, record *models.CollectionRecord) error {
	rawData, err := encodeRawData(record.RawData)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO collection_artifacts (
			collection, standard, name, symbol, owner, contract_uri,
			description, image, raw_data, updated_at
		) VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''),
		          NULLIF($7, ''), NULLIF($8, ''), $9, $10)
		ON CONFLICT (collection)
		DO UPDATE SET
			standard = EXCLUDED.standard,
			name = EXCLUDED.name,
			symbol = EXCLUDED.symbol,
			owner = EXCLUDED.owner,
			contract_uri = EXCLUDED.contract_uri,
			description = EXCLUDED.description,
			image = EXCLUDED.image,
			raw_data = EXCLUDED.raw_data,
			updated_at = EXCLUDED.updated_at
	`,
		record.Collection,
		record.Standard,
		record.Name,
		record.Symbol,
		record.Owner,
		record.ContractURI,
		record.Description,
		record.Image,
		rawData,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert collection record: %w", err)
	}
	return nil
}

func encodeRawData(data map[string]interface{}) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal raw metadata: %w", err)
	}
	return encoded, nil
}

func decodeRawData(raw []byte, dest *map[string]interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("failed to unmarshal raw metadata: %w", err)
	}
	return nil
}
