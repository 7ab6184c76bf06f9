package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"booking/models"

	"github.com/lib/pq"
)

const conversationsSchema = `
CREATE TABLE IF NOT EXISTS conversations (
    conversation_id   TEXT PRIMARY KEY,
    thread_id         TEXT NOT NULL,
    address_validated BOOLEAN NOT NULL DEFAULT FALSE,
    formatted_address TEXT,
    coordinates       FLOAT8[],
    place_id          TEXT,
    postal_code       TEXT,
    city              TEXT,
    state             TEXT,
    created_at        TIMESTAMPTZ NOT NULL
)`

// PostgresStore persists conversation states in a single table. Location
// columns stay NULL until the address is validated.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects and pings with a 5 second timeout. sslmode=disable is
// appended when the URI does not set sslmode.
func OpenPostgres(ctx context.Context, postgresURI string) (*sql.DB, error) {
	connStr := postgresURI
	if !strings.Contains(postgresURI, "sslmode=") {
		switch {
		case strings.Contains(postgresURI, "://") && strings.Contains(postgresURI, "?"):
			connStr += "&sslmode=disable"
		case strings.Contains(postgresURI, "://"):
			connStr += "?sslmode=disable"
		default:
			connStr += " sslmode=disable"
		}
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return db, nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, conversationsSchema); err != nil {
		return fmt.Errorf("create conversations table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Create(ctx context.Context, threadID string) (models.ConversationState, error) {
	state := newConversationState(threadID)
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO conversations (conversation_id, thread_id, address_validated, created_at)
        VALUES ($1, $2, FALSE, $3)
    `, state.ConversationID, state.ThreadID, state.CreatedAt)
	if err != nil {
		return models.ConversationState{}, fmt.Errorf("insert conversation: %w", err)
	}
	return state, nil
}

func (s *PostgresStore) Get(ctx context.Context, conversationID string) (models.ConversationState, error) {
	var (
		state                                           models.ConversationState
		formatted, placeID, postalCode, city, stateName sql.NullString
		coordinates                                     pq.Float64Array
	)
	err := s.db.QueryRowContext(ctx, `
        SELECT conversation_id, thread_id, address_validated, formatted_address,
               coordinates, place_id, postal_code, city, state, created_at
        FROM conversations
        WHERE conversation_id = $1
    `, conversationID).Scan(
		&state.ConversationID,
		&state.ThreadID,
		&state.AddressValidated,
		&formatted,
		&coordinates,
		&placeID,
		&postalCode,
		&city,
		&stateName,
		&state.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ConversationState{}, ErrUnknownConversation
	}
	if err != nil {
		return models.ConversationState{}, fmt.Errorf("select conversation: %w", err)
	}

	if state.AddressValidated {
		loc := models.LocationRecord{
			FormattedAddress: formatted.String,
			PlaceID:          placeID.String,
			PostalCode:       postalCode.String,
			City:             city.String,
			State:            stateName.String,
		}
		if len(coordinates) == 2 {
			loc.Coordinates = models.Coordinates{Lat: coordinates[0], Lng: coordinates[1]}
		}
		state.AddressData = &loc
	}
	return state, nil
}

func (s *PostgresStore) MarkValidated(ctx context.Context, conversationID string, location models.LocationRecord) error {
	coordinates := pq.Float64Array{location.Coordinates.Lat, location.Coordinates.Lng}
	res, err := s.db.ExecContext(ctx, `
        UPDATE conversations
        SET address_validated = TRUE,
            formatted_address = $2,
            coordinates = $3::float8[],
            place_id = $4,
            postal_code = $5,
            city = $6,
            state = $7
        WHERE conversation_id = $1
    `, conversationID, location.FormattedAddress, coordinates, location.PlaceID,
		location.PostalCode, location.City, location.State)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	if n == 0 {
		return ErrUnknownConversation
	}
	return nil
}

var _ ConversationStore = (*PostgresStore)(nil)
