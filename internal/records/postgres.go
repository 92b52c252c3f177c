package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/regdesk/regdesk/pkg/models"
)

// PostgresConfig holds connection pool settings for the record table.
type PostgresConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPostgresConfig returns the default pool settings.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// PostgresStore implements Store on a Postgres-compatible record table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStoreFromDSN opens and pings the record table.
func NewPostgresStoreFromDSN(dsn string, config *PostgresConfig) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultPostgresConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close releases database resources.
func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const recordColumns = `
	billing_request_id, parent_full_name, parent_phone, parent_email, parent_dob,
	parent_address, relationship, player_full_name, player_dob, player_gender,
	medical_notes, player_address, player_phone, player_email, team, age_group,
	season, preferred_payment_day, monthly_amount, signing_fee_paid,
	mandate_authorised, subscription_activated, payment_id, mandate_id,
	subscription_id, interim_subscription_id, interim_start, interim_end,
	sibling_discount_applied, payment_months, kit_size, shirt_number, kit_type,
	photo_url, played_last_season, registration_status, conversation_json,
	payment_confirmed_at, created_at, updated_at`

func (s *PostgresStore) Get(ctx context.Context, billingRequestID string) (*models.RegistrationRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM registrations WHERE billing_request_id = $1`, billingRequestID)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return record, nil
}

func (s *PostgresStore) Save(ctx context.Context, r *models.RegistrationRecord) error {
	months, err := json.Marshal(r.PaymentMonths)
	if err != nil {
		return fmt.Errorf("marshal payment months: %w", err)
	}
	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO registrations (`+recordColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
		        $21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33,$34,$35,$36,$37,$38,$39,$40)
		ON CONFLICT (billing_request_id) DO UPDATE SET
			parent_full_name = EXCLUDED.parent_full_name,
			parent_phone = EXCLUDED.parent_phone,
			parent_email = EXCLUDED.parent_email,
			parent_dob = EXCLUDED.parent_dob,
			parent_address = EXCLUDED.parent_address,
			relationship = EXCLUDED.relationship,
			player_full_name = EXCLUDED.player_full_name,
			player_dob = EXCLUDED.player_dob,
			player_gender = EXCLUDED.player_gender,
			medical_notes = EXCLUDED.medical_notes,
			player_address = EXCLUDED.player_address,
			player_phone = EXCLUDED.player_phone,
			player_email = EXCLUDED.player_email,
			team = EXCLUDED.team,
			age_group = EXCLUDED.age_group,
			season = EXCLUDED.season,
			preferred_payment_day = EXCLUDED.preferred_payment_day,
			monthly_amount = EXCLUDED.monthly_amount,
			signing_fee_paid = EXCLUDED.signing_fee_paid,
			mandate_authorised = EXCLUDED.mandate_authorised,
			subscription_activated = EXCLUDED.subscription_activated,
			payment_id = EXCLUDED.payment_id,
			mandate_id = EXCLUDED.mandate_id,
			subscription_id = EXCLUDED.subscription_id,
			interim_subscription_id = EXCLUDED.interim_subscription_id,
			interim_start = EXCLUDED.interim_start,
			interim_end = EXCLUDED.interim_end,
			sibling_discount_applied = EXCLUDED.sibling_discount_applied,
			payment_months = EXCLUDED.payment_months,
			kit_size = EXCLUDED.kit_size,
			shirt_number = EXCLUDED.shirt_number,
			kit_type = EXCLUDED.kit_type,
			photo_url = EXCLUDED.photo_url,
			played_last_season = EXCLUDED.played_last_season,
			registration_status = EXCLUDED.registration_status,
			conversation_json = EXCLUDED.conversation_json,
			payment_confirmed_at = EXCLUDED.payment_confirmed_at,
			updated_at = EXCLUDED.updated_at
	`,
		r.BillingRequestID, r.ParentFullName, r.ParentPhone, r.ParentEmail, r.ParentDOB,
		r.ParentAddress, r.Relationship, r.PlayerFullName, r.PlayerDOB, r.PlayerGender,
		r.MedicalNotes, r.PlayerAddress, r.PlayerPhone, r.PlayerEmail, r.Team, r.AgeGroup,
		r.Season, r.PreferredPaymentDay, r.MonthlyAmount, string(r.SigningFeePaid),
		string(r.MandateAuthorised), string(r.SubscriptionActive), r.PaymentID, r.MandateID,
		r.SubscriptionID, r.InterimSubID, r.InterimStart, r.InterimEnd,
		string(r.SiblingDiscount), months, r.KitSize, r.ShirtNumber, r.KitType,
		r.PhotoURL, string(r.PlayedLastSeason), string(r.Status), r.ConversationJSON,
		nullTime(r.PaymentConfirmedAt), orNow(r.CreatedAt, now), now,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) FindByParentChild(ctx context.Context, parentName, childName string) (*models.RegistrationRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM registrations
		WHERE LOWER(parent_full_name) = LOWER($1) AND LOWER(player_full_name) = LOWER($2)
		ORDER BY updated_at DESC
		LIMIT 1
	`, parentName, childName)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return record, nil
}

func (s *PostgresStore) FindActiveSiblings(ctx context.Context, parentFullName, playerLastName, excludeBillingRequestID string) ([]*models.RegistrationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM registrations
		WHERE LOWER(parent_full_name) = LOWER($1)
		  AND LOWER(split_part(player_full_name, ' ', array_length(string_to_array(player_full_name, ' '), 1))) = LOWER($2)
		  AND billing_request_id <> $3
		  AND registration_status = 'active'
	`, parentFullName, playerLastName, excludeBillingRequestID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []*models.RegistrationRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}

func (s *PostgresStore) TeamExists(ctx context.Context, team, ageGroup string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM teams WHERE LOWER(name) = LOWER($1) AND LOWER(age_group) = LOWER($2)
	`, team, ageGroup).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return count > 0, nil
}

func (s *PostgresStore) KitNeeded(ctx context.Context, team, ageGroup string) (bool, error) {
	var required bool
	err := s.db.QueryRowContext(ctx, `
		SELECT kit_required FROM teams WHERE LOWER(name) = LOWER($1) AND LOWER(age_group) = LOWER($2)
	`, team, ageGroup).Scan(&required)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return required, nil
}

func (s *PostgresStore) ShirtNumberConflicts(ctx context.Context, team, ageGroup string, number int) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM registrations
		WHERE LOWER(team) = LOWER($1) AND LOWER(age_group) = LOWER($2) AND shirt_number = $3
	`, team, ageGroup, number).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return count, nil
}

func (s *PostgresStore) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.RegistrationRecord, error) {
	var (
		r             models.RegistrationRecord
		signingFee    string
		mandate       string
		subscription  string
		sibling       string
		played        string
		status        string
		months        []byte
		paymentTime   sql.NullTime
	)
	err := row.Scan(
		&r.BillingRequestID, &r.ParentFullName, &r.ParentPhone, &r.ParentEmail, &r.ParentDOB,
		&r.ParentAddress, &r.Relationship, &r.PlayerFullName, &r.PlayerDOB, &r.PlayerGender,
		&r.MedicalNotes, &r.PlayerAddress, &r.PlayerPhone, &r.PlayerEmail, &r.Team, &r.AgeGroup,
		&r.Season, &r.PreferredPaymentDay, &r.MonthlyAmount, &signingFee,
		&mandate, &subscription, &r.PaymentID, &r.MandateID,
		&r.SubscriptionID, &r.InterimSubID, &r.InterimStart, &r.InterimEnd,
		&sibling, &months, &r.KitSize, &r.ShirtNumber, &r.KitType,
		&r.PhotoURL, &played, &status, &r.ConversationJSON,
		&paymentTime, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.SigningFeePaid = models.Flag(signingFee)
	r.MandateAuthorised = models.Flag(mandate)
	r.SubscriptionActive = models.Flag(subscription)
	r.SiblingDiscount = models.Flag(sibling)
	r.PlayedLastSeason = models.Flag(played)
	r.Status = models.RegistrationStatus(status)
	if paymentTime.Valid {
		r.PaymentConfirmedAt = paymentTime.Time
	}
	if len(months) > 0 {
		if err := json.Unmarshal(months, &r.PaymentMonths); err != nil {
			return nil, fmt.Errorf("unmarshal payment months: %w", err)
		}
	}
	return &r, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func orNow(t, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t
}
