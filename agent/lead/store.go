package lead

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/tanpawarit/leadflow-voice-agent/agent/contract"
)

var ErrDuplicatePhone = errors.New("lead with this phone already exists")

type DBConfig struct {
	DSN         string `envconfig:"DSN"`
	UniquePhone bool   `envconfig:"UNIQUE_PHONE" split_words:"true" default:"false"`
}

type leadRow struct {
	bun.BaseModel `bun:"table:leads,alias:l"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	Name      string    `bun:"name,notnull"`
	Phone     string    `bun:"phone,notnull"`
	Qualified bool      `bun:"qualified,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

// BunStore persists leads in Postgres.
type BunStore struct {
	db          *bun.DB
	uniquePhone bool
	now         func() time.Time
}

var _ contractx.LeadStore = (*BunStore)(nil)

// Open connects to Postgres using the pgdriver connector.
func Open(cfg DBConfig) (*bun.DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("db dsn is required")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

func NewBunStore(db *bun.DB, cfg DBConfig) *BunStore {
	if db == nil {
		panic("lead: bun db required")
	}
	return &BunStore{
		db:          db,
		uniquePhone: cfg.UniquePhone,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// EnsureSchema creates the leads table and, if configured, a unique phone index.
func (s *BunStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*leadRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("%w: create leads table: %v", contractx.ErrPersistence, err)
	}
	if !s.uniquePhone {
		return nil
	}
	_, err := s.db.NewCreateIndex().
		Model((*leadRow)(nil)).
		Index("leads_phone_key").
		Unique().
		IfNotExists().
		Column("phone").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: create phone index: %v", contractx.ErrPersistence, err)
	}
	return nil
}

func (s *BunStore) SaveLead(ctx context.Context, lead contractx.Lead) (contractx.LeadID, error) {
	lead, err := normalizeLead(lead)
	if err != nil {
		return "", err
	}

	row := &leadRow{
		ID:        uuid.New(),
		Name:      lead.Name,
		Phone:     lead.Phone,
		Qualified: lead.Qualified,
		CreatedAt: lead.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now()
	}

	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		var pgErr pgdriver.Error
		if errors.As(err, &pgErr) && pgErr.IntegrityViolation() {
			return "", fmt.Errorf("%w: %w", contractx.ErrPersistence, ErrDuplicatePhone)
		}
		return "", fmt.Errorf("%w: insert lead: %v", contractx.ErrPersistence, err)
	}
	return contractx.LeadID(row.ID.String()), nil
}

const minPhoneDigits = 7

// normalizeLead collapses whitespace in the name and reduces the phone to
// digits. The controller hands over locale-validated numbers; this only
// guards the table against formatting noise.
func normalizeLead(lead contractx.Lead) (contractx.Lead, error) {
	lead.Name = strings.Join(strings.Fields(lead.Name), " ")
	if lead.Name == "" {
		return lead, fmt.Errorf("%w: lead name is required", contractx.ErrValidation)
	}

	lead.Phone = strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, lead.Phone)
	if lead.Phone == "" {
		return lead, fmt.Errorf("%w: lead phone is required", contractx.ErrValidation)
	}
	if len(lead.Phone) < minPhoneDigits {
		return lead, fmt.Errorf("%w: %w: %d digits", contractx.ErrValidation, contractx.ErrInvalidPhone, len(lead.Phone))
	}
	return lead, nil
}

// MemoryStore keeps leads in process. Used when no DSN is configured and in tests.
type MemoryStore struct {
	mu          sync.RWMutex
	leads       map[contractx.LeadID]contractx.Lead
	uniquePhone bool
}

var _ contractx.LeadStore = (*MemoryStore)(nil)

func NewMemoryStore(uniquePhone bool) *MemoryStore {
	return &MemoryStore{
		leads:       make(map[contractx.LeadID]contractx.Lead),
		uniquePhone: uniquePhone,
	}
}

func (s *MemoryStore) SaveLead(_ context.Context, lead contractx.Lead) (contractx.LeadID, error) {
	lead, err := normalizeLead(lead)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.uniquePhone {
		for _, existing := range s.leads {
			if existing.Phone == lead.Phone {
				return "", fmt.Errorf("%w: %w", contractx.ErrPersistence, ErrDuplicatePhone)
			}
		}
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}
	id := contractx.LeadID(uuid.New().String())
	s.leads[id] = lead
	return id, nil
}

func (s *MemoryStore) Get(id contractx.LeadID) (contractx.Lead, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lead, ok := s.leads[id]
	return lead, ok
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.leads)
}
