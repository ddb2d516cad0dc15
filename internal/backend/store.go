package backend

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqliteDriver "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jeffo777/input-right/internal/lead"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// Tenant is a business the agent answers calls for.
type Tenant struct {
	ID            string    `json:"id"`
	BusinessName  string    `json:"business_name"`
	ContactName   string    `json:"contact_name,omitempty"`
	PhoneNumber   string    `json:"phone_number,omitempty"`
	Email         string    `json:"email,omitempty"`
	KnowledgeBase string    `json:"knowledge_base"`
	CreatedAt     time.Time `json:"created_at"`
}

type tenantRow struct {
	ID            string `gorm:"primaryKey;size:64"`
	BusinessName  string `gorm:"not null"`
	ContactName   string
	PhoneNumber   string
	Email         string
	KnowledgeBase string `gorm:"type:text"`
	CreatedAt     time.Time
}

func (tenantRow) TableName() string { return "tenants" }

func (r tenantRow) toTenant() Tenant {
	return Tenant{
		ID:            r.ID,
		BusinessName:  r.BusinessName,
		ContactName:   r.ContactName,
		PhoneNumber:   r.PhoneNumber,
		Email:         r.Email,
		KnowledgeBase: r.KnowledgeBase,
		CreatedAt:     r.CreatedAt,
	}
}

type leadRow struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	TenantID   string `gorm:"size:64;not null;index"`
	Name       string `gorm:"not null"`
	Inquiry    string `gorm:"type:text;not null"`
	Email      string `gorm:"not null"`
	Phone      string
	Status     string    `gorm:"size:32;not null;default:new"`
	CapturedAt time.Time `gorm:"not null;index"`
}

func (leadRow) TableName() string { return "leads" }

func (r leadRow) toRecord() lead.Record {
	return lead.Record{
		ID:         r.ID,
		TenantID:   r.TenantID,
		Name:       r.Name,
		Inquiry:    r.Inquiry,
		Email:      r.Email,
		Phone:      r.Phone,
		Status:     r.Status,
		CapturedAt: r.CapturedAt,
	}
}

// Store persists tenants and leads.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenStore opens the database and migrates the schema. driver is "sqlite"
// (the default) or "postgres".
func OpenStore(driver, dsn string) (*Store, error) {
	db, err := openGorm(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	if err := s.db.AutoMigrate(&tenantRow{}, &leadRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateTenant inserts t. An existing id yields ErrConflict.
func (s *Store) CreateTenant(ctx context.Context, t Tenant) (Tenant, error) {
	row := tenantRow{
		ID:            t.ID,
		BusinessName:  t.BusinessName,
		ContactName:   t.ContactName,
		PhoneNumber:   t.PhoneNumber,
		Email:         t.Email,
		KnowledgeBase: t.KnowledgeBase,
		CreatedAt:     s.now().UTC(),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&tenantRow{}).Where("id = ?", t.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("lookup tenant: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("tenant %s: %w", t.ID, ErrConflict)
		}
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("tenant %s: %w", t.ID, ErrConflict)
			}
			return fmt.Errorf("create tenant: %w", err)
		}
		return nil
	})
	if err != nil {
		return Tenant{}, err
	}
	return row.toTenant(), nil
}

// GetTenant loads a tenant by id.
func (s *Store) GetTenant(ctx context.Context, id string) (Tenant, error) {
	var row tenantRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Tenant{}, ErrNotFound
		}
		return Tenant{}, fmt.Errorf("get tenant: %w", err)
	}
	return row.toTenant(), nil
}

// CreateLead stores a new lead with status new for an existing tenant.
func (s *Store) CreateLead(ctx context.Context, tenantID string, d lead.Draft) (lead.Record, error) {
	row := leadRow{
		TenantID:   tenantID,
		Name:       d.Name,
		Inquiry:    d.Inquiry,
		Email:      d.Email,
		Phone:      d.Phone,
		Status:     lead.StatusNew,
		CapturedAt: s.now().UTC(),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&tenantRow{}).Where("id = ?", tenantID).Count(&count).Error; err != nil {
			return fmt.Errorf("lookup tenant: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("tenant %s: %w", tenantID, ErrNotFound)
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("create lead: %w", err)
		}
		return nil
	})
	if err != nil {
		return lead.Record{}, err
	}
	return row.toRecord(), nil
}

// ListLeads returns a tenant's leads, newest first.
func (s *Store) ListLeads(ctx context.Context, tenantID string) ([]lead.Record, error) {
	var rows []leadRow
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("captured_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	out := make([]lead.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toRecord())
	}
	return out, nil
}

func openGorm(driver, dsn string) (*gorm.DB, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" {
		driver = "sqlite"
	}
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		if driver != "sqlite" {
			return nil, fmt.Errorf("dsn is required for driver %q", driver)
		}
		dsn = "inputright.db"
	}

	cfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	}
	switch driver {
	case "sqlite":
		if err := ensureSQLiteDirectory(dsn); err != nil {
			return nil, err
		}
		return gorm.Open(sqliteDriver.Open(dsn), cfg)
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

func ensureSQLiteDirectory(dsn string) error {
	path, ok := sqliteFilePath(dsn)
	if !ok {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sqlite db dir: %w", err)
	}
	return nil
}

// sqliteFilePath returns the file behind dsn, or false for in-memory dsns.
func sqliteFilePath(dsn string) (string, bool) {
	raw := strings.TrimSpace(dsn)
	lower := strings.ToLower(raw)
	switch {
	case raw == "", lower == ":memory:", strings.HasPrefix(lower, "file::memory:"):
		return "", false
	case strings.HasPrefix(lower, "file:"):
		parsed, err := url.Parse(raw)
		if err != nil {
			return stripQuery(strings.TrimPrefix(raw, "file:")), true
		}
		if strings.EqualFold(parsed.Query().Get("mode"), "memory") {
			return "", false
		}
		if parsed.Path != "" {
			return parsed.Path, true
		}
		if parsed.Opaque != "" {
			return stripQuery(parsed.Opaque), true
		}
		return "", false
	default:
		return stripQuery(raw), true
	}
}

func stripQuery(v string) string {
	if i := strings.Index(v, "?"); i >= 0 {
		return v[:i]
	}
	return v
}
