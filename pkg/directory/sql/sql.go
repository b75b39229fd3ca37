// Package sql implements the directory gateway on a relational database
// via GORM. It supports SQLite for single-node deployments and PostgreSQL
// for shared ones; the schema is created automatically on startup.
package sql

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/emmdurin/georchestra-gateway/internal/logger"
	"github.com/emmdurin/georchestra-gateway/pkg/directory"
)

// DatabaseType defines the supported database backends.
type DatabaseType string

const (
	// DatabaseTypeSQLite uses SQLite (single-node, default).
	DatabaseTypeSQLite DatabaseType = "sqlite"

	// DatabaseTypePostgres uses PostgreSQL.
	DatabaseTypePostgres DatabaseType = "postgres"
)

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the path to the SQLite database file.
	// Default: $XDG_CONFIG_HOME/georchestra-gateway/directory.db
	Path string `mapstructure:"path" yaml:"path"`
}

// PostgresConfig contains PostgreSQL-specific configuration.
type PostgresConfig struct {
	Host         string `mapstructure:"host" yaml:"host"`
	Port         int    `mapstructure:"port" yaml:"port"`
	Database     string `mapstructure:"database" yaml:"database"`
	User         string `mapstructure:"user" yaml:"user"`
	Password     string `mapstructure:"password" yaml:"password"`
	SSLMode      string `mapstructure:"ssl_mode" yaml:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		c.Host, c.Port, c.User, c.Password, c.Database)
	if c.SSLMode != "" {
		dsn += fmt.Sprintf(" sslmode=%s", c.SSLMode)
	}
	return dsn
}

// Config contains the directory database configuration.
type Config struct {
	Type     DatabaseType   `mapstructure:"type" yaml:"type"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = DatabaseTypeSQLite
	}

	if c.Type == DatabaseTypeSQLite && c.SQLite.Path == "" {
		configDir := os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			homeDir, _ := os.UserHomeDir()
			configDir = filepath.Join(homeDir, ".config")
		}
		c.SQLite.Path = filepath.Join(configDir, "georchestra-gateway", "directory.db")
	}

	if c.Type == DatabaseTypePostgres {
		if c.Postgres.Port == 0 {
			c.Postgres.Port = 5432
		}
		if c.Postgres.SSLMode == "" {
			c.Postgres.SSLMode = "disable"
		}
		if c.Postgres.MaxOpenConns == 0 {
			c.Postgres.MaxOpenConns = 25
		}
		if c.Postgres.MaxIdleConns == 0 {
			c.Postgres.MaxIdleConns = 5
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Type {
	case DatabaseTypeSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case DatabaseTypePostgres:
		if c.Postgres.Host == "" {
			return fmt.Errorf("postgres host is required")
		}
		if c.Postgres.Database == "" {
			return fmt.Errorf("postgres database is required")
		}
		if c.Postgres.User == "" {
			return fmt.Errorf("postgres user is required")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Type)
	}
	return nil
}

// accountModel is the persisted account row. The unique indexes on
// username and email are the race detector for concurrent provisioning.
type accountModel struct {
	ID       string `gorm:"primaryKey"`
	Username string `gorm:"uniqueIndex;not null"`
	// Email is optional; absent values are stored as NULL so they never
	// collide on the unique index.
	Email            *string `gorm:"uniqueIndex"`
	FirstName        string
	LastName         string
	Organization     string
	OAuth2ProviderID string  `gorm:"index"`
	Pending          bool
	CreatedAt        time.Time

	Roles []*roleModel `gorm:"many2many:account_roles;"`
}

func (accountModel) TableName() string { return "accounts" }

// roleModel is the persisted role row, keyed by its unprefixed name.
type roleModel struct {
	ID          string `gorm:"primaryKey"`
	Name        string `gorm:"uniqueIndex;not null"`
	Description string
	CreatedAt   time.Time
}

func (roleModel) TableName() string { return "roles" }

// Directory is a GORM-backed directory gateway.
type Directory struct {
	db *gorm.DB
}

// New opens the database, runs the schema migration, and returns the
// directory gateway.
func New(config *Config) (*Directory, error) {
	if config == nil {
		config = &Config{}
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid directory database configuration: %w", err)
	}

	var dialector gorm.Dialector
	switch config.Type {
	case DatabaseTypeSQLite:
		if err := os.MkdirAll(filepath.Dir(config.SQLite.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		// WAL for concurrent readers, busy_timeout to ride out writer locks.
		dsn := config.SQLite.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)

	case DatabaseTypePostgres:
		dialector = postgres.Open(config.Postgres.DSN())

	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if config.Type == DatabaseTypePostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying database: %w", err)
		}
		sqlDB.SetMaxOpenConns(config.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(config.Postgres.MaxIdleConns)
	}

	if err := db.AutoMigrate(&accountModel{}, &roleModel{}); err != nil {
		return nil, fmt.Errorf("failed to run database migration: %w", err)
	}

	logger.Info("sql directory ready",
		logger.KeyBackend, "sql",
		"type", string(config.Type),
	)
	return &Directory{db: db}, nil
}

// DB returns the underlying GORM database connection, useful for tests.
func (d *Directory) DB() *gorm.DB {
	return d.db
}

// FindByUsername returns the account with the given username.
func (d *Directory) FindByUsername(ctx context.Context, username string) (*directory.Account, error) {
	return d.findAccount(ctx, "username = ?", username)
}

// FindByOAuth2ProviderID returns the account linked to the external
// provider subject.
func (d *Directory) FindByOAuth2ProviderID(ctx context.Context, providerID string) (*directory.Account, error) {
	return d.findAccount(ctx, "o_auth2_provider_id = ?", providerID)
}

func (d *Directory) findAccount(ctx context.Context, query string, arg any) (*directory.Account, error) {
	var model accountModel
	err := d.db.WithContext(ctx).Preload("Roles").Where(query, arg).First(&model).Error
	if err != nil {
		return nil, convertNotFoundError(err, directory.ErrAccountNotFound)
	}
	return accountFromModel(&model), nil
}

// InsertAccount creates a new account row. Unique-index violations map to
// the duplicate sentinels so concurrent provisioning of the same user is
// detected by the database itself.
func (d *Directory) InsertAccount(ctx context.Context, account *directory.Account) error {
	model := &accountModel{
		ID:               uuid.New().String(),
		Username:         account.Username,
		Email:            nullableString(account.Email),
		FirstName:        account.FirstName,
		LastName:         account.LastName,
		Organization:     account.Organization,
		OAuth2ProviderID: account.OAuth2ProviderID,
		Pending:          account.Pending,
		CreatedAt:        time.Now(),
	}
	if err := d.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueConstraintError(err) {
			if strings.Contains(err.Error(), "email") {
				return directory.ErrDuplicateEmail
			}
			return directory.ErrDuplicateUsername
		}
		return fmt.Errorf("inserting account %s: %w", account.Username, err)
	}
	return nil
}

// DeleteAccount removes the account and its role memberships.
func (d *Directory) DeleteAccount(ctx context.Context, username string) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model accountModel
		if err := tx.Where("username = ?", username).First(&model).Error; err != nil {
			return convertNotFoundError(err, directory.ErrAccountNotFound)
		}
		if err := tx.Model(&model).Association("Roles").Clear(); err != nil {
			return err
		}
		return tx.Delete(&model).Error
	})
}

// FindRoleByName returns the role with the given unprefixed name.
func (d *Directory) FindRoleByName(ctx context.Context, name string) (*directory.Role, error) {
	var model roleModel
	err := d.db.WithContext(ctx).Where("name = ?", name).First(&model).Error
	if err != nil {
		return nil, convertNotFoundError(err, directory.ErrRoleNotFound)
	}
	return &directory.Role{Name: model.Name, Description: model.Description}, nil
}

// CreateRole creates a new role row.
func (d *Directory) CreateRole(ctx context.Context, role *directory.Role) error {
	model := &roleModel{
		ID:          uuid.New().String(),
		Name:        role.Name,
		Description: role.Description,
		CreatedAt:   time.Now(),
	}
	if err := d.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueConstraintError(err) {
			return directory.ErrDuplicateRole
		}
		return fmt.Errorf("creating role %s: %w", role.Name, err)
	}
	return nil
}

// AddUserToRole links the account to the role. Appending an existing
// member is a no-op.
func (d *Directory) AddUserToRole(ctx context.Context, roleName, username string) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account accountModel
		if err := tx.Where("username = ?", username).First(&account).Error; err != nil {
			return convertNotFoundError(err, directory.ErrAccountNotFound)
		}
		var role roleModel
		if err := tx.Where("name = ?", roleName).First(&role).Error; err != nil {
			return convertNotFoundError(err, directory.ErrRoleNotFound)
		}
		return tx.Model(&account).Association("Roles").Append(&role)
	})
}

func accountFromModel(model *accountModel) *directory.Account {
	roles := make([]string, 0, len(model.Roles))
	for _, role := range model.Roles {
		roles = append(roles, role.Name)
	}
	email := ""
	if model.Email != nil {
		email = *model.Email
	}
	return &directory.Account{
		UID:              model.ID,
		Username:         model.Username,
		Email:            email,
		FirstName:        model.FirstName,
		LastName:         model.LastName,
		Organization:     model.Organization,
		OAuth2ProviderID: model.OAuth2ProviderID,
		Pending:          model.Pending,
		Roles:            roles,
	}
}

// nullableString maps the empty string to NULL.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// isUniqueConstraintError checks if the error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// SQLite or PostgreSQL unique constraint errors
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "duplicate key value violates unique constraint")
}

// convertNotFoundError converts gorm.ErrRecordNotFound to the appropriate domain error.
func convertNotFoundError(err error, notFoundErr error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFoundErr
	}
	return err
}
