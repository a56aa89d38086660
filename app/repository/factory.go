package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Repositories bundles all repository implementations
type Repositories struct {
	User         UserRepository
	Connection   IntegrationConnectionRepository
	Mapping      EventMappingRepository
	LinkedRecord LinkedRecordRepository
}

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// NewRepositories creates all repository implementations
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Connection:   NewIntegrationConnectionRepository(db),
		Mapping:      NewEventMappingRepository(db),
		LinkedRecord: NewLinkedRecordRepository(db),
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// GetUserRepository returns the user repository instance
func (f *Factory) GetUserRepository() UserRepository {
	return f.GetRepositories().User
}

// GetConnectionRepository returns the integration connection repository instance
func (f *Factory) GetConnectionRepository() IntegrationConnectionRepository {
	return f.GetRepositories().Connection
}

// GetMappingRepository returns the event mapping repository instance
func (f *Factory) GetMappingRepository() EventMappingRepository {
	return f.GetRepositories().Mapping
}

// GetLinkedRecordRepository returns the linked record repository instance
func (f *Factory) GetLinkedRecordRepository() LinkedRecordRepository {
	return f.GetRepositories().LinkedRecord
}

var (
	globalFactory     *Factory
	globalFactoryOnce sync.Once
)

// InitGlobalFactory wires the process-wide factory used by controllers.
func InitGlobalFactory(db *gorm.DB) {
	globalFactoryOnce.Do(func() {
		globalFactory = NewFactory(db)
	})
}

// GetGlobalFactory returns the process-wide factory; InitGlobalFactory must
// have been called during startup.
func GetGlobalFactory() *Factory {
	return globalFactory
}
