package configuration

import "context"

// Repository persists configurations of one kind. Every method is scoped to
// tenant; identifiers are unique per tenant, not globally.
type Repository[T Record] interface {
	// Create stores cfg or returns ErrConfigurationAlreadyExists.
	Create(ctx context.Context, tenant string, cfg T) error
	// Update replaces the stored configuration or returns ErrConfigurationNotFound.
	Update(ctx context.Context, tenant string, cfg T) error
	// Delete removes the configuration or returns ErrConfigurationNotFound.
	Delete(ctx context.Context, tenant, identifier string) error
	// FindByIdentifier returns the configuration or ErrConfigurationNotFound.
	FindByIdentifier(ctx context.Context, tenant, identifier string) (T, error)
	// FindAllActive returns every ACTIVE configuration ordered by identifier.
	FindAllActive(ctx context.Context, tenant string) ([]T, error)
	// Exists reports whether identifier is stored for tenant.
	Exists(ctx context.Context, tenant, identifier string) (bool, error)
}

// SMSRepository persists SMS gateway configurations.
type SMSRepository = Repository[SMSConfiguration]

// EmailRepository persists email gateway configurations.
type EmailRepository = Repository[EmailConfiguration]
