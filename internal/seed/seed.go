package seed

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/smallbiznis/reserva/internal/tenant/domain"
	"gorm.io/gorm"
)

const defaultTenantName = "Main Business"

// EnsureDefaultTenant creates the bootstrap tenant so local and self-hosted
// installs are usable without manual setup.
func EnsureDefaultTenant(db *gorm.DB, genID *snowflake.Node) error {
	ctx := context.Background()

	var count int64
	if err := db.WithContext(ctx).Model(&tenantdomain.Tenant{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	tenant := tenantdomain.Tenant{
		ID:        genID.Generate(),
		Name:      defaultTenantName,
		CreatedAt: time.Now().UTC(),
	}
	return db.WithContext(ctx).Create(&tenant).Error
}

// EnsureTenantWithID creates a tenant with a fixed id when DEFAULT_TENANT is
// configured, so environments can pin the bootstrap tenant.
func EnsureTenantWithID(db *gorm.DB, id int64) error {
	ctx := context.Background()

	var existing tenantdomain.Tenant
	err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&existing).Error
	if err != nil {
		return err
	}
	if existing.ID != 0 {
		return nil
	}

	tenant := tenantdomain.Tenant{
		ID:        snowflake.ID(id),
		Name:      defaultTenantName,
		CreatedAt: time.Now().UTC(),
	}
	return db.WithContext(ctx).Create(&tenant).Error
}
