package migration

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/reserva/internal/config"
	customerdomain "github.com/smallbiznis/reserva/internal/customer/domain"
	holdingdomain "github.com/smallbiznis/reserva/internal/holding/domain"
	ledgerdomain "github.com/smallbiznis/reserva/internal/ledger/domain"
	productdomain "github.com/smallbiznis/reserva/internal/product/domain"
	"github.com/smallbiznis/reserva/internal/seed"
	tenantdomain "github.com/smallbiznis/reserva/internal/tenant/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, genID *snowflake.Node) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// golang-migrate's embedded source is written for postgres;
			// mysql and sqlite installs fall back to AutoMigrate.
			if err := conn.AutoMigrate(
				&tenantdomain.Tenant{},
				&customerdomain.Customer{},
				&productdomain.Product{},
				&ledgerdomain.PointsEntry{},
				&holdingdomain.Holding{},
				&ledgerdomain.HoldingEntry{},
			); err != nil {
				return err
			}
		}

		if cfg.DefaultTenantID != 0 {
			return seed.EnsureTenantWithID(conn, cfg.DefaultTenantID)
		}
		return seed.EnsureDefaultTenant(conn, genID)
	}),
)
