package payroll

import (
	"github.com/iota-uz/payroll-reconciler/modules/payroll/infrastructure/persistence"
	"github.com/iota-uz/payroll-reconciler/modules/payroll/services"
	"github.com/iota-uz/payroll-reconciler/pkg/application"
)

func NewModule() application.Module {
	return &Module{}
}

type Module struct {
}

func (m *Module) Register(app application.Application) error {
	aliasRepo := persistence.NewAliasRepository()
	agencyRepo := persistence.NewAgencyRepository()
	employerRepo := persistence.NewEmployerRepository()
	referenceRepo := persistence.NewReferenceRepository()

	app.RegisterServices(
		services.NewAliasService(aliasRepo, agencyRepo, employerRepo),
		services.NewClassificationService(aliasRepo, employerRepo, referenceRepo),
		services.NewReferenceService(referenceRepo, agencyRepo),
	)
	return nil
}

func (m *Module) Name() string {
	return "payroll"
}
