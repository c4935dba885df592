package services

import (
	"testing"

	"github.com/iota-uz/payroll-reconciler/modules/payroll/infrastructure/persistence"
	"github.com/iota-uz/payroll-reconciler/pkg/itf"
)

type fixture struct {
	env            *itf.TestEnvironment
	aliases        *AliasService
	classification *ClassificationService
	reference      *ReferenceService
	vintage        int64
}

func setup(t *testing.T) *fixture {
	t.Helper()

	env := itf.NewTestContext().Build(t)
	aliasRepo := persistence.NewAliasRepository()
	agencyRepo := persistence.NewAgencyRepository()
	employerRepo := persistence.NewEmployerRepository()
	referenceRepo := persistence.NewReferenceRepository()

	var vintage int64
	if err := env.Pool.QueryRow(env.Ctx, `INSERT INTO data_import_upload (created_by) VALUES ('test') RETURNING id`).Scan(&vintage); err != nil {
		t.Fatal(err)
	}

	return &fixture{
		env:            env,
		aliases:        NewAliasService(aliasRepo, agencyRepo, employerRepo),
		classification: NewClassificationService(aliasRepo, employerRepo, referenceRepo),
		reference:      NewReferenceService(referenceRepo, agencyRepo),
		vintage:        vintage,
	}
}
