package outbox

import (
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/payroll-reconciler/pkg/logging"
)

func logrusNop() *logrus.Entry {
	return logging.Nop()
}
