package fee

import (
	"context"

	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/student"
)

type serviceMock struct {
	service
}

func NewServiceMock(repo Repository, students student.Directory, confirmations ConfirmationSender, logger core.Logger) Service {
	return &serviceMock{
		service: service{
			repo:          repo,
			students:      students,
			confirmations: confirmations,
			logger:        logger,
		},
	}
}

func (svc *serviceMock) ProcessInstallmentPayment(ctx context.Context, ledgerID, installmentID string, payment InstallmentPayment) (Ledger, error) {
	ldg, pc, err := svc.applyPayment(ctx, ledgerID, installmentID, payment)
	if err != nil {
		return Ledger{}, err
	}
	// run synchronously
	svc.sendPaymentConfirmation(ldg.StudentID, pc)
	return ldg, nil
}
