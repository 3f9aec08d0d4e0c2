package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolfees/core/fee"
)

type feeApi struct {
	svc      fee.Service
	validate *validator.Validate
}

func registerFeeAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc fee.Service, validate *validator.Validate) {
	api := feeApi{
		svc:      svc,
		validate: validate,
	}

	fg := g.Group("/fees", jwt)
	fg.GET("/student/:studentId", api.retrieveByStudent, studentAccessMiddleware("studentId"))

	sg := fg.Group("", staffMiddleware())
	sg.POST("", api.create)
	sg.GET("", api.query)
	sg.GET("/pending", api.queryPending)
	sg.GET("/paid", api.queryPaid)
	sg.GET("/academic-year/:year", api.queryAcademicYear)

	// detail endpoints
	dg := sg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.POST("/additional-fees", api.addAdditionalFee)
	dg.POST("/installments", api.addInstallment)
	dg.POST("/installments/:iid/pay", api.payInstallment)
	dg.POST("/installments/:iid/cancel", api.cancelInstallment)
	dg.POST("/installments/:iid/discount", api.discountInstallment)
}

// Handlers

func (api *feeApi) create(ctx echo.Context) error {
	var data fee.NewLedger
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLedger")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ldg, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating fee ledger")
	}
	return ctx.JSON(http.StatusCreated, ldg.View())
}

func (api *feeApi) query(ctx echo.Context) error {
	filter := new(fee.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []fee.LedgerView{})
	}
	return api.respondQuery(ctx, filter)
}

func (api *feeApi) queryPending(ctx echo.Context) error {
	return api.respondQuery(ctx, &fee.QueryFilter{Balance: fee.BalancePending})
}

func (api *feeApi) queryPaid(ctx echo.Context) error {
	return api.respondQuery(ctx, &fee.QueryFilter{Balance: fee.BalancePaid})
}

func (api *feeApi) queryAcademicYear(ctx echo.Context) error {
	return api.respondQuery(ctx, &fee.QueryFilter{AcademicYear: ctx.Param("year")})
}

func (api *feeApi) respondQuery(ctx echo.Context, filter *fee.QueryFilter) error {
	ledgers, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying fee ledgers")
	}
	views := make([]fee.LedgerView, 0, len(ledgers))
	for _, ldg := range ledgers {
		views = append(views, ldg.View())
	}
	return ctx.JSON(http.StatusOK, views)
}

func (api *feeApi) retrieve(ctx echo.Context) error {
	ldg, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retrieving fee ledger")
	}
	return ctx.JSON(http.StatusOK, ldg.View())
}

func (api *feeApi) retrieveByStudent(ctx echo.Context) error {
	ldg, err := api.svc.GetByStudent(ctx.Request().Context(), ctx.Param("studentId"))
	if err != nil {
		return errors.Wrap(err, "retrieving student fee ledger")
	}
	return ctx.JSON(http.StatusOK, ldg.View())
}

func (api *feeApi) update(ctx echo.Context) error {
	var data fee.UpdateLedger
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateLedger")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ldg, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating fee ledger")
	}
	return ctx.JSON(http.StatusOK, ldg.View())
}

func (api *feeApi) addAdditionalFee(ctx echo.Context) error {
	var data fee.NewAdditionalFee
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAdditionalFee")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ldg, err := api.svc.AddAdditionalFee(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding additional fee")
	}
	return ctx.JSON(http.StatusOK, ldg.View())
}

func (api *feeApi) addInstallment(ctx echo.Context) error {
	var data fee.ScheduledInstallment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ScheduledInstallment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ldg, err := api.svc.AddInstallment(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding installment")
	}
	return ctx.JSON(http.StatusCreated, ldg.View())
}

func (api *feeApi) payInstallment(ctx echo.Context) error {
	data := fee.InstallmentPayment{
		PaymentMode:    ctx.QueryParam("paymentMode"),
		TransactionRef: ctx.QueryParam("transactionRef"),
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ldg, err := api.svc.ProcessInstallmentPayment(ctx.Request().Context(), ctx.Param("id"), ctx.Param("iid"), data)
	if err != nil {
		return errors.Wrap(err, "processing installment payment")
	}
	return ctx.JSON(http.StatusOK, ldg.View())
}

func (api *feeApi) cancelInstallment(ctx echo.Context) error {
	var data fee.Cancellation
	if ctx.Request().ContentLength > 0 {
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to Cancellation")
		}
	}

	ldg, err := api.svc.CancelInstallment(ctx.Request().Context(), ctx.Param("id"), ctx.Param("iid"), data.Remarks)
	if err != nil {
		return errors.Wrap(err, "cancelling installment")
	}
	return ctx.JSON(http.StatusOK, ldg.View())
}

func (api *feeApi) discountInstallment(ctx echo.Context) error {
	var data fee.Discount
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Discount")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	ldg, err := api.svc.ApplyInstallmentDiscount(ctx.Request().Context(), ctx.Param("id"), ctx.Param("iid"), data.Amount)
	if err != nil {
		return errors.Wrap(err, "discounting installment")
	}
	return ctx.JSON(http.StatusOK, ldg.View())
}
