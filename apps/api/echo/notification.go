package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolfees/core/fee"
	"github.com/trezcool/schoolfees/core/notification"
)

type notificationApi struct {
	svc     notification.Service
	feeSvc  fee.Service
	scanner DueDateScanner
}

type (
	UnreadCountResponse struct {
		UnreadCount int `json:"unread_count"`
	}

	UpdatedResponse struct {
		Updated int `json:"updated"`
	}
)

func registerNotificationAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc notification.Service,
	feeSvc fee.Service,
	scanner DueDateScanner,
) {
	api := notificationApi{
		svc:     svc,
		feeSvc:  feeSvc,
		scanner: scanner,
	}

	ng := g.Group("/notifications", jwt)
	ng.POST("/check-due-dates", api.checkDueDates, adminMiddleware())
	ng.POST("/fee-reminder/student/:studentId", api.remindStudent, staffMiddleware())
	ng.POST("/fee-reminder/all-pending", api.remindAllPending, staffMiddleware())
	ng.GET("/due-installments/:studentId", api.dueInstallments, studentAccessMiddleware("studentId"))
	ng.GET("/total-due-amount/:studentId", api.totalDue, studentAccessMiddleware("studentId"))

	// student endpoints
	sg := ng.Group("/student/:studentId", studentAccessMiddleware("studentId"))
	sg.GET("", api.queryByStudent)
	sg.GET("/unread-count", api.unreadCount)
	sg.PUT("/read-all", api.markAllAsRead)

	// detail endpoints
	ng.PUT("/:id/read", api.markAsRead)
	ng.PUT("/:id/delivered", api.markAsDelivered, staffMiddleware())
	ng.POST("/:id/retry", api.retry, staffMiddleware())
}

// Handlers

func (api *notificationApi) checkDueDates(ctx echo.Context) error {
	res, err := api.scanner.Run(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "scanning due dates")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *notificationApi) remindStudent(ctx echo.Context) error {
	n, err := api.scanner.RemindStudent(ctx.Request().Context(), ctx.Param("studentId"))
	if err != nil {
		return errors.Wrap(err, "sending fee reminder")
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *notificationApi) remindAllPending(ctx echo.Context) error {
	res, err := api.scanner.RemindAllPending(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "sending pending fee reminders")
	}
	if res.Failures == nil {
		res.Failures = []notification.BulkFailure{}
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *notificationApi) dueInstallments(ctx echo.Context) error {
	insts, err := api.feeSvc.DueInstallments(ctx.Request().Context(), ctx.Param("studentId"))
	if err != nil {
		return errors.Wrap(err, "listing due installments")
	}
	if insts == nil {
		insts = []fee.DueInstallment{}
	}
	return ctx.JSON(http.StatusOK, insts)
}

func (api *notificationApi) totalDue(ctx echo.Context) error {
	summary, err := api.feeSvc.TotalDue(ctx.Request().Context(), ctx.Param("studentId"))
	if err != nil {
		return errors.Wrap(err, "totalling due amount")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *notificationApi) queryByStudent(ctx echo.Context) error {
	filter := new(notification.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []notification.Notification{})
	}

	notifs, err := api.svc.ListByStudent(ctx.Request().Context(), ctx.Param("studentId"), filter)
	if err != nil {
		return errors.Wrap(err, "querying notifications")
	}
	if notifs == nil {
		notifs = []notification.Notification{}
	}
	return ctx.JSON(http.StatusOK, notifs)
}

func (api *notificationApi) unreadCount(ctx echo.Context) error {
	count, err := api.svc.UnreadCount(ctx.Request().Context(), ctx.Param("studentId"))
	if err != nil {
		return errors.Wrap(err, "counting unread notifications")
	}
	return ctx.JSON(http.StatusOK, UnreadCountResponse{UnreadCount: count})
}

func (api *notificationApi) markAllAsRead(ctx echo.Context) error {
	count, err := api.svc.MarkAllAsRead(ctx.Request().Context(), ctx.Param("studentId"))
	if err != nil {
		return errors.Wrap(err, "marking all notifications as read")
	}
	return ctx.JSON(http.StatusOK, UpdatedResponse{Updated: count})
}

// markAsRead is open to the recipient of the notification.
func (api *notificationApi) markAsRead(ctx echo.Context) error {
	n, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retrieving notification")
	}
	if err = checkStudentAccess(ctx, n.StudentID); err != nil {
		return err
	}

	if n, err = api.svc.MarkAsRead(ctx.Request().Context(), n.ID); err != nil {
		return errors.Wrap(err, "marking notification as read")
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *notificationApi) markAsDelivered(ctx echo.Context) error {
	n, err := api.svc.MarkAsDelivered(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "marking notification as delivered")
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *notificationApi) retry(ctx echo.Context) error {
	n, err := api.svc.Retry(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retrying notification")
	}
	return ctx.JSON(http.StatusOK, n)
}
