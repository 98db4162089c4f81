package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"dayplan/docstore"
	"dayplan/domain"
	"dayplan/identity"
	"dayplan/profile"
	"dayplan/tracker"
)

const requestBodyMaxSize = 64 * 1024

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, accounts Accounts, tasks Tasks, cats Categories, auth Authenticator, logger *log.Logger) {
	e.POST("/api/auth/signup", postSignUp(accounts))
	e.POST("/api/auth/signin", postSignIn(accounts))
	e.POST("/api/auth/signout", postSignOut(auth))

	e.GET("/api/profile", getProfile(accounts, auth))
	e.PUT("/api/profile/email", putEmail(accounts, auth))
	e.PUT("/api/profile/password", putPassword(accounts, auth))
	e.PUT("/api/profile/name", putName(accounts, auth))

	e.GET("/api/tasks", getTasks(tasks, auth, logger))
	e.POST("/api/tasks", postTask(tasks, auth))
	e.PATCH("/api/tasks/:id", patchTask(tasks, auth))
	e.DELETE("/api/tasks/:id", deleteTask(tasks, auth))
	e.GET("/api/tasks/stream", streamTasks(tasks, auth))

	e.GET("/api/categories", getCategories(cats, auth))
	e.GET("/api/categories/stream", streamCategories(cats, auth))

	e.GET("/api/calendar", getCalendar(auth))
	e.GET("/healthz", healthz())
}

type credentialsRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type sessionResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type createTaskRequest struct {
	Title    string `json:"title"`
	Date     int64  `json:"date"`
	Category string `json:"category"`
}

type patchTaskRequest struct {
	Title       *string `json:"title"`
	Date        *int64  `json:"date"`
	Category    *string `json:"category"`
	IsCompleted *bool   `json:"isCompleted"`
}

type calendarResponse struct {
	Selected int64   `json:"selected"`
	Window   []int64 `json:"window"`
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeFailure maps coordinator errors onto HTTP statuses. Identity provider
// failures reply with the fixed user-facing message, not the raw code.
func writeFailure(c echo.Context, err error) error {
	var idErr *identity.Error
	switch {
	case errors.Is(err, profile.ErrFieldsRequired),
		errors.Is(err, profile.ErrPasswordTooShort),
		errors.Is(err, profile.ErrInvalidEmail),
		errors.Is(err, tracker.ErrTitleRequired):
		return c.String(http.StatusBadRequest, err.Error())
	case errors.Is(err, profile.ErrProfileMissing), errors.Is(err, docstore.ErrNotFound):
		return c.String(http.StatusNotFound, err.Error())
	case errors.As(err, &idErr):
		return c.String(identityStatus(idErr.Code), idErr.Message())
	default:
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
}

func identityStatus(code identity.Code) int {
	switch code {
	case identity.CodeInvalidEmail, identity.CodeWeakPassword:
		return http.StatusBadRequest
	case identity.CodeWrongPassword, identity.CodeUserNotFound,
		identity.CodeUserDisabled, identity.CodeRequiresRecentLogin:
		return http.StatusUnauthorized
	case identity.CodeEmailInUse:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func postSignUp(accounts Accounts) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req credentialsRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		sess, user, err := accounts.SignUp(c.Request().Context(), req.Email, req.Password, req.FirstName, req.LastName)
		if err != nil {
			return writeFailure(c, err)
		}
		return c.JSON(http.StatusCreated, sessionResponse{Token: sess.Token, User: user})
	}
}

func postSignIn(accounts Accounts) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req credentialsRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		sess, user, err := accounts.SignIn(c.Request().Context(), req.Email, req.Password)
		if err != nil {
			return writeFailure(c, err)
		}
		return c.JSON(http.StatusOK, sessionResponse{Token: sess.Token, User: user})
	}
}

// postSignOut only acknowledges; tokens are self-contained, so signing out
// is the client discarding its copy.
func postSignOut(auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.SessionFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func getProfile(accounts Accounts, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, err := auth.SessionFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		user, err := accounts.Profile(c.Request().Context(), sess.UserID)
		if err != nil {
			return writeFailure(c, err)
		}
		return c.JSON(http.StatusOK, user)
	}
}

func putEmail(accounts Accounts, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, err := auth.SessionFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req struct {
			Email string `json:"email"`
		}
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		next, err := accounts.UpdateEmail(c.Request().Context(), sess, req.Email)
		if err != nil {
			return writeFailure(c, err)
		}
		return c.JSON(http.StatusOK, tokenResponse{Token: next.Token})
	}
}

func putPassword(accounts Accounts, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, err := auth.SessionFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req struct {
			Password string `json:"password"`
		}
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		next, err := accounts.UpdatePassword(c.Request().Context(), sess, req.Password)
		if err != nil {
			return writeFailure(c, err)
		}
		return c.JSON(http.StatusOK, tokenResponse{Token: next.Token})
	}
}

func putName(accounts Accounts, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, err := auth.SessionFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req struct {
			FirstName string `json:"firstName"`
			LastName  string `json:"lastName"`
		}
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if err := accounts.UpdateName(c.Request().Context(), sess, req.FirstName, req.LastName); err != nil {
			return writeFailure(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func getTasks(tasks Tasks, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics := newTaskRequestMetrics(logger)
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		sess, authErr := auth.SessionFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		dayParam := strings.TrimSpace(c.QueryParam("day"))
		day := int64(0)
		if dayParam != "" {
			var parseErr error
			day, parseErr = strconv.ParseInt(dayParam, 10, 64)
			if parseErr != nil {
				metrics.SetErrorStage("invalid_day")
				err = c.String(http.StatusBadRequest, "invalid day")
				return err
			}
			metrics.SetDayFilterProvided(true)
		}

		fetchStart := time.Now()
		list, fetchErr := tasks.Fetch(c.Request().Context(), sess.UserID)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.String(http.StatusInternalServerError, fetchErr.Error())
			return err
		}
		if dayParam != "" {
			filtered := list[:0]
			for _, task := range list {
				if domain.SameDayMillis(task.Date, day, time.UTC) {
					filtered = append(filtered, task)
				}
			}
			list = filtered
		}
		metrics.SetTasksReturned(len(list))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, list)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func postTask(tasks Tasks, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, err := auth.SessionFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		tr := tasks.Acquire(sess.UserID)
		defer tasks.Release(sess.UserID)
		if err := tr.Add(c.Request().Context(), req.Title, req.Date, req.Category, sess.UserID); err != nil {
			return writeFailure(c, err)
		}
		return c.NoContent(http.StatusAccepted)
	}
}

func patchTask(tasks Tasks, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, err := auth.SessionFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req patchTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		patch := domain.TaskPatch{
			Title:       req.Title,
			Date:        req.Date,
			Category:    req.Category,
			IsCompleted: req.IsCompleted,
		}
		tr := tasks.Acquire(sess.UserID)
		defer tasks.Release(sess.UserID)
		if err := tr.Update(c.Request().Context(), sess.UserID, c.Param("id"), patch); err != nil {
			return writeFailure(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteTask(tasks Tasks, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, err := auth.SessionFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		tr := tasks.Acquire(sess.UserID)
		defer tasks.Release(sess.UserID)
		if err := tr.Delete(c.Request().Context(), sess.UserID, c.Param("id")); err != nil {
			return writeFailure(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func getCategories(cats Categories, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.SessionFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		return c.JSON(http.StatusOK, cats.Snapshot())
	}
}

// getCalendar computes the seven-day window around the selected date. The
// window is derived, not stored, so the endpoint is stateless.
func getCalendar(auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.SessionFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		selected := time.Now().UTC()
		if raw := strings.TrimSpace(c.QueryParam("selected")); raw != "" {
			millis, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return c.String(http.StatusBadRequest, "invalid selected date")
			}
			selected = time.UnixMilli(millis).UTC()
		}
		cal := domain.NewCalendar(selected)
		window := cal.Window()
		resp := calendarResponse{
			Selected: cal.SelectedDate().UnixMilli(),
			Window:   make([]int64, 0, len(window)),
		}
		for _, day := range window {
			resp.Window = append(resp.Window, day.UnixMilli())
		}
		return c.JSON(http.StatusOK, resp)
	}
}
