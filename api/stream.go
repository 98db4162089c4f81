package api

import (
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"dayplan/identity"
)

// sessionForStream authenticates a stream request. EventSource clients
// cannot set headers, so the token may arrive as a query parameter instead.
func sessionForStream(c echo.Context, auth Authenticator) (identity.Session, error) {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		if token := c.QueryParam("token"); token != "" {
			authHeader = "Bearer " + token
		}
	}
	return auth.SessionFromAuthHeader(authHeader)
}

func beginEventStream(c echo.Context) (http.Flusher, error) {
	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return nil, c.String(http.StatusInternalServerError, "stream unsupported")
	}
	return flusher, nil
}

func writeEvent(c echo.Context, flusher http.Flusher, event string, payload any) error {
	data, err := sonic.ConfigStd.Marshal(payload)
	if err != nil {
		return err
	}
	if event != "" {
		if _, err := c.Response().Write([]byte("event: " + event + "\n")); err != nil {
			return err
		}
	}
	if _, err := c.Response().Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := c.Response().Write(data); err != nil {
		return err
	}
	if _, err := c.Response().Write([]byte("\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func streamTasks(tasks Tasks, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, err := sessionForStream(c, auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		flusher, err := beginEventStream(c)
		if err != nil {
			return err
		}

		tr := tasks.Acquire(sess.UserID)
		defer tasks.Release(sess.UserID)
		ch, cancel := tr.Listen()
		defer cancel()

		ctx := c.Request().Context()
		for {
			select {
			case <-ctx.Done():
				return nil
			case u, ok := <-ch:
				if !ok {
					return nil
				}
				if u.Err != nil {
					if err := writeEvent(c, flusher, "error", u.Err.Error()); err != nil {
						return err
					}
					continue
				}
				if err := writeEvent(c, flusher, "", u.Tasks); err != nil {
					return err
				}
			}
		}
	}
}

func streamCategories(cats Categories, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := sessionForStream(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		flusher, err := beginEventStream(c)
		if err != nil {
			return err
		}

		ch, cancel := cats.Listen()
		defer cancel()

		ctx := c.Request().Context()
		for {
			select {
			case <-ctx.Done():
				return nil
			case u, ok := <-ch:
				if !ok {
					return nil
				}
				if u.Err != nil {
					if err := writeEvent(c, flusher, "error", u.Err.Error()); err != nil {
						return err
					}
					continue
				}
				if err := writeEvent(c, flusher, "", u.Categories); err != nil {
					return err
				}
			}
		}
	}
}
