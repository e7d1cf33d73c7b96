package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/convergeproj/converge/pkg/api"
	convergeerr "github.com/convergeproj/converge/pkg/errors"
	"github.com/convergeproj/converge/pkg/event"
	transport "github.com/convergeproj/converge/pkg/http"
)

type Client struct {
	client   *http.Client
	router   *mux.Router
	endpoint string
}

var _ api.Server = &Client{}

func New(c *http.Client, router *mux.Router, endpoint string) *Client {
	return &Client{
		client:   c,
		router:   router,
		endpoint: endpoint,
	}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.get(ctx, nil, transport.Ping)
}

func (c *Client) Version(ctx context.Context) (string, error) {
	var v string
	err := c.get(ctx, &v, transport.Version)
	return v, err
}

func (c *Client) NotifyChange(ctx context.Context, change api.Change) error {
	return c.post(ctx, transport.Notify, change)
}

func (c *Client) ListApplications(ctx context.Context) ([]api.ApplicationStatus, error) {
	var res []api.ApplicationStatus
	err := c.get(ctx, &res, transport.ListApplications)
	return res, err
}

func (c *Client) Status(ctx context.Context, app string) (api.ApplicationStatus, error) {
	var res api.ApplicationStatus
	err := c.get(ctx, &res, transport.Status, "app", app)
	return res, err
}

func (c *Client) TriggerSync(ctx context.Context, app string) error {
	return c.post(ctx, transport.TriggerSync, nil, "app", app)
}

func (c *Client) RemoveApplication(ctx context.Context, app string) error {
	return c.delete(ctx, transport.RemoveApplication, "app", app)
}

func (c *Client) ListEvents(ctx context.Context, app string, limit int) ([]event.Event, error) {
	var res []event.Event
	err := c.get(ctx, &res, transport.ListEvents, "app", app, "limit", strconv.Itoa(limit))
	return res, err
}

// --- Request helpers

// post sends a POST request; if body is not nil, it is encoded to
// json before sending.
func (c *Client) post(ctx context.Context, route string, body interface{}, urlParams ...string) error {
	u, err := transport.MakeURL(c.endpoint, c.router, route, urlParams...)
	if err != nil {
		return errors.Wrap(err, "constructing URL")
	}

	var bodyBytes []byte
	if body != nil {
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
	}

	req, err := http.NewRequest("POST", u.String(), bytes.NewReader(bodyBytes))
	if err != nil {
		return errors.Wrapf(err, "constructing request %s", u)
	}
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")

	resp, err := c.executeRequest(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) delete(ctx context.Context, route string, urlParams ...string) error {
	u, err := transport.MakeURL(c.endpoint, c.router, route, urlParams...)
	if err != nil {
		return errors.Wrap(err, "constructing URL")
	}

	req, err := http.NewRequest("DELETE", u.String(), nil)
	if err != nil {
		return errors.Wrapf(err, "constructing request %s", u)
	}
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")

	resp, err := c.executeRequest(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// get executes a GET request against the daemon, unmarshalling the
// response into dest if it is not nil.
func (c *Client) get(ctx context.Context, dest interface{}, route string, urlParams ...string) error {
	u, err := transport.MakeURL(c.endpoint, c.router, route, urlParams...)
	if err != nil {
		return errors.Wrap(err, "constructing URL")
	}

	req, err := http.NewRequest("GET", u.String(), nil)
	if err != nil {
		return errors.Wrapf(err, "constructing request %s", u)
	}
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")

	resp, err := c.executeRequest(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return errors.Wrap(err, "decoding response from server")
		}
	}
	return nil
}

func (c *Client) executeRequest(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "executing HTTP request")
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent, http.StatusAccepted:
		return resp, nil
	default:
		defer resp.Body.Close()
		body, err := ioutil.ReadAll(resp.Body)
		if err != nil {
			return resp, errors.Wrap(err, "reading response body of error")
		}
		// Use the content type to discriminate our own errors from
		// "any old error"
		if strings.HasPrefix(resp.Header.Get(http.CanonicalHeaderKey("Content-Type")), "application/json") {
			var niceError convergeerr.Error
			if err := json.Unmarshal(body, &niceError); err != nil {
				return resp, errors.Wrap(err, "decoding response body of error")
			}
			// just in case it's JSON but not one of our own errors
			if niceError.Err != nil {
				return resp, &niceError
			}
		}
		return resp, errors.New(resp.Status + " " + string(body))
	}
}
