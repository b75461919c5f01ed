package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"lmswatch/internal/core"
	"lmswatch/internal/events"
)

// Sentinel failure classes. Bad credentials map to ErrAuthFailed; network
// errors, timeouts and unexpected page structure all map to ErrFetchFailed.
var (
	ErrAuthFailed  = errors.New("portal authentication failed")
	ErrFetchFailed = errors.New("portal fetch failed")
)

const (
	loginPath    = "/login/index.php"
	calendarPath = "/calendar/view.php?view=upcoming"
)

// Client scrapes the LMS portal's upcoming-events calendar. Each fetch runs
// in its own cookie session so concurrent fetches for different subscribers
// cannot mix logins.
type Client struct {
	baseURL string
	timeout time.Duration
	logger  *core.Logger
}

// New creates a portal client
func New(baseURL string, timeout time.Duration, logger *core.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		logger:  logger,
	}
}

// FetchEvents logs in with the given credentials and returns the raw
// calendar entries for that session.
func (c *Client) FetchEvents(ctx context.Context, username, password string) ([]events.RawEntry, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	session := &http.Client{Jar: jar, Timeout: c.timeout}

	if err := c.login(ctx, session, username, password); err != nil {
		return nil, err
	}

	return c.fetchCalendar(ctx, session)
}

// login fetches the login page, extracts the login token and posts the
// credential form. The portal answers a successful login with a redirect;
// anything else is treated as bad credentials.
func (c *Client) login(ctx context.Context, session *http.Client, username, password string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+loginPath, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	res, err := session.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: login page status %d", ErrFetchFailed, res.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	token, ok := doc.Find(`input[name="logintoken"]`).Attr("value")
	if !ok {
		return fmt.Errorf("%w: login token not found on page", ErrFetchFailed)
	}

	form := url.Values{
		"username":   {username},
		"password":   {password},
		"logintoken": {token},
	}

	postReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+loginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	postReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	// The credential post must not follow redirects: the redirect itself is
	// the success signal.
	noRedirect := &http.Client{
		Jar:     session.Jar,
		Timeout: c.timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	postRes, err := noRedirect.Do(postReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer postRes.Body.Close()

	if postRes.StatusCode != http.StatusSeeOther {
		return fmt.Errorf("%w: status %d", ErrAuthFailed, postRes.StatusCode)
	}

	return nil
}

// fetchCalendar scrapes the upcoming-events page of the logged-in session.
func (c *Client) fetchCalendar(ctx context.Context, session *http.Client) ([]events.RawEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+calendarPath, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	res, err := session.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: calendar page status %d", ErrFetchFailed, res.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	var entries []events.RawEntry
	doc.Find(".event").Each(func(i int, s *goquery.Selection) {
		entries = append(entries, events.RawEntry{
			DateText:  strings.TrimSpace(s.Find(".row .col-11").First().Text()),
			TitleText: strings.TrimSpace(s.Find(".name").First().Text()),
		})
	})

	if len(entries) == 0 {
		c.logger.Info("No events found on calendar page")
	}

	return entries, nil
}
