// Package scrape imports event fields from Facebook event pages, either
// through a companion scraping service or a local headless Chromium.
package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"eventcal/internal/apperr"
	"eventcal/internal/config"
	appLog "eventcal/internal/log"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"

// maxServiceBody caps the companion service response.
const maxServiceBody = 1 << 20

const (
	msgBadURL      = "Bitte eine gültige Facebook-Veranstaltungsadresse angeben."
	msgUnreachable = "Die Veranstaltung konnte nicht abgerufen werden."
	msgUnparsable  = "Die Seite enthält keine lesbaren Veranstaltungsdaten."
)

// PageFetcher returns the rendered HTML of a page.
type PageFetcher interface {
	FetchHTML(ctx context.Context, url string) (string, error)
}

// Importer resolves a Facebook event URL into normalized fields.
type Importer struct {
	serviceURL string
	timeout    time.Duration
	client     *http.Client
	pages      PageFetcher
}

// NewImporter uses the companion service when cfg.ServiceURL is set and a
// headless Chromium otherwise.
func NewImporter(cfg config.ScraperConfig, client *http.Client) *Importer {
	if client == nil {
		client = http.DefaultClient
	}
	return &Importer{
		serviceURL: strings.TrimSpace(cfg.ServiceURL),
		timeout:    cfg.Timeout,
		client:     client,
		pages:      Chromium{Timeout: cfg.ChromiumTimeout},
	}
}

// WithPages replaces the headless page loader.
func (i *Importer) WithPages(p PageFetcher) *Importer {
	i.pages = p
	return i
}

// Import validates raw and returns the event fields found behind it.
func (i *Importer) Import(ctx context.Context, raw string) (Imported, error) {
	target, err := ValidateURL(raw)
	if err != nil {
		return Imported{}, apperr.Wrap(apperr.Validation, msgBadURL, err)
	}

	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	var out Imported
	if i.serviceURL != "" {
		out, err = i.fromService(ctx, target)
	} else {
		out, err = i.fromBrowser(ctx, target)
	}
	if err != nil {
		appLog.Error("event import failed", err, "url", target)
		return Imported{}, err
	}
	if out.URL == "" {
		out.URL = target
	}
	appLog.Info("event imported", "url", target, "title", out.Title, "start", out.StartDate)
	return out, nil
}

func (i *Importer) fromService(ctx context.Context, target string) (Imported, error) {
	u, err := url.Parse(i.serviceURL)
	if err != nil {
		return Imported{}, apperr.Wrap(apperr.Internal, msgUnreachable, fmt.Errorf("service url: %w", err))
	}
	q := u.Query()
	q.Set("url", target)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Imported{}, apperr.Wrap(apperr.Internal, msgUnreachable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		return Imported{}, apperr.Wrap(apperr.Upstream, msgUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxServiceBody))
	if err != nil {
		return Imported{}, apperr.Wrap(apperr.Upstream, msgUnreachable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Imported{}, apperr.Wrap(apperr.Upstream, msgUnreachable,
			fmt.Errorf("scrape service: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	// The service answers with a schema.org Event object.
	ev, ok := findLDEvent(body)
	if !ok {
		var plain ldEvent
		if err := json.Unmarshal(body, &plain); err != nil || plain.Name == "" {
			return Imported{}, apperr.Wrap(apperr.Upstream, msgUnparsable, errors.New("scrape service: no event in response"))
		}
		ev = plain
	}
	out, err := fromLD(ev)
	if err != nil {
		return Imported{}, apperr.Wrap(apperr.Upstream, msgUnparsable, err)
	}
	return out, nil
}

func (i *Importer) fromBrowser(ctx context.Context, target string) (Imported, error) {
	doc, err := i.pages.FetchHTML(ctx, target)
	if err != nil {
		return Imported{}, apperr.Wrap(apperr.Upstream, msgUnreachable, err)
	}
	out, err := ParseEventPage(doc)
	if err != nil {
		return Imported{}, apperr.Wrap(apperr.Upstream, msgUnparsable, err)
	}
	return out, nil
}

// ValidateURL accepts http(s) URLs of facebook.com event pages and returns
// them without query string or fragment.
func ValidateURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host != "facebook.com" && !strings.HasSuffix(host, ".facebook.com") {
		return "", fmt.Errorf("not a facebook host: %q", host)
	}
	if !strings.HasPrefix(u.Path, "/events/") || len(strings.Trim(u.Path, "/")) <= len("events") {
		return "", fmt.Errorf("not an event page: %q", u.Path)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
