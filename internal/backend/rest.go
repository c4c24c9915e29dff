package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nilsson-dev/vaultic/internal/ident"
)

// restRetryMaxElapsed is the default ceiling on total retry time for a
// single REST call, matching original_source's rest.rs default
// (ExponentialBackoffBuilder::with_max_elapsed_time(600s)).
const restRetryMaxElapsed = 600 * time.Second

// permanentError marks an error as non-retryable (a 4xx response),
// mirroring rest.rs's CheckError trait classifying client errors as
// Error::Permanent and everything else as transient.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// RestBackend implements Backend against a restic REST-server-style
// HTTP API, transliterated from original_source/src/backend/rest.rs.
type RestBackend struct {
	baseURL string
	client  *http.Client
	backoff func() backoff.BackOff
}

// NewRestBackend returns a backend talking to the REST server at
// url (a trailing slash is added if missing, as rest.rs's RestBackend::new does).
func NewRestBackend(url string) *RestBackend {
	if !strings.HasSuffix(url, "/") {
		url += "/"
	}
	return &RestBackend{
		baseURL: url,
		client:  &http.Client{},
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = restRetryMaxElapsed
			return b
		},
	}
}

// SetRetryOption mirrors rest.rs's set_option("retry", ...): "true"
// shortens the retry window to 120s, "false" disables retrying.
func (b *RestBackend) SetRetryOption(value string) error {
	switch value {
	case "true":
		b.backoff = func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.MaxElapsedTime = 120 * time.Second
			return bo
		}
	case "false":
		b.backoff = func() backoff.BackOff { return &backoff.StopBackOff{} }
	default:
		return fmt.Errorf("backend: unsupported value %q for option retry", value)
	}
	return nil
}

func (b *RestBackend) Location() string { return b.baseURL }

func (b *RestBackend) url(tpe FileType, id ident.Id) string {
	if tpe == Config {
		return b.baseURL + "config"
	}
	return b.baseURL + tpe.String() + "/" + id.String()
}

// checkStatus classifies a non-2xx HTTP response as permanent (4xx)
// or transient (everything else), per rest.rs's CheckError.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	err := fmt.Errorf("backend: unexpected status %s", resp.Status)
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return &permanentError{err}
	}
	return err
}

func (b *RestBackend) retry(op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		var perm *permanentError
		if asPermanent(err, &perm) {
			return backoff.Permanent(err)
		}
		return err
	}, b.backoff())
}

func asPermanent(err error, target **permanentError) bool {
	p, ok := err.(*permanentError)
	if ok {
		*target = p
	}
	return ok
}

func (b *RestBackend) Create() error {
	return b.retry(func() error {
		req, err := http.NewRequest(http.MethodPost, b.baseURL+"?create=true", nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := b.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return checkStatus(resp)
	})
}

// restListEntry is the JSON shape the REST v2 listing endpoint
// returns, per rest.rs's local ListEntry struct.
type restListEntry struct {
	Name ident.Id `json:"name"`
	Size uint32   `json:"size"`
}

func (b *RestBackend) List(tpe FileType) ([]ident.Id, error) {
	entries, err := b.ListWithSize(tpe)
	if err != nil {
		return nil, err
	}
	ids := make([]ident.Id, len(entries))
	for i, e := range entries {
		ids[i] = e.Id
	}
	return ids, nil
}

func (b *RestBackend) ListWithSize(tpe FileType) ([]Entry, error) {
	if tpe == Config {
		var exists bool
		err := b.retry(func() error {
			resp, err := b.client.Head(b.baseURL + "config")
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			exists = resp.StatusCode >= 200 && resp.StatusCode < 300
			return nil
		})
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, nil
		}
		return []Entry{{Id: ident.Zero, Size: 0}}, nil
	}

	var listed []restListEntry
	err := b.retry(func() error {
		req, err := http.NewRequest(http.MethodGet, b.baseURL+tpe.String()+"/", nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/vnd.x.restic.rest.v2")
		resp, err := b.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := checkStatus(resp); err != nil {
			return err
		}
		listed = nil
		return json.NewDecoder(resp.Body).Decode(&listed)
	})
	if err != nil {
		return nil, fmt.Errorf("backend: list %s: %w", tpe, err)
	}

	entries := make([]Entry, len(listed))
	for i, e := range listed {
		entries[i] = Entry{Id: e.Name, Size: e.Size}
	}
	return entries, nil
}

func (b *RestBackend) ReadFull(tpe FileType, id ident.Id) ([]byte, error) {
	var body []byte
	err := b.retry(func() error {
		resp, err := b.client.Get(b.url(tpe, id))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := checkStatus(resp); err != nil {
			return err
		}
		body, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("backend: read %s %s: %w", tpe, id, err)
	}
	return body, nil
}

func (b *RestBackend) ReadPartial(tpe FileType, id ident.Id, offset, length int64) ([]byte, error) {
	rangeHeader := fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	var body []byte
	err := b.retry(func() error {
		req, err := http.NewRequest(http.MethodGet, b.url(tpe, id), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Range", rangeHeader)
		resp, err := b.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := checkStatus(resp); err != nil {
			return err
		}
		body, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("backend: read %s %s range %s: %w", tpe, id, rangeHeader, err)
	}
	return body, nil
}

func (b *RestBackend) WriteBytes(tpe FileType, id ident.Id, data []byte) error {
	err := b.retry(func() error {
		req, err := http.NewRequest(http.MethodPost, b.url(tpe, id), bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := b.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return checkStatus(resp)
	})
	if err != nil {
		return fmt.Errorf("backend: write %s %s: %w", tpe, id, err)
	}
	return nil
}

func (b *RestBackend) Remove(tpe FileType, id ident.Id) error {
	err := b.retry(func() error {
		req, err := http.NewRequest(http.MethodDelete, b.url(tpe, id), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := b.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return checkStatus(resp)
	})
	if err != nil {
		return fmt.Errorf("backend: remove %s %s: %w", tpe, id, err)
	}
	return nil
}

func (b *RestBackend) SaveSnapshot(data []byte) (ident.Id, error) {
	id := ident.Of(data)
	if err := b.WriteBytes(Snapshot, id, data); err != nil {
		return ident.Id{}, err
	}
	return id, nil
}
