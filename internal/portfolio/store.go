// Package portfolio persists monitored domains and their incidents in a
// single YAML file.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tbckr/lapse/internal/apperr"
	"github.com/tbckr/lapse/internal/expiry"
	"github.com/tbckr/lapse/internal/model"
	"github.com/tbckr/lapse/internal/validate"
)

type document struct {
	Domains   []model.Domain   `yaml:"domains"`
	Incidents []model.Incident `yaml:"incidents"`
}

// FileStore is safe for concurrent use. Every mutation rewrites the file
// atomically before it returns.
type FileStore struct {
	path string
	now  func() time.Time

	mu  sync.Mutex
	doc document
}

var _ expiry.Records = (*FileStore)(nil)

// Option configures a FileStore.
type Option func(*FileStore)

// WithClock replaces time.Now for incident timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *FileStore) { s.now = now }
}

// Open loads path. A missing file yields an empty portfolio; it is created
// on the first write.
func Open(path string, opts ...Option) (*FileStore, error) {
	s := &FileStore{path: path, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading portfolio %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("%w: parsing portfolio %s: %w", apperr.ErrInvalidInput, path, err)
	}
	return s, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// Domains returns a copy of every monitored domain, sorted by name.
func (s *FileStore) Domains(_ context.Context) []model.Domain {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Domain, 0, len(s.doc.Domains))
	for _, d := range s.doc.Domains {
		out = append(out, cloneDomain(d))
	}
	slices.SortFunc(out, func(a, b model.Domain) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Domain returns the domain with the given ID or name.
func (s *FileStore) Domain(_ context.Context, idOrName string) (*model.Domain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(idOrName)
	if i < 0 {
		return nil, fmt.Errorf("%w: domain %q is not in the portfolio", apperr.ErrNotFound, idOrName)
	}
	d := cloneDomain(s.doc.Domains[i])
	return &d, nil
}

// AddDomain starts monitoring name. The normalized name doubles as the ID.
func (s *FileStore) AddDomain(_ context.Context, name string) (*model.Domain, error) {
	name = validate.NormalizeDomain(name)
	if !validate.IsDomain(name) {
		return nil, fmt.Errorf("%w: must be a valid domain name: %q", apperr.ErrInvalidInput, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(name) >= 0 {
		return nil, fmt.Errorf("%w: %q is already monitored", apperr.ErrInvalidInput, name)
	}
	d := model.Domain{ID: name, Name: name}
	s.doc.Domains = append(s.doc.Domains, d)
	if err := s.persist(); err != nil {
		s.doc.Domains = s.doc.Domains[:len(s.doc.Domains)-1]
		return nil, err
	}
	return &d, nil
}

// SaveDomain implements expiry.DomainSaver.
func (s *FileStore) SaveDomain(_ context.Context, d *model.Domain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(d.ID)
	if i < 0 {
		return fmt.Errorf("%w: domain %q is not in the portfolio", apperr.ErrNotFound, d.ID)
	}
	prev := s.doc.Domains[i]
	s.doc.Domains[i] = cloneDomain(*d)
	if err := s.persist(); err != nil {
		s.doc.Domains[i] = prev
		return err
	}
	return nil
}

// OpenIncident raises an incident against a monitored domain.
func (s *FileStore) OpenIncident(_ context.Context, domainID string, category model.CheckType, note string) (*model.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(domainID)
	if i < 0 {
		return nil, fmt.Errorf("%w: domain %q is not in the portfolio", apperr.ErrNotFound, domainID)
	}
	inc := model.Incident{
		ID:       s.nextIncidentID(),
		DomainID: s.doc.Domains[i].ID,
		Category: category,
		Note:     note,
		OpenedAt: s.now().UTC(),
	}
	s.doc.Incidents = append(s.doc.Incidents, inc)
	if err := s.persist(); err != nil {
		s.doc.Incidents = s.doc.Incidents[:len(s.doc.Incidents)-1]
		return nil, err
	}
	return &inc, nil
}

// OpenIncidents implements expiry.IncidentStore.
func (s *FileStore) OpenIncidents(_ context.Context, domainID string, category model.CheckType) ([]model.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Incident
	for _, inc := range s.doc.Incidents {
		if inc.Open() && inc.DomainID == domainID && inc.Category == category {
			out = append(out, inc)
		}
	}
	return out, nil
}

// Incidents lists incidents in the order they were opened. With onlyOpen,
// resolved ones are skipped.
func (s *FileStore) Incidents(_ context.Context, onlyOpen bool) []model.Incident {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Incident, 0, len(s.doc.Incidents))
	for _, inc := range s.doc.Incidents {
		if onlyOpen && !inc.Open() {
			continue
		}
		out = append(out, inc)
	}
	return out
}

// ResolveIncident implements expiry.IncidentStore. Resolving an already
// resolved incident keeps the original timestamp.
func (s *FileStore) ResolveIncident(_ context.Context, incidentID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.doc.Incidents {
		inc := &s.doc.Incidents[i]
		if inc.ID != incidentID {
			continue
		}
		if !inc.Open() {
			return nil
		}
		resolved := at.UTC()
		inc.ResolvedAt = &resolved
		if err := s.persist(); err != nil {
			inc.ResolvedAt = nil
			return err
		}
		return nil
	}
	return fmt.Errorf("%w: incident %q", apperr.ErrNotFound, incidentID)
}

func (s *FileStore) indexOf(idOrName string) int {
	key := validate.NormalizeDomain(idOrName)
	return slices.IndexFunc(s.doc.Domains, func(d model.Domain) bool {
		return d.ID == idOrName || d.Name == key
	})
}

func (s *FileStore) nextIncidentID() string {
	n := 0
	for _, inc := range s.doc.Incidents {
		if v, err := strconv.Atoi(strings.TrimPrefix(inc.ID, "inc-")); err == nil && v > n {
			n = v
		}
	}
	return "inc-" + strconv.Itoa(n+1)
}

// persist writes the document to a temp file beside the target and renames
// it into place. Callers hold s.mu.
func (s *FileStore) persist() error {
	data, err := yaml.Marshal(&s.doc)
	if err != nil {
		return fmt.Errorf("encoding portfolio: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating portfolio directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp portfolio: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("setting portfolio permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing portfolio: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing portfolio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing portfolio: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing portfolio: %w", err)
	}
	return nil
}

func cloneDomain(d model.Domain) model.Domain {
	d.Registration = cloneState(d.Registration)
	d.Certificate = cloneState(d.Certificate)
	return d
}

func cloneState(s model.ExpiryState) model.ExpiryState {
	s.ExpiresAt = cloneTime(s.ExpiresAt)
	s.DetectedAt = cloneTime(s.DetectedAt)
	return s
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
