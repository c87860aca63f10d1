package forecast

import (
	"context"
	"sort"
	"sync"
	"time"

	"CoinCast/internal/domain/models"
	"CoinCast/internal/domain/repository"
)

// memPriceStore is an in-memory PriceStore for tests.
type memPriceStore struct {
	mu   sync.Mutex
	data map[int][]models.PricePoint
}

func newMemPriceStore() *memPriceStore {
	return &memPriceStore{data: make(map[int][]models.PricePoint)}
}

func (s *memPriceStore) Init(context.Context) error { return nil }

func (s *memPriceStore) InsertPrices(_ context.Context, points []models.PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		s.data[p.CryptoID] = append(s.data[p.CryptoID], p)
	}
	return nil
}

func (s *memPriceStore) FetchPrices(_ context.Context, cryptoID int, from time.Time) ([]models.PricePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PricePoint
	for _, p := range s.data[cryptoID] {
		if !from.IsZero() && p.Date.Before(from) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *memPriceStore) LatestDate(_ context.Context, cryptoID int) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest time.Time
	found := false
	for _, p := range s.data[cryptoID] {
		if !found || p.Date.After(latest) {
			latest = p.Date
			found = true
		}
	}
	return latest, found, nil
}

func (s *memPriceStore) Health(context.Context) error { return nil }

// memRunStore is an in-memory ModelRunStore for tests.
type memRunStore struct {
	mu     sync.Mutex
	nextID int64
	runs   map[int64]*models.ModelRun
}

func newMemRunStore() *memRunStore {
	return &memRunStore{nextID: 1, runs: make(map[int64]*models.ModelRun)}
}

func (s *memRunStore) Init(context.Context) error { return nil }

func (s *memRunStore) Create(_ context.Context, run *models.ModelRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run.ID = s.nextID
	s.nextID++
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *memRunStore) Update(_ context.Context, run *models.ModelRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *memRunStore) GetByID(_ context.Context, id int64) (*models.ModelRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (s *memRunStore) FindByDigest(_ context.Context, scope, digest string) (*models.ModelRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, run := range s.runs {
		if run.Scope == scope && run.KeyDigest == digest {
			cp := *run
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memRunStore) FindLatestTrained(_ context.Context, scope string, cell models.CellType) (*models.ModelRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.ModelRun
	for _, run := range s.runs {
		if run.Scope != scope || run.CellType != cell || run.Status != models.RunStatusTrained {
			continue
		}
		if best == nil || run.UpdatedAt.After(best.UpdatedAt) {
			best = run
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

// memForecastStore is an in-memory ForecastStore for tests.
type memForecastStore struct {
	mu   sync.Mutex
	data map[models.ModelKind]map[int][]models.ForecastRow
}

func newMemForecastStore() *memForecastStore {
	return &memForecastStore{data: make(map[models.ModelKind]map[int][]models.ForecastRow)}
}

func (s *memForecastStore) Init(context.Context) error { return nil }

func (s *memForecastStore) Replace(_ context.Context, kind models.ModelKind, cryptoID int, rows []models.ForecastRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[kind] == nil {
		s.data[kind] = make(map[int][]models.ForecastRow)
	}
	cp := make([]models.ForecastRow, len(rows))
	copy(cp, rows)
	s.data[kind][cryptoID] = cp
	return nil
}

func (s *memForecastStore) Fetch(_ context.Context, kind models.ModelKind, cryptoID int, since time.Time) ([]models.ForecastRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ForecastRow
	for _, r := range s.data[kind][cryptoID] {
		if !since.IsZero() && r.Date.Before(since) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *memForecastStore) Meta(_ context.Context, kind models.ModelKind, cryptoID int) (*models.ForecastMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.data[kind][cryptoID]
	if len(rows) == 0 {
		return nil, repository.ErrNotFound
	}
	meta := &models.ForecastMeta{CryptoID: cryptoID, Kind: kind, Rows: len(rows)}
	for _, r := range rows {
		if meta.FirstDate.IsZero() || r.Date.Before(meta.FirstDate) {
			meta.FirstDate = r.Date
		}
		if r.Date.After(meta.LastDate) {
			meta.LastDate = r.Date
		}
		if r.CutoffDate.After(meta.CutoffDate) {
			meta.CutoffDate = r.CutoffDate
		}
		if r.HorizonDays > meta.HorizonDays {
			meta.HorizonDays = r.HorizonDays
		}
		if r.ModelRunID > meta.ModelRunID {
			meta.ModelRunID = r.ModelRunID
		}
	}
	return meta, nil
}
