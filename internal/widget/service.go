package widget

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/auditkit/pkg/audit"
)

const statusDraft = "draft"

// Service keeps widgets in memory and reports every mutation to the engine.
type Service struct {
	engine *audit.Engine
	now    func() time.Time

	mu    sync.Mutex
	items map[string]Widget
}

func NewService(engine *audit.Engine) *Service {
	if engine == nil {
		panic("widget: engine cannot be nil")
	}
	return &Service{engine: engine, now: time.Now, items: make(map[string]Widget)}
}

func (s *Service) Create(ctx context.Context, name string, price int64) (Widget, error) {
	if strings.TrimSpace(name) == "" {
		return Widget{}, errors.Join(ErrInvalid, errors.New("name is required"))
	}
	if price < 0 {
		return Widget{}, errors.Join(ErrInvalid, errors.New("price cannot be negative"))
	}

	w := Widget{
		ID:        uuid.NewString(),
		Name:      name,
		Price:     price,
		Status:    statusDraft,
		UpdatedAt: s.now().UTC(),
	}
	s.mu.Lock()
	s.items[w.ID] = w
	s.mu.Unlock()

	// the widget is stored; a lost create record is logged by the engine
	_, _ = s.engine.RecordCreate(ctx, item(w))
	return w, nil
}

func (s *Service) Get(ctx context.Context, id string) (Widget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.items[id]
	if !ok {
		return Widget{}, ErrNotFound
	}
	return w, nil
}

func (s *Service) List(ctx context.Context) []Widget {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Widget, 0, len(s.items))
	for _, w := range s.items {
		out = append(out, w)
	}
	slices.SortFunc(out, func(a, b Widget) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Update applies the patch. The update record is written first; when that
// fails the widget is left unchanged.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (Widget, error) {
	if err := patch.validate(); err != nil {
		return Widget{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.items[id]
	if !ok {
		return Widget{}, ErrNotFound
	}

	next := cur
	changes := audit.Changes{}
	if patch.Name != nil && *patch.Name != cur.Name {
		next.Name = *patch.Name
		changes["name"] = audit.Change{Before: cur.Name, After: next.Name}
	}
	if patch.Price != nil && *patch.Price != cur.Price {
		next.Price = *patch.Price
		changes["price"] = audit.Change{Before: cur.Price, After: next.Price}
	}
	if patch.Status != nil && *patch.Status != cur.Status {
		next.Status = *patch.Status
		changes["status"] = audit.Change{Before: cur.Status, After: next.Status}
	}
	if len(changes) == 0 {
		return cur, nil
	}
	next.UpdatedAt = s.now().UTC()
	changes["updated_at"] = audit.Change{Before: cur.UpdatedAt, After: next.UpdatedAt}

	if _, err := s.engine.RecordUpdate(ctx, item(next), changes); err != nil {
		return Widget{}, err
	}
	s.items[id] = next
	return next, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	w, ok := s.items[id]
	delete(s.items, id)
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	_, _ = s.engine.RecordDestroy(ctx, item(w), nil)
	return nil
}

func item(w Widget) audit.Item {
	return audit.Item{Type: ItemType, ID: w.ID, Value: &w}
}
