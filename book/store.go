package book

import (
	"math"

	"github.com/tidwall/btree"

	"bookflow/models"
)

const btreeDegree = 32

// LevelStore holds one side of the book keyed by price. Iteration is
// strictly ascending by price and every stored size is positive.
type LevelStore struct {
	levels *btree.Map[float64, float64]
}

func NewLevelStore() *LevelStore {
	return &LevelStore{levels: btree.NewMap[float64, float64](btreeDegree)}
}

// Replace discards the current contents and loads levels. Entries that
// would violate the store invariant (non-positive size, NaN or infinite
// values) are skipped; repeated prices keep the last entry.
func (s *LevelStore) Replace(levels []models.Level) {
	s.levels = btree.NewMap[float64, float64](btreeDegree)
	for _, l := range levels {
		if !validPrice(l.Price) || !(l.Size > 0) || math.IsInf(l.Size, 0) {
			continue
		}
		s.levels.Set(l.Price, l.Size)
	}
}

// Apply patches the store with a batch of changes. An entry removes any
// level at its price and reinserts it when the size is positive, so a
// single pass handles insert, update and removal. Within one batch the last
// entry for a price wins.
func (s *LevelStore) Apply(changes []models.Level) {
	for _, c := range changes {
		if !validPrice(c.Price) {
			continue
		}
		if c.Size > 0 && !math.IsInf(c.Size, 0) {
			s.levels.Set(c.Price, c.Size)
			continue
		}
		s.levels.Delete(c.Price)
	}
}

// Size returns the size resting at price.
func (s *LevelStore) Size(price float64) (float64, bool) {
	return s.levels.Get(price)
}

func (s *LevelStore) Len() int {
	return s.levels.Len()
}

// Levels returns a copy of the store in ascending price order.
func (s *LevelStore) Levels() []models.Level {
	out := make([]models.Level, 0, s.levels.Len())
	s.levels.Scan(func(price, size float64) bool {
		out = append(out, models.Level{Price: price, Size: size})
		return true
	})
	return out
}

// Min returns the lowest priced level.
func (s *LevelStore) Min() (models.Level, bool) {
	price, size, ok := s.levels.Min()
	return models.Level{Price: price, Size: size}, ok
}

// Max returns the highest priced level.
func (s *LevelStore) Max() (models.Level, bool) {
	price, size, ok := s.levels.Max()
	return models.Level{Price: price, Size: size}, ok
}

// Patch applies changes to an ascending level slice and returns the result
// as a new slice. The input is left untouched.
func Patch(levels, changes []models.Level) []models.Level {
	s := NewLevelStore()
	s.Replace(levels)
	s.Apply(changes)
	return s.Levels()
}

func validPrice(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0)
}
