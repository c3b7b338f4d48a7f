// Package keyset provides a two-level membership index keyed by
// (prefix, suffix) pairs. The queue engine uses it for the live lease index
// and for keys pending deletion inside a write batch.
package keyset

import "iter"

// Set tracks (prefix, suffix) membership. A prefix is present exactly while it
// has at least one live suffix. Set is not safe for concurrent use.
type Set[P, S comparable] struct {
	buckets map[P]map[S]struct{}
	n       int
}

// New returns an empty Set.
func New[P, S comparable]() *Set[P, S] {
	return &Set[P, S]{buckets: make(map[P]map[S]struct{})}
}

// Add inserts (prefix, suffix).
func (s *Set[P, S]) Add(prefix P, suffix S) {
	b, ok := s.buckets[prefix]
	if !ok {
		b = make(map[S]struct{})
		s.buckets[prefix] = b
	}
	if _, dup := b[suffix]; !dup {
		b[suffix] = struct{}{}
		s.n++
	}
}

// Has reports whether (prefix, suffix) is present.
func (s *Set[P, S]) Has(prefix P, suffix S) bool {
	b, ok := s.buckets[prefix]
	if !ok {
		return false
	}
	_, ok = b[suffix]
	return ok
}

// Delete removes (prefix, suffix) and drops the prefix bucket once it is
// empty. It returns false only when the prefix had no bucket at all.
func (s *Set[P, S]) Delete(prefix P, suffix S) bool {
	b, ok := s.buckets[prefix]
	if !ok {
		return false
	}
	if _, ok := b[suffix]; ok {
		delete(b, suffix)
		s.n--
	}
	if len(b) == 0 {
		delete(s.buckets, prefix)
	}
	return true
}

// DeleteRange drops every suffix under prefix. It reports whether the
// prefix was present.
func (s *Set[P, S]) DeleteRange(prefix P) bool {
	b, ok := s.buckets[prefix]
	if !ok {
		return false
	}
	s.n -= len(b)
	delete(s.buckets, prefix)
	return true
}

// Prefixes yields each live prefix once, in no particular order. The set may
// be modified during iteration; prefixes removed before they are reached are
// not yielded.
func (s *Set[P, S]) Prefixes() iter.Seq[P] {
	return func(yield func(P) bool) {
		for p := range s.buckets {
			if !yield(p) {
				return
			}
		}
	}
}

// Suffixes yields the live suffixes of prefix.
func (s *Set[P, S]) Suffixes(prefix P) iter.Seq[S] {
	return func(yield func(S) bool) {
		for sfx := range s.buckets[prefix] {
			if !yield(sfx) {
				return
			}
		}
	}
}

// Len returns the number of live (prefix, suffix) pairs.
func (s *Set[P, S]) Len() int {
	return s.n
}

// PrefixLen returns the number of live prefixes.
func (s *Set[P, S]) PrefixLen() int {
	return len(s.buckets)
}
