// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package authz

import (
	"context"
	"sync"
)

// FakeClient is an in-memory policy server for tests. It stores tuples,
// answers Check according to AllowAll or the stored tuples, and records
// every write so suites can assert on traffic.
type FakeClient struct {
	mu sync.Mutex

	// AllowAll makes every Check return Allowed regardless of tuples.
	AllowAll bool

	tuples  map[string]Tuple
	writes  []Tuple
	deletes []Tuple
}

var _ Client = &FakeClient{}

// NewFakeClient returns a FakeClient that allows everything, which is what
// most service-level tests want.
func NewFakeClient() *FakeClient {
	return &FakeClient{AllowAll: true, tuples: map[string]Tuple{}}
}

// Check consults AllowAll, then falls back to exact tuple presence with the
// permission interpreted as a relation.
func (f *FakeClient) Check(_ context.Context, subjectType, subjectID, permission, objectType, objectID string) (Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AllowAll {
		return Allowed, nil
	}
	t := Tuple{ObjectType: objectType, ObjectID: objectID, Relation: permission, SubjectType: subjectType, SubjectID: subjectID}
	if _, ok := f.tuples[t.String()]; ok {
		return Allowed, nil
	}
	return Denied, nil
}

// Lookup returns the object ids of objectType related to the subject.
func (f *FakeClient) Lookup(_ context.Context, subjectType, subjectID, _, objectType string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, t := range f.tuples {
		if t.ObjectType == objectType && t.SubjectType == subjectType && t.SubjectID == subjectID {
			ids = append(ids, t.ObjectID)
		}
	}
	return ids, nil
}

// WriteTuple stores the tuple. Idempotent.
func (f *FakeClient) WriteTuple(_ context.Context, t Tuple) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tuples[t.String()] = t
	f.writes = append(f.writes, t)
	return nil
}

// DeleteTuple removes the tuple. Idempotent.
func (f *FakeClient) DeleteTuple(_ context.Context, t Tuple) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tuples, t.String())
	f.deletes = append(f.deletes, t)
	return nil
}

// Tuples returns a snapshot of the stored tuples.
func (f *FakeClient) Tuples() []Tuple {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Tuple, 0, len(f.tuples))
	for _, t := range f.tuples {
		out = append(out, t)
	}
	return out
}

// Writes returns every tuple ever written, in order.
func (f *FakeClient) Writes() []Tuple {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Tuple(nil), f.writes...)
}

// Deletes returns every tuple ever deleted, in order.
func (f *FakeClient) Deletes() []Tuple {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Tuple(nil), f.deletes...)
}
