// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package schema

import (
	"context"

	"github.com/karpov-sv/fink-utils/batch"
)

// Source decides which descriptor a batch is encoded with.
type Source interface {
	Descriptor(ctx context.Context, store *Store, fields []batch.Field) (*Descriptor, error)
}

// Derived derives the descriptor from the fields being encoded.
type Derived struct{}

func (Derived) Descriptor(_ context.Context, _ *Store, fields []batch.Field) (*Descriptor, error) {
	return Derive(fields)
}

func (Derived) String() string { return "derived" }

// Fixed loads the descriptor persisted at Path, whatever the fields.
type Fixed struct {
	Path string
}

func (f Fixed) Descriptor(ctx context.Context, store *Store, _ []batch.Field) (*Descriptor, error) {
	return store.Read(ctx, f.Path)
}

func (f Fixed) String() string { return "fixed:" + f.Path }
