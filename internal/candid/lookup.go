// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package candid

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/aplane-algo/icsign/internal/principal"
)

// DirLookup finds method signatures in a directory of .did files named
// after canister ids, e.g. ryjl3-tyaaa-aaaaa-aaaba-cai.did.
type DirLookup struct {
	dir string

	mu       sync.Mutex
	services map[string]*Service // by canister id text
}

// NewDirLookup returns a lookup over dir. Parsed files are cached.
func NewDirLookup(dir string) *DirLookup {
	return &DirLookup{dir: dir, services: make(map[string]*Service)}
}

// Dir returns the directory searched.
func (d *DirLookup) Dir() string {
	return d.dir
}

// LookupMethod returns the signature of method on canister, or (nil, nil)
// when no description of the canister or method is available.
func (d *DirLookup) LookupMethod(ctx context.Context, canister principal.Principal, method string) (*FuncType, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	svc, err := d.Service(canister)
	if err != nil || svc == nil {
		return nil, err
	}
	f, _ := svc.Method(method)
	return f, nil
}

// Service returns the parsed description of canister, or nil when the
// directory holds none.
func (d *DirLookup) Service(canister principal.Principal) (*Service, error) {
	key := canister.String()
	if svc := d.cached(key); svc != nil {
		return svc, nil
	}
	if d.dir == "" {
		return nil, nil
	}

	path := filepath.Join(d.dir, key+".did")
	src, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	svc, err := ParseDID(string(src))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d.store(key, svc), nil
}

func (d *DirLookup) cached(key string) *Service {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.services[key]
}

// store keeps the first service parsed for key and returns it.
func (d *DirLookup) store(key string, svc *Service) *Service {
	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.services[key]; ok {
		return prev
	}
	d.services[key] = svc
	return svc
}
