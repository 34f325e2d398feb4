package directory

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// maxAdminSwapAttempts bounds the read-modify-write loop in AddAdmin.
const maxAdminSwapAttempts = 16

func (d *Directory) loadAdmins(ctx context.Context) (raw string, ids []int64, err error) {
	raw, _, err = d.kv.Get(ctx, keyAdmins)
	if err != nil {
		return "", nil, unavailable("load admins", err)
	}
	ids, err = parseAdmins(raw)
	if err != nil {
		return "", nil, err
	}
	return raw, ids, nil
}

func parseAdmins(raw string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, malformed(keyAdmins, raw)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func formatAdmins(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// IsAdmin reports whether userID is in the admin set.
func (d *Directory) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	_, ids, err := d.loadAdmins(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(ids, userID), nil
}

// HasAdmins reports whether the admin set is non-empty. It always reads
// through to the store layer; callers must not cache the answer.
func (d *Directory) HasAdmins(ctx context.Context) (bool, error) {
	_, ids, err := d.loadAdmins(ctx)
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

// ListAdmins returns the admin set in insertion order.
func (d *Directory) ListAdmins(ctx context.Context) ([]int64, error) {
	_, ids, err := d.loadAdmins(ctx)
	return ids, err
}

// AddAdmin adds userID to the admin set. It returns false when userID was
// already present. Concurrent adds never lose an entry: the set is updated
// with compare-and-swap and re-read on conflict.
func (d *Directory) AddAdmin(ctx context.Context, userID int64) (bool, error) {
	for attempt := 0; attempt < maxAdminSwapAttempts; attempt++ {
		raw, ids, err := d.loadAdmins(ctx)
		if err != nil {
			return false, err
		}
		if slices.Contains(ids, userID) {
			return false, nil
		}

		swapped, err := d.kv.CompareAndSwap(ctx, keyAdmins, raw, formatAdmins(append(ids, userID)))
		if err != nil {
			return false, unavailable("add admin", err)
		}
		if swapped {
			d.logger.Info("admin added", "user_id", userID)
			return true, nil
		}
		d.logger.Debug("admin set changed concurrently, retrying", "user_id", userID, "attempt", attempt+1)
	}
	return false, fmt.Errorf("%w: admin set too contended", ErrStoreUnavailable)
}

// ClaimFirstAdmin makes userID the sole admin if and only if the admin set
// is still empty at the moment of the write. Of several concurrent
// claimers exactly one succeeds.
func (d *Directory) ClaimFirstAdmin(ctx context.Context, userID int64) (bool, error) {
	swapped, err := d.kv.CompareAndSwap(ctx, keyAdmins, "", strconv.FormatInt(userID, 10))
	if err != nil {
		return false, unavailable("claim first admin", err)
	}
	if swapped {
		d.logger.Info("first admin claimed", "user_id", userID)
	}
	return swapped, nil
}
