package bridge

import (
	"context"

	"github.com/nerrad567/airrelay/internal/directory"
)

// Authorizer gates privileged commands on admin membership.
//
// The admin set is read on every check and never cached here: while it is
// empty every user passes, and the first /addadmin claims it atomically.
type Authorizer struct {
	dir *directory.Directory
}

// NewAuthorizer creates an Authorizer.
func NewAuthorizer(dir *directory.Directory) *Authorizer {
	return &Authorizer{dir: dir}
}

// Authorize returns nil when userID may run a privileged command.
func (a *Authorizer) Authorize(ctx context.Context, userID int64) error {
	has, err := a.dir.HasAdmins(ctx)
	if err != nil {
		return err
	}
	if !has {
		return nil
	}

	ok, err := a.dir.IsAdmin(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return reject(ErrUnauthorized, "This command requires admin privileges.")
	}
	return nil
}

// Admit checks that invoker may grant admin rights and reports whether
// the invoker just became the first admin.
//
// With an empty admin set the invoker claims it. Of several concurrent
// first attempts exactly one claims the set; the others are then checked
// as ordinary non-admin invocations.
func (a *Authorizer) Admit(ctx context.Context, invoker int64) (bool, error) {
	has, err := a.dir.HasAdmins(ctx)
	if err != nil {
		return false, err
	}
	if !has {
		claimed, err := a.dir.ClaimFirstAdmin(ctx, invoker)
		if err != nil {
			return false, err
		}
		if claimed {
			return true, nil
		}
	}
	return false, a.Authorize(ctx, invoker)
}
