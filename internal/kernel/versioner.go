package kernel

import (
	"time"

	"github.com/google/uuid"

	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/jsondiff"
	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/model"
)

// newVersion builds the version row for one mutation. The diff is only
// computed for updates; every other change type is fully described by its
// snapshots.
func newVersion(o *model.Object, changeType string, prev map[string]any, actor model.ActorContext, reason string, now time.Time) *model.ObjectVersion {
	v := &model.ObjectVersion{
		ID:            uuid.New(),
		ObjectID:      o.ID,
		VersionNumber: o.Version,
		ChangeType:    changeType,
		ChangedBy:     actor.User,
		IP:            actor.IP,
		UserAgent:     actor.UserAgent,
		ChangeReason:  reason,
		CreatedAt:     now,
	}
	switch changeType {
	case model.ChangeCreate:
		v.CurrentData = o.Data
	case model.ChangeUpdate:
		v.PreviousData = prev
		v.CurrentData = o.Data
		v.Diff = jsondiff.Diff(prev, o.Data)
	case model.ChangeDelete:
		v.PreviousData = prev
	case model.ChangeRestore, model.ChangeStatusChange:
		v.PreviousData = prev
		v.CurrentData = o.Data
	}
	return v
}
