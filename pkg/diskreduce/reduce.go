package diskreduce

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spaolacci/murmur3"
	"pkg.jsn.cam/diskreduce/internal/records"
	"pkg.jsn.cam/diskreduce/pkg/storage"
)

// reduceGroup is the set of units of one page that share a parent bucket.
type reduceGroup[V any] struct {
	parent int
	units  []*records.Result[V]
	id     string
	output []V
}

func (g *reduceGroup[V]) values() []V {
	var values []V
	for _, u := range g.units {
		values = append(values, u.Values...)
	}
	return values
}

// groupByParent splits bucket ordered units into groups of equal parent.
func groupByParent[V any](units []*records.Result[V], batchSize int) []*reduceGroup[V] {
	var groups []*reduceGroup[V]
	for _, u := range units {
		parent := ParentBucket(u.Bucket, batchSize)
		if len(groups) == 0 || groups[len(groups)-1].parent != parent {
			groups = append(groups, &reduceGroup[V]{parent: parent})
		}
		last := groups[len(groups)-1]
		last.units = append(last.units, u)
	}
	for _, g := range groups {
		g.id = contentID(g.units)
	}
	return groups
}

// contentID identifies a group by its inputs, so that replaying a reduce step
// overwrites its earlier output instead of adding to it.
func contentID[V any](units []*records.Result[V]) string {
	refs := make([]string, len(units))
	for i, u := range units {
		refs[i] = fmt.Sprintf("%d\x00%s\x00%08x\x00%s", int(u.Level), u.Key, u.Bucket, u.ID)
	}
	sort.Strings(refs)

	h := murmur3.New128()
	for _, ref := range refs {
		h.Write([]byte(ref))
		h.Write([]byte{'\n'})
	}
	h1, h2 := h.Sum128()
	return fmt.Sprintf("%016x%016x", h1, h2)
}

// reduceKey drains the three levels of key in order.
func (e *Executor[I, V]) reduceKey(ctx context.Context, log logrus.FieldLogger, key string) error {
	log = log.WithField("key", key)
	for _, level := range records.Levels {
		if err := e.runReduceLevel(ctx, log.WithField("level", level.String()), key, level); err != nil {
			return errors.Wrapf(err, "reduce %q at %s", key, level)
		}
	}
	return nil
}

// runReduceLevel leases pages of key at level until none is left. Each page
// is reduced outside of any transaction, then its output and the consumption
// of its inputs are committed together.
func (e *Executor[I, V]) runReduceLevel(ctx context.Context, log logrus.FieldLogger, key string, level records.Level) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := e.tracker.Lease(ctx, key, level, e.cfg.PageSize)
		if err != nil {
			return err
		}
		if len(page.Units) == 0 {
			return e.backend.Update(func(tx storage.Transaction) error {
				_, err := e.tracker.ClearMarkers(tx, key, level)
				return err
			})
		}

		groups := groupByParent(page.Units, e.cfg.BatchSize)
		for _, g := range groups {
			out, err := e.task.Reduce(ctx, g.values())
			if err != nil {
				return errors.Wrapf(err, "reduce bucket %d", g.parent)
			}
			g.output = out
		}

		var final *records.Final[V]
		if level == records.FinalLevel {
			if final, err = e.fold(ctx, key, groups); err != nil {
				return err
			}
		}

		err = e.backend.Update(func(tx storage.Transaction) error {
			if level < records.FinalLevel {
				for _, g := range groups {
					r := &records.Result[V]{
						Key:    key,
						ID:     g.id,
						Bucket: g.parent,
						Level:  level + 1,
						Values: g.output,
					}
					if err := e.store.Put(tx, records.Pending, r); err != nil {
						return err
					}
					if err := e.tracker.ScheduleReduction(tx, key, g.parent, level+1); err != nil {
						return err
					}
				}
			} else if final != nil {
				if err := e.store.PutFinal(tx, final); err != nil {
					return err
				}
			}

			if e.afterPersist != nil {
				if err := e.afterPersist(key, level); err != nil {
					return err
				}
			}
			return e.tracker.MarkConsumed(tx, key, level, page.Units)
		})
		if err != nil {
			return errors.Wrap(err, "commit reduce step")
		}

		log.WithFields(logrus.Fields{
			"units":    len(page.Units),
			"groups":   len(groups),
			"has_more": page.HasMore,
		}).Debug("Reduced page")
	}
}

// fold merges the outputs of last level groups into the final result of key.
// Groups already folded in are skipped. Returns nil when nothing changes.
func (e *Executor[I, V]) fold(ctx context.Context, key string, groups []*reduceGroup[V]) (*records.Final[V], error) {
	var prev *records.Final[V]
	err := e.backend.View(func(tx storage.Transaction) error {
		var err error
		prev, err = e.store.GetFinal(tx, key)
		return err
	})
	if err != nil {
		return nil, err
	}

	final := prev
	changed := false
	for _, g := range groups {
		if final == nil {
			final = &records.Final[V]{Key: key, Values: g.output, Parts: []string{g.id}}
			changed = true
			continue
		}
		if final.HasPart(g.id) {
			continue
		}

		values := append(append([]V(nil), final.Values...), g.output...)
		merged, err := e.task.Reduce(ctx, values)
		if err != nil {
			return nil, errors.Wrap(err, "fold into final result")
		}
		final = &records.Final[V]{Key: key, Values: merged, Parts: append(append([]string(nil), final.Parts...), g.id)}
		changed = true
	}

	if !changed {
		return nil, nil
	}
	return final, nil
}
