package bundledggpk

import (
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/jchantrell/ggpktool/internal/bundle"
	"github.com/jchantrell/ggpktool/internal/ggpk"
)

// ReplaceStats counts what a Replacer did.
type ReplaceStats struct {
	Direct  int   // direct files replaced
	Bundled int   // bundle files replaced
	Flushes int   // target bundles written back
	Bytes   int64 // new content accepted
}

// Replacer applies a run of replacements. Bundle files are appended to a
// target bundle, the smallest one in the index, which is written back once it
// has taken the flush threshold of new content and on Close. Only one
// Replacer may be open per container.
type Replacer struct {
	c *Container

	target  *bundle.Record
	payload []byte // target's payload plus everything appended so far
	pending int64  // bytes appended since the last flush

	stats ReplaceStats
}

// NewReplacer starts a replacement batch.
func (c *Container) NewReplacer() (*Replacer, error) {
	if c.batch != nil {
		return nil, fmt.Errorf("a replacement batch is already open")
	}
	r := &Replacer{c: c}
	c.batch = r
	return r, nil
}

// ReplaceContent replaces a single file and writes everything back.
func (c *Container) ReplaceContent(n ggpk.File, data []byte) error {
	r, err := c.NewReplacer()
	if err != nil {
		return err
	}
	if err := r.Replace(n, data); err != nil {
		r.Abort()
		return err
	}
	return r.Close()
}

// Stats returns the counts so far.
func (r *Replacer) Stats() ReplaceStats {
	return r.stats
}

// Replace replaces the content of one file.
func (r *Replacer) Replace(n ggpk.File, data []byte) error {
	switch f := n.(type) {
	case *ggpk.FileNode:
		if err := r.c.Container.ReplaceContent(f, data); err != nil {
			return err
		}
		r.stats.Direct++

	case *ggpk.BundleFileNode:
		added, err := r.batchReplaceContent(f, data)
		if err != nil {
			return fmt.Errorf("replacing %q: %w", r.c.Tree().Path(f), err)
		}
		r.pending += added
		r.stats.Bundled++
		if r.pending > r.c.opts.FlushThreshold {
			if err := r.flush(); err != nil {
				return err
			}
			if err := r.selectTarget(); err != nil {
				return err
			}
		}

	default:
		return fmt.Errorf("replacing %T: %w", n, ggpk.ErrNotFile)
	}

	r.stats.Bytes += int64(len(data))
	return nil
}

// batchReplaceContent appends data to the target bundle and points the file
// at it. The old bytes stay behind in their bundle, unreferenced.
func (r *Replacer) batchReplaceContent(f *ggpk.BundleFileNode, data []byte) (int64, error) {
	if r.target == nil {
		if err := r.selectTarget(); err != nil {
			return 0, err
		}
	}
	offset := len(r.payload)
	if int64(offset)+int64(len(data)) > math.MaxInt32 {
		return 0, fmt.Errorf("bundle %s would exceed %d bytes", r.target.Path, math.MaxInt32)
	}

	r.payload = append(r.payload, data...)
	f.Record.Bundle = r.target
	f.Record.Offset = int32(offset)
	f.Record.Size = int32(len(data))
	return int64(len(data)), nil
}

func (r *Replacer) selectTarget() error {
	if r.c.Index == nil {
		return fmt.Errorf("container has no bundle index")
	}
	target := r.c.Index.SmallestBundle()
	if target == nil {
		return fmt.Errorf("bundle index lists no bundles")
	}
	// read before claiming the target so the read is not served from r.payload
	payload, err := r.c.bundlePayload(target)
	if err != nil {
		return err
	}
	r.target = target
	// appends must not reach into the hot or cached payload
	r.payload = slices.Clip(payload)
	r.pending = 0
	slog.Debug("Selected target bundle", "bundle", target.Path, "size", len(payload))
	return nil
}

// flush writes the target bundle back through its FILE record.
func (r *Replacer) flush() error {
	rec, err := r.c.RecordOfBundle(r.target)
	if err != nil {
		return err
	}
	if err := r.c.Container.ReplaceContent(rec, bundle.Encode(r.payload)); err != nil {
		return fmt.Errorf("writing bundle %s: %w", r.target.Path, err)
	}
	r.target.UncompressedSize = int32(len(r.payload))
	if err := r.c.cache.Put(r.target.Index, r.payload); err != nil {
		slog.Warn("Failed to cache bundle", "bundle", r.target.Path, "error", err)
	}
	r.c.setHot(r.target, r.payload)
	r.stats.Flushes++

	slog.Debug("Flushed bundle",
		"bundle", r.target.Path,
		"size", len(r.payload),
		"appended", r.pending,
		"offset", rec.Record.Offset)
	r.target = nil
	r.payload = nil
	r.pending = 0
	return nil
}

// Close writes back the target bundle and, if any bundle file moved, the
// index.
func (r *Replacer) Close() error {
	if r.c.batch != r {
		return nil
	}
	defer func() { r.c.batch = nil }()

	if r.target != nil {
		if err := r.flush(); err != nil {
			return err
		}
	}
	if r.stats.Bundled == 0 {
		return nil
	}
	if err := r.c.Container.ReplaceContent(r.c.indexFile, r.c.Index.Save()); err != nil {
		return fmt.Errorf("writing bundle index: %w", err)
	}
	slog.Debug("Saved bundle index", "offset", r.c.indexFile.Record.Offset)
	return nil
}

// Abort ends the batch without writing anything back. Bundle files already
// moved keep pointing at content that was never written; reopen the
// container before using it again.
func (r *Replacer) Abort() {
	if r.c.batch == r {
		r.c.batch = nil
	}
	r.target = nil
	r.payload = nil
}
