package accelerator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/meilisearch/meilisearch-go"

	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/record"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/region"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/resilience"
)

// DefaultSettings tunes the index for Russian-language company data.
func DefaultSettings() *meilisearch.Settings {
	return &meilisearch.Settings{
		SearchableAttributes: []string{
			"name", "description", "about", "category_names", "rubric_names",
			"address", "city", "contact_person", "phones", "emails", "websites",
		},
		FilterableAttributes: []string{
			"region", "category_slugs", "rubric_slugs", "primary_category_slug", "source",
		},
		SortableAttributes: []string{"name"},
		RankingRules:       []string{"words", "typo", "proximity", "attribute", "sort", "exactness"},
		TypoTolerance: &meilisearch.TypoTolerance{
			Enabled:             true,
			MinWordSizeForTypos: meilisearch.MinWordSizeForTypos{OneTypo: 4, TwoTypos: 8},
		},
		Synonyms: map[string][]string{
			"ооо":           {"общество с ограниченной ответственностью", "llc"},
			"оао":           {"открытое акционерное общество"},
			"зао":           {"закрытое акционерное общество"},
			"чуп":           {"частное унитарное предприятие"},
			"ип":            {"индивидуальный предприниматель"},
			"уп":            {"унитарное предприятие"},
			"ремонт":        {"починка", "восстановление"},
			"строительство": {"стройка", "строить"},
		},
	}
}

// TaskError is a task the engine accepted but failed to apply.
type TaskError struct {
	UID     int64
	Status  string
	Code    string
	Message string
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("meilisearch task %d %s: %s %s", e.UID, e.Status, e.Code, e.Message)
}

// wait blocks until the task settles and turns anything but success into a
// TaskError.
func (c *Client) wait(ctx context.Context, info *meilisearch.TaskInfo) error {
	var t *meilisearch.Task
	err := c.call(ctx, "task", c.cfg.TaskTimeout, func(ctx context.Context) error {
		var err error
		t, err = c.meili.WaitForTaskWithContext(ctx, info.TaskUID, c.cfg.TaskInterval)
		return err
	})
	if err != nil {
		return err
	}
	if t.Status != meilisearch.TaskStatusSucceeded {
		return &TaskError{UID: info.TaskUID, Status: string(t.Status), Code: t.Error.Code, Message: t.Error.Message}
	}
	return nil
}

// async enqueues a task through fn and waits for it.
func (c *Client) async(ctx context.Context, op string, fn func(ctx context.Context) (*meilisearch.TaskInfo, error)) error {
	var info *meilisearch.TaskInfo
	err := c.call(ctx, op, c.cfg.Timeout, func(ctx context.Context) error {
		var err error
		info, err = fn(ctx)
		return err
	})
	if err != nil {
		return err
	}
	return c.wait(ctx, info)
}

// ConfigureIndex creates the index if needed and applies settings.
func (c *Client) ConfigureIndex(ctx context.Context, s *meilisearch.Settings) error {
	err := c.async(ctx, "create_index", func(ctx context.Context) (*meilisearch.TaskInfo, error) {
		return c.meili.CreateIndexWithContext(ctx, &meilisearch.IndexConfig{Uid: c.cfg.Index, PrimaryKey: "id"})
	})
	var te *TaskError
	if err != nil && !(errors.As(err, &te) && te.Code == "index_already_exists") {
		return fmt.Errorf("creating index %s: %w", c.cfg.Index, err)
	}
	err = c.async(ctx, "settings", func(ctx context.Context) (*meilisearch.TaskInfo, error) {
		return c.index.UpdateSettingsWithContext(ctx, s)
	})
	if err != nil {
		return fmt.Errorf("updating settings: %w", err)
	}
	c.logger.Info("index configured")
	return nil
}

// upload sends docs split into BatchSize batches and awaits every task in
// order. Enqueueing is retried while the failure is on the server side.
func (c *Client) upload(ctx context.Context, docs []Document) (int, error) {
	var tasks []meilisearch.TaskInfo
	err := resilience.Retry(ctx, "accelerator.upload", c.cfg.Upload, func() error {
		err := c.call(ctx, "add_documents", c.cfg.TaskTimeout, func(ctx context.Context) error {
			var err error
			tasks, err = c.index.AddDocumentsInBatchesWithContext(ctx, docs, c.cfg.BatchSize, "id")
			return err
		})
		if err != nil && (errors.Is(err, resilience.ErrCircuitOpen) || !serverSide(err)) {
			return resilience.Permanent(err)
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	for i := range tasks {
		if err := c.wait(ctx, &tasks[i]); err != nil {
			return i, err
		}
	}
	return len(tasks), nil
}

// ReindexResult reports a ReplaceAll run.
type ReindexResult struct {
	Total    int           `json:"total"`
	Indexed  int           `json:"indexed"`
	Batches  int           `json:"batches"`
	Duration time.Duration `json:"duration_ns"`
}

// uploadWindow is how many batches are buffered before they are sent.
const uploadWindow = 8

// ReplaceAll configures the index, deletes every document and uploads the
// companies read from r in batches. Batches are sent a window at a time and
// every task of a window is awaited before the next one is read.
func (c *Client) ReplaceAll(ctx context.Context, r io.Reader, n *region.Normalizer) (ReindexResult, error) {
	start := time.Now()
	var res ReindexResult

	if err := c.ConfigureIndex(ctx, DefaultSettings()); err != nil {
		return res, err
	}
	err := c.async(ctx, "delete_all", func(ctx context.Context) (*meilisearch.TaskInfo, error) {
		return c.index.DeleteAllDocumentsWithContext(ctx)
	})
	if err != nil {
		return res, fmt.Errorf("clearing documents: %w", err)
	}

	window := c.cfg.BatchSize * uploadWindow
	pending := make([]Document, 0, window)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		sent, err := c.upload(ctx, pending)
		res.Batches += sent
		if err != nil {
			return fmt.Errorf("uploading batch %d: %w", res.Batches+1, err)
		}
		res.Indexed += len(pending)
		c.logger.Info("documents indexed", "batches", res.Batches, "indexed", res.Indexed)
		pending = pending[:0]
		return nil
	}

	sc := record.NewScanner(r, nil)
	for sc.Next() {
		rec := sc.Record()
		pending = append(pending, NewDocument(rec, n.Normalize(rec.City, rec.Region, rec.Address)))
		res.Total++
		if len(pending) >= window {
			if err := flush(); err != nil {
				return res, err
			}
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
	}
	if err := sc.Err(); err != nil {
		return res, fmt.Errorf("reading source: %w", err)
	}
	if err := flush(); err != nil {
		return res, err
	}

	res.Duration = time.Since(start)
	c.logger.Info("reindex complete",
		"total", res.Total,
		"indexed", res.Indexed,
		"batches", res.Batches,
		"duration", res.Duration,
	)
	return res, nil
}

// ReindexFile runs ReplaceAll over the JSONL file at path.
func (c *Client) ReindexFile(ctx context.Context, path string, n *region.Normalizer) (ReindexResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ReindexResult{}, fmt.Errorf("opening source: %w", err)
	}
	defer f.Close()
	return c.ReplaceAll(ctx, f, n)
}
