package listener

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"text/template"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/fabric/internal/kvutil"
	"github.com/arloliu/fabric/internal/logging"
	"github.com/arloliu/fabric/internal/natsutil"
	"github.com/arloliu/fabric/types"
)

// TypeTemplate is the type tag of the Template listener.
const TypeTemplate = "template"

// DefaultNamePattern names one unit per partition after its id.
const DefaultNamePattern = "${id}"

// TemplateConfig configures the template listener.
type TemplateConfig struct {
	// Bucket is the KV bucket receiving rendered units. Created if missing.
	Bucket string `yaml:"bucket"`

	// NamePattern is the unit name; "${id}" is replaced by the partition id and
	// "${task}" by the task id. Default: "${id}".
	NamePattern string `yaml:"namePattern"`
}

// Template renders the task definition once per started partition and stores
// the result in a KV bucket under "<task>.<unit name>".
//
// The definition is a text/template. Its data is the partition data extended
// with ID, TaskID and Data (the full partition data map), so both {{.ID}} and
// {{.region}} work.
type Template struct {
	js      jetstream.JetStream
	cfg     TemplateConfig
	logger  types.Logger
	tracker *tracker

	mu     sync.Mutex
	kv     jetstream.KeyValue
	parsed map[string]*template.Template
	units  map[string]string
}

var _ types.PartitionListener = (*Template)(nil)

// NewTemplate creates a template listener.
//
// Returns:
//   - error: types.ErrInvalidConfig if js is nil or no bucket is configured
func NewTemplate(js jetstream.JetStream, cfg TemplateConfig, logger types.Logger) (*Template, error) {
	if js == nil {
		return nil, fmt.Errorf("%w: template listener requires JetStream", types.ErrInvalidConfig)
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: template listener requires a bucket", types.ErrInvalidConfig)
	}
	if cfg.NamePattern == "" {
		cfg.NamePattern = DefaultNamePattern
	}

	return &Template{
		js:      js,
		cfg:     cfg,
		logger:  logging.OrNop(logger),
		tracker: newTracker(),
		parsed:  make(map[string]*template.Template),
		units:   make(map[string]string),
	}, nil
}

// Type returns "template".
func (t *Template) Type() string { return TypeTemplate }

// Start renders and stores a unit for each partition not started yet.
//
// A partition that fails to render or store is logged and left unstarted, so
// a later Start retries it. The joined errors are returned.
func (t *Template) Start(ctx context.Context, taskID, definition string, partitions []types.Partition) error {
	fresh := t.tracker.fresh(partitions)
	if len(fresh) == 0 {
		return nil
	}

	kv, err := t.bucket(ctx)
	if err != nil {
		return err
	}
	tmpl, err := t.template(definition)
	if err != nil {
		return err
	}

	var errs []error
	for _, p := range fresh {
		unit := t.unitName(taskID, p.ID)

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, templateData(taskID, p)); err != nil {
			t.logger.Error("failed to render partition unit", "task", taskID, "partition", p.ID, "error", err)
			errs = append(errs, fmt.Errorf("render %s: %w", p.ID, err))
			continue
		}

		if _, err := kv.Put(ctx, unit, buf.Bytes()); err != nil {
			err = natsutil.Classify(err)
			t.logger.Error("failed to store partition unit", "task", taskID, "partition", p.ID, "unit", unit, "error", err)
			errs = append(errs, fmt.Errorf("store %s: %w", unit, err))
			continue
		}

		t.mu.Lock()
		t.units[p.ID] = unit
		t.mu.Unlock()
		t.tracker.add(p)
		t.logger.Info("partition unit created", "task", taskID, "partition", p.ID, "unit", unit)
	}

	return errors.Join(errs...)
}

// Stop deletes the units of started partitions.
func (t *Template) Stop(ctx context.Context, taskID, _ string, partitions []types.Partition) error {
	started, unknown := t.tracker.known(partitions)
	for _, p := range unknown {
		t.logger.Debug("stop of partition never started, ignoring", "task", taskID, "partition", p.ID)
	}

	return t.remove(ctx, started)
}

// Destroy deletes every unit still held.
func (t *Template) Destroy(ctx context.Context) error {
	return t.remove(ctx, t.tracker.all())
}

// Started returns the started partition ids, sorted.
func (t *Template) Started() []string {
	return t.tracker.ids()
}

func (t *Template) remove(ctx context.Context, partitions []types.Partition) error {
	if len(partitions) == 0 {
		return nil
	}

	kv, err := t.bucket(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, p := range partitions {
		t.mu.Lock()
		unit := t.units[p.ID]
		t.mu.Unlock()

		if err := kv.Delete(ctx, unit); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			err = natsutil.Classify(err)
			t.logger.Error("failed to delete partition unit", "partition", p.ID, "unit", unit, "error", err)
			errs = append(errs, fmt.Errorf("delete %s: %w", unit, err))
			continue
		}

		t.mu.Lock()
		delete(t.units, p.ID)
		t.mu.Unlock()
		t.tracker.remove(p)
		t.logger.Info("partition unit deleted", "partition", p.ID, "unit", unit)
	}

	return errors.Join(errs...)
}

func (t *Template) bucket(ctx context.Context) (jetstream.KeyValue, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.kv != nil {
		return t.kv, nil
	}

	kv, err := kvutil.EnsureBucket(ctx, t.js, kvutil.RegistryBucket(t.cfg.Bucket), 3)
	if err != nil {
		return nil, natsutil.Classify(fmt.Errorf("failed to open unit bucket %s: %w", t.cfg.Bucket, err))
	}
	t.kv = kv

	return kv, nil
}

func (t *Template) template(definition string) (*template.Template, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if tmpl, ok := t.parsed[definition]; ok {
		return tmpl, nil
	}

	tmpl, err := template.New("definition").Option("missingkey=zero").Parse(definition)
	if err != nil {
		return nil, fmt.Errorf("%w: task definition is not a valid template: %w", types.ErrInvalidConfig, err)
	}
	t.parsed[definition] = tmpl

	return tmpl, nil
}

func (t *Template) unitName(taskID, partitionID string) string {
	name := strings.NewReplacer("${id}", partitionID, "${task}", taskID).Replace(t.cfg.NamePattern)

	return kvutil.Join(taskID, name)
}

func templateData(taskID string, p types.Partition) map[string]any {
	data := make(map[string]any, len(p.Data)+3)
	for k, v := range p.Data {
		data[k] = v
	}
	data["ID"] = p.ID
	data["TaskID"] = taskID
	data["Data"] = maps.Clone(p.Data)

	return data
}
