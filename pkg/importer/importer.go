// Package importer orchestrates ASM policy imports against a BIG-IP device:
// existence check, optional file upload, import task submission, and polling
// until the device-side task reaches a terminal state.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bigipctl/bigipctl/internal/poll"
	"github.com/bigipctl/bigipctl/pkg/bigip"
	"github.com/bigipctl/bigipctl/pkg/domain"
	"github.com/bigipctl/bigipctl/pkg/guard"
)

// Device REST paths consumed by the orchestrator. These are a fixed wire
// contract with the appliance.
const (
	policiesPath   = "/mgmt/tm/asm/policies/"
	uploadsPath    = "/mgmt/tm/asm/file-transfer/uploads"
	importTaskPath = "/mgmt/tm/asm/tasks/import-policy/"
	provisionPath  = "/mgmt/tm/sys/provision"
)

// defaultUploadSettle matches the pause the device needs between a file
// upload and the task submission referencing it.
const defaultUploadSettle = 2 * time.Second

const tracerName = "github.com/bigipctl/bigipctl/pkg/importer"

// DeviceClient is the transport the orchestrator drives. *bigip.Client
// satisfies it; tests substitute fakes.
type DeviceClient interface {
	Get(ctx context.Context, path string) (*bigip.Response, error)
	Post(ctx context.Context, path string, body any) (*bigip.Response, error)
	UploadFile(ctx context.Context, path string, content []byte, filename string) error
}

// Options configure an Importer.
type Options struct {
	// Poll controls task status polling. Zero value selects the device
	// API's native one-second fixed interval with no overall timeout.
	Poll poll.Config
	// UploadSettle is the pause between file upload and task submission.
	// Zero selects the default; negative disables the pause.
	UploadSettle time.Duration
	// DryRun short-circuits Run before any mutation and reports the
	// hypothetical diff.
	DryRun bool
	// SkipProvisionCheck bypasses the ASM provisioning probe.
	SkipProvisionCheck bool
	// Guard, when set, must admit the spec before any device call.
	Guard   *guard.Guard
	Logger  *slog.Logger
	Metrics *Metrics
}

// Importer runs declarative policy imports. One Run is one policy import;
// the importer itself holds no per-run state and is safe for concurrent use.
type Importer struct {
	client DeviceClient
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates an Importer on top of a device client.
func New(client DeviceClient, opts Options) *Importer {
	if opts.Poll.Interval == 0 {
		opts.Poll = mergePoll(opts.Poll)
	}
	if opts.UploadSettle == 0 {
		opts.UploadSettle = defaultUploadSettle
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		client: client,
		opts:   opts,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
}

func mergePoll(cfg poll.Config) poll.Config {
	def := poll.DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = cfg.Interval
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = def.Multiplier
	}
	return cfg
}

// Run executes one import invocation: validate, admission guard, provision
// check, action resolution, optional upload, task submission, and polling.
// The returned diff reports the fields the operation changed.
func (im *Importer) Run(ctx context.Context, spec domain.PolicySpec) (domain.DiffResult, error) {
	runID := uuid.NewString()
	logger := im.logger.With("run_id", runID, "policy", spec.Name, "partition", spec.Partition)

	ctx, span := im.tracer.Start(ctx, "asm.policy_import", trace.WithAttributes(
		attribute.String("asm.policy.name", spec.Name),
		attribute.String("asm.policy.partition", spec.Partition),
		attribute.Bool("asm.import.dry_run", im.opts.DryRun),
	))
	defer span.End()

	diff, err := im.run(ctx, logger, spec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if im.opts.Metrics != nil {
			im.opts.Metrics.importsTotal.WithLabelValues("error").Inc()
		}
		return domain.DiffResult{}, err
	}

	span.SetAttributes(
		attribute.String("asm.import.action", diff.Action.String()),
		attribute.Bool("asm.import.changed", diff.Changed),
	)
	if im.opts.Metrics != nil {
		im.opts.Metrics.importsTotal.WithLabelValues("ok").Inc()
		im.opts.Metrics.actionsTotal.WithLabelValues(diff.Action.String()).Inc()
	}
	return diff, nil
}

func (im *Importer) run(ctx context.Context, logger *slog.Logger, spec domain.PolicySpec) (domain.DiffResult, error) {
	if err := spec.Validate(); err != nil {
		return domain.DiffResult{}, err
	}

	if im.opts.Guard != nil {
		if err := im.opts.Guard.Admit(ctx, spec); err != nil {
			return domain.DiffResult{}, err
		}
	}

	if im.opts.DryRun {
		action := domain.ActionCreate
		if spec.Force {
			action = domain.ActionOverwrite
		}
		logger.Info("dry run, skipping import", "action", action.String())
		return domain.NewDiffResult(spec, action), nil
	}

	if !im.opts.SkipProvisionCheck {
		provisioned, err := im.Provisioned(ctx, "asm")
		if err != nil {
			return domain.DiffResult{}, err
		}
		if !provisioned {
			return domain.DiffResult{}, domain.ErrNotProvisioned
		}
	}

	action, err := im.ResolveAction(ctx, spec)
	if err != nil {
		return domain.DiffResult{}, err
	}

	if action == domain.ActionSkip {
		logger.Info("policy exists and force not set, nothing to do")
		return domain.NewDiffResult(spec, action), nil
	}

	if spec.Source != "" {
		if err := im.uploadSource(ctx, logger, spec); err != nil {
			return domain.NewDiffResult(spec, action), err
		}
	}

	taskID, err := im.SubmitImportTask(ctx, spec, action)
	if err != nil {
		return domain.NewDiffResult(spec, action), err
	}
	logger.Info("import task submitted", "task_id", taskID, "action", action.String())

	task, err := im.WaitForCompletion(ctx, taskID)
	if err != nil {
		return domain.NewDiffResult(spec, action), err
	}
	logger.Info("import task finished", "task_id", task.ID, "status", string(task.Status))

	return domain.NewDiffResult(spec, action), nil
}

// Exists queries the device for a policy matching the spec's name and
// partition.
func (im *Importer) Exists(ctx context.Context, spec domain.PolicySpec) (bool, error) {
	resp, err := im.client.Get(ctx, policiesQuery(spec))
	if err != nil {
		return false, err
	}
	if !resp.OK() {
		return false, &domain.RemoteError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	var parsed struct {
		Items []struct {
			Name      string `json:"name"`
			Partition string `json:"partition"`
		} `json:"items"`
	}
	if err := resp.Decode(&parsed); err != nil {
		return false, err
	}
	return len(parsed.Items) > 0, nil
}

// ResolveAction decides between skip, overwrite, and create for the spec.
// A missing policy always resolves to create, regardless of force.
func (im *Importer) ResolveAction(ctx context.Context, spec domain.PolicySpec) (domain.Action, error) {
	exists, err := im.Exists(ctx, spec)
	if err != nil {
		return domain.ActionSkip, err
	}
	switch {
	case exists && !spec.Force:
		return domain.ActionSkip, nil
	case exists:
		return domain.ActionOverwrite, nil
	default:
		return domain.ActionCreate, nil
	}
}

// SubmitImportTask creates the device-side import task and returns its ID.
// On overwrite the payload references the existing policy's self link
// instead of carrying a name.
func (im *Importer) SubmitImportTask(ctx context.Context, spec domain.PolicySpec, action domain.Action) (string, error) {
	payload, err := im.taskPayload(ctx, spec, action)
	if err != nil {
		return "", err
	}

	resp, err := im.client.Post(ctx, importTaskPath, payload)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", &domain.RemoteError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	var task domain.ImportTask
	if err := resp.Decode(&task); err != nil {
		return "", err
	}
	if task.ID == "" {
		return "", fmt.Errorf("device accepted the import task but returned no task id")
	}
	return task.ID, nil
}

// taskPayload maps the spec onto the device wire attributes. Attributes the
// device only honors for inline imports are dropped for file imports.
func (im *Importer) taskPayload(ctx context.Context, spec domain.PolicySpec, action domain.Action) (map[string]any, error) {
	payload := map[string]any{}

	if spec.Inline != "" {
		payload["file"] = spec.Inline
		payload["policyType"] = string(spec.PolicyType)
		if spec.RetainInheritanceSettings != nil {
			payload["retainInheritanceSettings"] = *spec.RetainInheritanceSettings
		}
		if spec.ParentPolicy != "" {
			payload["parentPolicy"] = map[string]string{"fullPath": spec.ParentFullPath()}
		}
		if spec.Base64 != nil {
			payload["isBase64"] = *spec.Base64
		}
		if spec.Encoding != "" {
			payload["applicationLanguage"] = spec.Encoding
		}
	}
	if spec.Source != "" {
		payload["filename"] = spec.SourceFilename()
	}

	if action == domain.ActionOverwrite {
		link, err := im.policyLink(ctx, spec)
		if err != nil {
			return nil, err
		}
		payload["policyReference"] = map[string]string{"link": link}
	} else {
		payload["name"] = spec.FullPath()
	}

	return payload, nil
}

// policyLink resolves the self link of the existing policy named by the spec.
func (im *Importer) policyLink(ctx context.Context, spec domain.PolicySpec) (string, error) {
	resp, err := im.client.Get(ctx, policiesQuery(spec))
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", &domain.RemoteError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	var parsed struct {
		Items []struct {
			SelfLink string `json:"selfLink"`
		} `json:"items"`
	}
	if err := resp.Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Items) == 0 {
		return "", fmt.Errorf("policy %s vanished while resolving its self link", spec.FullPath())
	}
	return parsed.Items[0].SelfLink, nil
}

// WaitForCompletion polls the import task until the device reports a
// terminal status. FAILURE surfaces as a TaskFailedError; a configured poll
// timeout or context cancellation aborts the wait.
func (im *Importer) WaitForCompletion(ctx context.Context, taskID string) (domain.ImportTask, error) {
	ctx, span := im.tracer.Start(ctx, "asm.wait_for_task", trace.WithAttributes(
		attribute.String("asm.task.id", taskID),
	))
	defer span.End()

	start := time.Now()
	var task domain.ImportTask

	err := poll.Wait(ctx, im.opts.Poll, func(ctx context.Context) (bool, error) {
		resp, err := im.client.Get(ctx, importTaskPath+url.PathEscape(taskID))
		if err != nil {
			return false, err
		}
		if !resp.OK() {
			return false, &domain.RemoteError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
		}
		if err := resp.Decode(&task); err != nil {
			return false, err
		}
		return task.Status.Terminal(), nil
	})

	if im.opts.Metrics != nil {
		im.opts.Metrics.taskWaitDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return domain.ImportTask{}, err
	}

	span.SetAttributes(attribute.String("asm.task.status", string(task.Status)))
	if task.Status == domain.TaskFailure {
		return domain.ImportTask{}, &domain.TaskFailedError{TaskID: taskID}
	}
	return task, nil
}

// Provisioned reports whether a device module (e.g. "asm") is provisioned.
func (im *Importer) Provisioned(ctx context.Context, module string) (bool, error) {
	resp, err := im.client.Get(ctx, provisionPath)
	if err != nil {
		return false, err
	}
	if !resp.OK() {
		return false, &domain.RemoteError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	var parsed struct {
		Items []struct {
			Name  string `json:"name"`
			Level string `json:"level"`
		} `json:"items"`
	}
	if err := resp.Decode(&parsed); err != nil {
		return false, err
	}
	for _, item := range parsed.Items {
		if item.Name == module {
			return item.Level != "" && item.Level != "none", nil
		}
	}
	return false, nil
}

// uploadSource reads the local policy file and pushes it through the
// file-transfer endpoint, then lets the device settle before the task
// submission references the uploaded name.
func (im *Importer) uploadSource(ctx context.Context, logger *slog.Logger, spec domain.PolicySpec) error {
	content, err := os.ReadFile(spec.Source)
	if err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}

	if err := im.client.UploadFile(ctx, uploadsPath, content, spec.SourceFilename()); err != nil {
		return err
	}
	logger.Info("policy file uploaded", "filename", spec.SourceFilename(), "bytes", len(content))

	if im.opts.UploadSettle > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(im.opts.UploadSettle):
		}
	}
	return nil
}

// policiesQuery builds the existence filter for a spec's name and partition.
func policiesQuery(spec domain.PolicySpec) string {
	return fmt.Sprintf(
		"%s?$filter=name+eq+%s+and+partition+eq+%s&$select=name,partition",
		policiesPath, spec.Name, spec.Partition,
	)
}
