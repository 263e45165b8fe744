package spikeprop

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"spikeprop/internal/dataset"
	"spikeprop/internal/gradcheck"
	"spikeprop/internal/inspect"
	"spikeprop/internal/model"
	"spikeprop/internal/nn"
	"spikeprop/internal/stats"
	"spikeprop/internal/storage"
	"spikeprop/internal/training"
)

const (
	defaultArtifactsDir = "runs"
	defaultExportsDir   = "exports"
	defaultDBPath       = "spikeprop.db"
	metricsNamespace    = "spikeprop"
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
	Logger       *zap.Logger
	// Metrics is shared by every run of the client. A collector is created
	// when nil.
	Metrics *training.Collector
}

type Client struct {
	store   storage.Store
	logger  *zap.Logger
	metrics *training.Collector

	initOnce sync.Once
	initErr  error

	artifactsDir string
	exportsDir   string
}

type TrainRequest struct {
	Dataset      string  `json:"dataset" validate:"required"`
	Hidden       int     `json:"hidden" validate:"gte=1"`
	Trials       int     `json:"trials" validate:"gte=1"`
	Epochs       int     `json:"epochs" validate:"gte=1"`
	TestRuns     int     `json:"test_runs" validate:"gte=0"`
	MaxTime      float64 `json:"max_time" validate:"gt=0"`
	TimeStep     float64 `json:"time_step" validate:"gt=0"`
	LearningRate float64 `json:"learning_rate" validate:"gt=0"`
	TargetError  float64 `json:"target_error" validate:"gte=0"`
	Seed         int64   `json:"seed"`
	Workers      int     `json:"workers" validate:"gte=0"`
	MaxRestarts  int     `json:"max_restarts" validate:"gte=0"`
	InitPolicy   string  `json:"init_policy" validate:"required"`
	// ResumeRunID starts every trial from the parameters stored for that run.
	ResumeRunID string `json:"resume_run_id"`
}

// DefaultTrainRequest mirrors the XOR harness settings.
func DefaultTrainRequest() TrainRequest {
	cfg := training.DefaultConfig()
	return TrainRequest{
		Dataset:      dataset.XORName,
		Hidden:       5,
		Trials:       10,
		Epochs:       cfg.Epochs,
		TestRuns:     100,
		MaxTime:      cfg.MaxTime,
		TimeStep:     cfg.TimeStep,
		LearningRate: cfg.LearningRate,
		TargetError:  cfg.TargetError,
		Seed:         1,
		MaxRestarts:  20,
		InitPolicy:   "xor",
	}
}

type TrainSummary struct {
	RunID        string
	ArtifactsDir string
	BestTrial    int
	FinalError   float64
	Converged    int
	Accuracy     float64
	ErrorHistory []float64
	Confusion    stats.ConfusionMatrix
	// Validation is the best trial's confusion over the validation order.
	Validation   stats.ConfusionMatrix
	Trials       []stats.TrialArtifact
}

type RunsRequest struct {
	Limit int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type ParametersRequest struct {
	RunID  string
	Latest bool
}

type PredictRequest struct {
	RunID    string
	Latest   bool
	Input    []float64
	MaxTime  float64
	TimeStep float64
}

type PredictResult struct {
	RunID string
	Spike float64
	Fired bool
	// Positive is the class of Spike under the run's dataset encoding.
	Positive bool
}

// GradCheckRequest checks a stored run when RunID or Latest is set and a
// freshly initialized network otherwise.
type GradCheckRequest struct {
	RunID      string
	Latest     bool
	Dataset    string
	Hidden     int
	InitPolicy string
	Seed       int64
	Options    gradcheck.Options
}

type GradCheckItem struct {
	Sample int
	Report gradcheck.Report
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = training.NewCollector(metricsNamespace)
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		logger:       logger,
		metrics:      metrics,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Metrics() *training.Collector {
	return c.metrics
}

func (c *Client) ensureStore(ctx context.Context) error {
	c.initOnce.Do(func() {
		c.initErr = c.store.Init(ctx)
	})
	return c.initErr
}

// Train runs req.Trials independent trials, evaluates every trained network,
// persists the best parameters and writes the run artifacts.
func (c *Client) Train(ctx context.Context, req TrainRequest) (TrainSummary, error) {
	applyTrainDefaults(&req)
	if err := ValidateStruct(req); err != nil {
		return TrainSummary{}, err
	}
	ds, err := dataset.Get(req.Dataset, req.Hidden, dataset.ModeTrain)
	if err != nil {
		return TrainSummary{}, err
	}
	testSet, err := dataset.Get(req.Dataset, req.Hidden, dataset.ModeTest)
	if err != nil {
		return TrainSummary{}, err
	}
	validationSet, err := dataset.Get(req.Dataset, req.Hidden, dataset.ModeValidation)
	if err != nil {
		return TrainSummary{}, err
	}
	policy, err := nn.GetInitPolicy(req.InitPolicy)
	if err != nil {
		return TrainSummary{}, err
	}
	if err := c.ensureStore(ctx); err != nil {
		return TrainSummary{}, err
	}

	var resume *model.ParameterSet
	if req.ResumeRunID != "" {
		set, err := c.loadParameterSet(ctx, req.ResumeRunID)
		if err != nil {
			return TrainSummary{}, fmt.Errorf("resume: %w", err)
		}
		if set.Topology != ds.Topology() {
			return TrainSummary{}, fmt.Errorf("resume %s: %w: stored %v, dataset needs %v", req.ResumeRunID, nn.ErrTopologyMismatch, set.Topology.Sizes(), ds.Topology().Sizes())
		}
		resume = &set
	}

	now := time.Now().UTC()
	runID := fmt.Sprintf("%s-%d-%s", req.Dataset, req.Seed, uuid.NewString())
	logger := c.logger.With(zap.String("run_id", runID))

	checkpoint := &checkpointer{
		ctx:   ctx,
		store: c.store,
		base: model.ParameterSet{
			VersionedRecord: storage.Versioned(),
			ID:              runID,
			Dataset:         ds.Name,
			Topology:        ds.Topology(),
			Names:           ds.Names,
			Policy:          policy.Name,
		},
		logger: logger,
	}

	cfg := training.Config{
		Epochs:       req.Epochs,
		TargetError:  req.TargetError,
		LearningRate: req.LearningRate,
		MaxTime:      req.MaxTime,
		TimeStep:     req.TimeStep,
	}
	trainer := training.NewTrainer(cfg,
		training.WithLogger(logger),
		training.WithMetrics(c.metrics),
		training.WithOnImproved(checkpoint.improved),
	)
	factory := func(rng *rand.Rand) (*nn.Network, error) {
		net, err := nn.Create(ds.Names.Input, ds.Names.Hidden, ds.Names.Output, policy, rng)
		if err != nil {
			return nil, err
		}
		if resume != nil {
			if err := net.SetParameters(resume.Parameters); err != nil {
				return nil, err
			}
		}
		return net, nil
	}

	logger.Info("training started",
		zap.String("dataset", req.Dataset),
		zap.Int("trials", req.Trials),
		zap.Int("epochs", req.Epochs),
		zap.Int64("seed", req.Seed),
	)
	result, err := trainer.RunTrials(ctx, training.TrialsConfig{
		Trials:      req.Trials,
		Seed:        req.Seed,
		Workers:     req.Workers,
		MaxRestarts: req.MaxRestarts,
	}, factory, ds.Samples)
	if err != nil {
		return TrainSummary{}, err
	}
	if err := checkpoint.err(); err != nil {
		return TrainSummary{}, err
	}

	trials := make([]stats.TrialArtifact, 0, len(result.Trials))
	var bestConfusion stats.ConfusionMatrix
	converged := 0
	for _, trial := range result.Trials {
		cm, err := trainer.Evaluate(trial.Network, testSet, req.TestRuns)
		if err != nil {
			return TrainSummary{}, fmt.Errorf("evaluate trial %d: %w", trial.Trial, err)
		}
		if trial.Trial == result.Best {
			bestConfusion = cm
		}
		if trial.Converged {
			converged++
		}
		trials = append(trials, stats.TrialArtifact{
			Trial:        trial.Trial,
			Seed:         trial.Seed,
			Restarts:     trial.Restarts,
			Epochs:       trial.Epochs,
			Converged:    trial.Converged,
			FinalError:   trial.FinalError,
			Accuracy:     cm.Accuracy(),
			ErrorHistory: trial.ErrorHistory,
		})
	}

	best := result.BestTrial()
	// Predictions are deterministic, so one pass over the validation order
	// is enough.
	validation, err := trainer.Evaluate(best.Network, validationSet, 1)
	if err != nil {
		return TrainSummary{}, fmt.Errorf("validate trial %d: %w", best.Trial, err)
	}
	finalSet := checkpoint.base
	finalSet.Error = best.FinalError
	finalSet.Parameters = best.Network.Parameters()
	if err := c.store.SaveParameterSet(ctx, finalSet); err != nil {
		return TrainSummary{}, err
	}

	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:        runID,
			ResumeRunID:  req.ResumeRunID,
			Dataset:      req.Dataset,
			Trials:       req.Trials,
			Epochs:       req.Epochs,
			TestRuns:     req.TestRuns,
			MaxTime:      req.MaxTime,
			TimeStep:     req.TimeStep,
			LearningRate: req.LearningRate,
			TargetError:  req.TargetError,
			Seed:         req.Seed,
			Workers:      req.Workers,
			MaxRestarts:  req.MaxRestarts,
			InitPolicy:   req.InitPolicy,
			Hidden:       req.Hidden,
		},
		BestTrial:    result.Best,
		ErrorHistory: best.ErrorHistory,
		FinalError:   best.FinalError,
		Parameters:   finalSet,
		Confusion:    bestConfusion,
		Validation:   validation,
		Trials:       trials,
		Summary:      stats.SummarizeTrials(trials),
	})
	if err != nil {
		return TrainSummary{}, err
	}

	createdAt := now.Format(time.RFC3339Nano)
	if err := stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
		RunID:        runID,
		Dataset:      req.Dataset,
		Trials:       req.Trials,
		Epochs:       req.Epochs,
		Seed:         req.Seed,
		Workers:      req.Workers,
		BestTrial:    result.Best,
		FinalError:   best.FinalError,
		Accuracy:     bestConfusion.Accuracy(),
		CreatedAtUTC: createdAt,
	}); err != nil {
		return TrainSummary{}, err
	}
	if err := c.store.SaveRun(ctx, model.RunRecord{
		VersionedRecord: storage.Versioned(),
		ID:              runID,
		Dataset:         req.Dataset,
		Seed:            req.Seed,
		Trials:          req.Trials,
		Epochs:          req.Epochs,
		LearningRate:    req.LearningRate,
		BestTrial:       result.Best,
		BestError:       best.FinalError,
		Converged:       converged,
		Accuracy:        bestConfusion.Accuracy(),
		CreatedAtUTC:    createdAt,
	}); err != nil {
		return TrainSummary{}, err
	}
	if err := c.store.SaveErrorHistory(ctx, runID, best.ErrorHistory); err != nil {
		return TrainSummary{}, err
	}

	logger.Info("training finished",
		zap.Int("best_trial", result.Best),
		zap.Float64("final_error", best.FinalError),
		zap.Int("converged", converged),
		zap.Float64("accuracy", bestConfusion.Accuracy()),
		zap.Float64("validation_accuracy", validation.Accuracy()),
	)
	return TrainSummary{
		RunID:        runID,
		ArtifactsDir: filepath.Clean(runDir),
		BestTrial:    result.Best,
		FinalError:   best.FinalError,
		Converged:    converged,
		Accuracy:     bestConfusion.Accuracy(),
		ErrorHistory: append([]float64(nil), best.ErrorHistory...),
		Confusion:    bestConfusion,
		Validation:   validation,
		Trials:       trials,
	}, nil
}

// applyTrainDefaults fills fields whose zero value is not a valid setting.
// TargetError is left alone: zero trains every trial for the full epoch
// budget.
func applyTrainDefaults(req *TrainRequest) {
	defaults := DefaultTrainRequest()
	if req.Dataset == "" {
		req.Dataset = defaults.Dataset
	}
	if req.InitPolicy == "" {
		req.InitPolicy = defaults.InitPolicy
	}
	if req.Hidden == 0 {
		req.Hidden = defaults.Hidden
	}
	if req.Trials == 0 {
		req.Trials = defaults.Trials
	}
	if req.Epochs == 0 {
		req.Epochs = defaults.Epochs
	}
	if req.MaxTime == 0 {
		req.MaxTime = defaults.MaxTime
	}
	if req.TimeStep == 0 {
		req.TimeStep = defaults.TimeStep
	}
	if req.LearningRate == 0 {
		req.LearningRate = defaults.LearningRate
	}
}

// checkpointer stores the parameters of the lowest-error epoch seen across
// all trials of a run. The first store error stops further checkpoints and
// is reported when training ends.
type checkpointer struct {
	ctx    context.Context
	store  storage.Store
	base   model.ParameterSet
	logger *zap.Logger

	mu      sync.Mutex
	best    float64
	saved   bool
	saveErr error
}

func (c *checkpointer) improved(trial, epoch int, sse float64, params model.Parameters) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saveErr != nil || (c.saved && sse >= c.best) {
		return
	}
	set := c.base
	set.Error = sse
	set.Parameters = params.Clone()
	if err := c.store.SaveParameterSet(c.ctx, set); err != nil {
		c.saveErr = fmt.Errorf("checkpoint trial %d epoch %d: %w", trial, epoch, err)
		return
	}
	c.best = sse
	c.saved = true
	c.logger.Debug("checkpoint saved",
		zap.Int("trial", trial),
		zap.Int("epoch", epoch),
		zap.Float64("sse", sse),
	)
}

func (c *checkpointer) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveErr
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	Dataset      string
	Seed         int64
	Trials       int
	Epochs       int
	BestTrial    int
	FinalError   float64
	Accuracy     float64
}

// Runs lists the run index, newest first.
func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:        e.RunID,
			CreatedAtUTC: e.CreatedAtUTC,
			Dataset:      e.Dataset,
			Seed:         e.Seed,
			Trials:       e.Trials,
			Epochs:       e.Epochs,
			BestTrial:    e.BestTrial,
			FinalError:   e.FinalError,
			Accuracy:     e.Accuracy,
		})
	}
	return out, nil
}

// StoredRuns lists the runs recorded in the store, newest first.
func (c *Client) StoredRuns(ctx context.Context) ([]model.RunRecord, error) {
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	return c.store.ListRuns(ctx)
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, fmt.Errorf("export: %w", err)
	}

	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

// Parameters returns the best parameter set of a run. The store is asked
// first; runs written by another process are read from their artifacts.
func (c *Client) Parameters(ctx context.Context, req ParametersRequest) (model.ParameterSet, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return model.ParameterSet{}, fmt.Errorf("parameters: %w", err)
	}
	if err := c.ensureStore(ctx); err != nil {
		return model.ParameterSet{}, err
	}
	return c.loadParameterSet(ctx, runID)
}

// ErrorHistory returns the best trial's per-epoch error of a run.
func (c *Client) ErrorHistory(ctx context.Context, req ParametersRequest) ([]float64, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return nil, fmt.Errorf("error history: %w", err)
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	history, ok, err := c.store.GetErrorHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		history, ok, err = stats.ReadErrorSeries(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("error history not found for run id: %s", runID)
	}
	return append([]float64(nil), history...), nil
}

func (c *Client) Predict(ctx context.Context, req PredictRequest) (PredictResult, error) {
	if req.MaxTime == 0 {
		req.MaxTime = training.DefaultConfig().MaxTime
	}
	if req.TimeStep == 0 {
		req.TimeStep = training.DefaultConfig().TimeStep
	}
	set, err := c.Parameters(ctx, ParametersRequest{RunID: req.RunID, Latest: req.Latest})
	if err != nil {
		return PredictResult{}, err
	}
	net, err := networkFromSet(set)
	if err != nil {
		return PredictResult{}, err
	}

	spike, fired, err := net.Predict(model.NewSample(req.Input, 0), req.MaxTime, req.TimeStep)
	if err != nil {
		return PredictResult{}, err
	}
	out := PredictResult{RunID: set.ID, Spike: spike, Fired: fired}
	if ds, err := dataset.Get(set.Dataset, set.Topology.Hidden, dataset.ModeTrain); err == nil {
		out.Positive = ds.Classify(spike)
	}
	return out, nil
}

// GradCheck compares analytic and finite difference spike-time gradients on
// every sample of the dataset.
func (c *Client) GradCheck(ctx context.Context, req GradCheckRequest) ([]GradCheckItem, error) {
	if req.Options == (gradcheck.Options{}) {
		req.Options = gradcheck.DefaultOptions()
	}

	var (
		net *nn.Network
		ds  dataset.Dataset
		err error
	)
	if req.RunID != "" || req.Latest {
		set, err := c.Parameters(ctx, ParametersRequest{RunID: req.RunID, Latest: req.Latest})
		if err != nil {
			return nil, err
		}
		if net, err = networkFromSet(set); err != nil {
			return nil, err
		}
		if ds, err = dataset.Get(set.Dataset, set.Topology.Hidden, dataset.ModeTrain); err != nil {
			return nil, err
		}
	} else {
		defaults := DefaultTrainRequest()
		if req.Dataset == "" {
			req.Dataset = defaults.Dataset
		}
		if req.Hidden == 0 {
			req.Hidden = defaults.Hidden
		}
		if req.InitPolicy == "" {
			req.InitPolicy = defaults.InitPolicy
		}
		if ds, err = dataset.Get(req.Dataset, req.Hidden, dataset.ModeTrain); err != nil {
			return nil, err
		}
		policy, err := nn.GetInitPolicy(req.InitPolicy)
		if err != nil {
			return nil, err
		}
		net, err = nn.Create(ds.Names.Input, ds.Names.Hidden, ds.Names.Output, policy, rand.New(rand.NewSource(req.Seed)))
		if err != nil {
			return nil, err
		}
	}

	items := make([]GradCheckItem, 0, len(ds.Samples))
	for i, sample := range ds.Samples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report, err := gradcheck.Run(net, sample, req.Options)
		if errors.Is(err, gradcheck.ErrNoSpike) {
			c.logger.Warn("gradient check skipped silent sample", zap.Int("sample", i))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		items = append(items, GradCheckItem{Sample: i, Report: report})
	}
	return items, nil
}

// InspectServer builds an inspection server for a run's parameters and the
// client's metrics.
func (c *Client) InspectServer(ctx context.Context, req ParametersRequest) (*inspect.Server, error) {
	set, err := c.Parameters(ctx, req)
	if err != nil {
		return nil, err
	}
	return inspect.NewServer(set, c.metrics, c.logger), nil
}

func (c *Client) loadParameterSet(ctx context.Context, runID string) (model.ParameterSet, error) {
	set, ok, err := c.store.GetParameterSet(ctx, runID)
	if err != nil {
		return model.ParameterSet{}, err
	}
	if ok {
		return set, nil
	}
	set, ok, err = stats.ReadParameters(c.artifactsDir, runID)
	if err != nil {
		return model.ParameterSet{}, err
	}
	if !ok {
		return model.ParameterSet{}, fmt.Errorf("parameters not found for run id: %s", runID)
	}
	return set, nil
}

func (c *Client) resolveRunID(runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID != "" {
		return runID, nil
	}
	if !latest {
		return "", errors.New("run id or latest is required")
	}
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

// networkFromSet rebuilds the network a parameter set was taken from.
func networkFromSet(set model.ParameterSet) (*nn.Network, error) {
	policy, err := nn.GetInitPolicy(set.Policy)
	if err != nil {
		policy = nn.UniformPolicy()
	}
	net, err := nn.Create(set.Names.Input, set.Names.Hidden, set.Names.Output, policy, rand.New(rand.NewSource(0)))
	if err != nil {
		return nil, err
	}
	if err := net.SetParameters(set.Parameters); err != nil {
		return nil, err
	}
	return net, nil
}
