package collab

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/collabslam/utils"
)

// Mode selects which part of the trajectories candidates are sampled from.
type Mode string

const (
	// ModeBatch samples from the whole trajectory history.
	ModeBatch = Mode("batch")
	// ModeLive samples from the most recent poses only.
	ModeLive = Mode("live")
)

// ParseMode parses a mode name. The empty string selects live mode.
func ParseMode(s string) (Mode, error) {
	switch mode := Mode(strings.ToLower(s)); mode {
	case "":
		return ModeLive, nil
	case ModeBatch, ModeLive:
		return mode, nil
	default:
		return "", errors.Errorf("unknown collaborative mode %q", s)
	}
}

// Defaults for Config.
const (
	DefaultCandidatesPerCycle      = 10
	DefaultMaxAttemptsPerCandidate = 10
	DefaultLiveWindow              = 100
	DefaultMinNewPoses             = 1
	DefaultRefinementFrames        = 100
	DefaultDedupTranslation        = 50.
	DefaultDedupRotation           = 0.05
	DefaultAcceptanceThreshold     = 0.9
	DefaultNearTieEpsilon          = 1e-3
	DefaultSchedulingInterval      = 100 * time.Millisecond
)

// Config configures a collaborative Component. Distances are in millimetres and angles in radians.
type Config struct {
	Mode                    Mode          `json:"mode"`
	CandidatesPerCycle      int           `json:"candidates_per_cycle"`
	MaxAttemptsPerCandidate int           `json:"max_attempts_per_candidate"`
	LiveWindow              int           `json:"live_window"`
	MinNewPoses             int           `json:"min_new_poses"`
	RefinementFrames        int           `json:"refinement_frames"`
	PerturbTranslation      float64       `json:"perturb_translation"`
	PerturbRotation         float64       `json:"perturb_rotation"`
	DedupTranslation        float64       `json:"dedup_translation"`
	DedupRotation           float64       `json:"dedup_rotation"`
	TriedPosesCapacity      int           `json:"tried_poses_capacity"`
	AcceptanceThreshold     float64       `json:"acceptance_threshold"`
	NearTieEpsilon          float64       `json:"near_tie_epsilon"`
	SchedulingInterval      time.Duration `json:"scheduling_interval"`

	Scorer ScorerConfig `json:"scorer"`
}

// ApplyDefaults fills in unset fields.
func (cfg *Config) ApplyDefaults() {
	if cfg.Mode == "" {
		cfg.Mode = ModeLive
	}
	if cfg.CandidatesPerCycle == 0 {
		cfg.CandidatesPerCycle = DefaultCandidatesPerCycle
	}
	if cfg.MaxAttemptsPerCandidate == 0 {
		cfg.MaxAttemptsPerCandidate = DefaultMaxAttemptsPerCandidate
	}
	if cfg.LiveWindow == 0 {
		cfg.LiveWindow = DefaultLiveWindow
	}
	if cfg.MinNewPoses == 0 {
		cfg.MinNewPoses = DefaultMinNewPoses
	}
	if cfg.RefinementFrames == 0 {
		cfg.RefinementFrames = DefaultRefinementFrames
	}
	if cfg.DedupTranslation == 0 {
		cfg.DedupTranslation = DefaultDedupTranslation
	}
	if cfg.DedupRotation == 0 {
		cfg.DedupRotation = DefaultDedupRotation
	}
	if cfg.TriedPosesCapacity == 0 {
		cfg.TriedPosesCapacity = DefaultTriedPosesCapacity
	}
	if cfg.AcceptanceThreshold == 0 {
		cfg.AcceptanceThreshold = DefaultAcceptanceThreshold
	}
	if cfg.NearTieEpsilon == 0 {
		cfg.NearTieEpsilon = DefaultNearTieEpsilon
	}
	if cfg.SchedulingInterval == 0 {
		cfg.SchedulingInterval = DefaultSchedulingInterval
	}
	cfg.Scorer.ApplyDefaults()
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if _, err := ParseMode(string(cfg.Mode)); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	for _, field := range []struct {
		name  string
		value int
	}{
		{"candidates_per_cycle", cfg.CandidatesPerCycle},
		{"max_attempts_per_candidate", cfg.MaxAttemptsPerCandidate},
		{"live_window", cfg.LiveWindow},
		{"min_new_poses", cfg.MinNewPoses},
		{"refinement_frames", cfg.RefinementFrames},
		{"tried_poses_capacity", cfg.TriedPosesCapacity},
	} {
		if field.value <= 0 {
			return utils.NewConfigValidationError(path, errors.Errorf("%s must be positive", field.name))
		}
	}
	if cfg.PerturbTranslation < 0 || cfg.PerturbRotation < 0 {
		return utils.NewConfigValidationError(path, errors.New("perturbation must be non-negative"))
	}
	if cfg.DedupTranslation < 0 || cfg.DedupRotation < 0 {
		return utils.NewConfigValidationError(path, errors.New("dedup tolerances must be non-negative"))
	}
	if cfg.AcceptanceThreshold <= 0 || cfg.AcceptanceThreshold > 1 {
		return utils.NewConfigValidationError(path, errors.New("acceptance_threshold must be in (0, 1]"))
	}
	if cfg.NearTieEpsilon < 0 {
		return utils.NewConfigValidationError(path, errors.New("near_tie_epsilon must be non-negative"))
	}
	if cfg.SchedulingInterval <= 0 {
		return utils.NewConfigValidationError(path, errors.New("scheduling_interval must be positive"))
	}
	return cfg.Scorer.Validate(path + ".scorer")
}
