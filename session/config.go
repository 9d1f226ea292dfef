package session

import (
	"fmt"
	"math"
	"os"

	slam "github.com/milosgajdos/go-slam"
	"github.com/milosgajdos/go-slam/model"
	"github.com/milosgajdos/go-slam/smooth/isam"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Config is session configuration
type Config struct {
	// InitialPose is the prior mean of pose 0: x, y, theta
	InitialPose [3]float64 `yaml:"initial_pose"`
	// PriorSigmas are the prior standard deviations of pose 0
	PriorSigmas [3]float64 `yaml:"prior_sigmas"`
	// MotionAlphas are the odometry noise coefficients a1..a4
	MotionAlphas [4]float64 `yaml:"motion_alphas"`
	// ObservationSigmas are the bearing and range standard deviations
	ObservationSigmas [2]float64 `yaml:"observation_sigmas"`
	// MotionVarianceFloor is added to every motion variance so zero motion stays well posed
	MotionVarianceFloor float64 `yaml:"motion_variance_floor"`
	// Solver configures the incremental solver
	Solver isam.Params `yaml:"solver"`
}

// DefaultConfig returns default session configuration
func DefaultConfig() Config {
	return Config{
		InitialPose:         [3]float64{0, 0, 0},
		PriorSigmas:         [3]float64{0.1, 0.1, 0.1},
		MotionAlphas:        [4]float64{0.05, 0.001, 0.05, 0.01},
		ObservationSigmas:   [2]float64{0.035, 0.1},
		MotionVarianceFloor: 1e-6,
		Solver:              isam.DefaultParams(),
	}
}

// Alphas returns motion noise coefficients
func (c Config) Alphas() model.Alphas {
	return model.Alphas{
		A1: c.MotionAlphas[0],
		A2: c.MotionAlphas[1],
		A3: c.MotionAlphas[2],
		A4: c.MotionAlphas[3],
	}
}

// Validate checks the configuration and returns every problem found.
// Non-positive noise parameters are reported wrapping slam.ErrInvalidNoiseModel.
func (c Config) Validate() error {
	var err error

	for i, v := range c.InitialPose {
		if !finite(v) {
			err = multierr.Append(err, fmt.Errorf("initial_pose[%d] is not finite: %v", i, v))
		}
	}
	for i, v := range c.PriorSigmas {
		if !positive(v) {
			err = multierr.Append(err, fmt.Errorf("%w: prior_sigmas[%d]: %v", slam.ErrInvalidNoiseModel, i, v))
		}
	}
	for i, v := range c.MotionAlphas {
		if !positive(v) {
			err = multierr.Append(err, fmt.Errorf("%w: motion_alphas[%d]: %v", slam.ErrInvalidNoiseModel, i, v))
		}
	}
	for i, v := range c.ObservationSigmas {
		if !positive(v) {
			err = multierr.Append(err, fmt.Errorf("%w: observation_sigmas[%d]: %v", slam.ErrInvalidNoiseModel, i, v))
		}
	}
	if !positive(c.MotionVarianceFloor) {
		err = multierr.Append(err, fmt.Errorf("%w: motion_variance_floor: %v", slam.ErrInvalidNoiseModel, c.MotionVarianceFloor))
	}

	if c.Solver.MaxIterations <= 0 {
		err = multierr.Append(err, fmt.Errorf("solver.max_iterations must be positive: %d", c.Solver.MaxIterations))
	}
	if c.Solver.RelinearizeThreshold < 0 || !finite(c.Solver.RelinearizeThreshold) {
		err = multierr.Append(err, fmt.Errorf("solver.relinearize_threshold is invalid: %v", c.Solver.RelinearizeThreshold))
	}
	if c.Solver.WildfireThreshold < 0 || !finite(c.Solver.WildfireThreshold) {
		err = multierr.Append(err, fmt.Errorf("solver.wildfire_threshold is invalid: %v", c.Solver.WildfireThreshold))
	}
	if c.Solver.ConvergenceThreshold < 0 || !finite(c.Solver.ConvergenceThreshold) {
		err = multierr.Append(err, fmt.Errorf("solver.convergence_threshold is invalid: %v", c.Solver.ConvergenceThreshold))
	}

	return err
}

// LoadConfig loads session configuration from a YAML file.
// Fields missing from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func positive(v float64) bool {
	return finite(v) && v > 0
}
