package config

import (
	"fmt"
	"os"

	"github.com/hjson/hjson-go/v4"
)

// Config carries the crowd and facade tuning knobs. Zero values are not
// meaningful; start from Default and override from a file when needed.
type Config struct {
	// MaxAgents is the crowd pool capacity.
	MaxAgents int `json:"maxAgents"`

	// Agent shape and dynamics.
	AgentRadius     float32 `json:"agentRadius"`
	MaxSpeed        float32 `json:"maxSpeed"`
	MaxAcceleration float32 `json:"maxAcceleration"`

	SeparationWeight float32 `json:"separationWeight"`

	// AvoidanceQuality selects the obstacle avoidance tier (0..3).
	AvoidanceQuality int `json:"avoidanceQuality"`

	// RandomPointAttempts caps the draws of a random-location query before
	// it reports failure.
	RandomPointAttempts int `json:"randomPointAttempts"`

	// ArrivalThresholdSqr is the squared distance to the path end at which
	// a wandering walker picks a new destination.
	ArrivalThresholdSqr float32 `json:"arrivalThresholdSqr"`

	// WanderMaxHeight constrains the destinations picked when retargeting
	// arrived walkers. Negative disables the constraint.
	WanderMaxHeight float32 `json:"wanderMaxHeight"`

	// RotationSpeed scales yaw smoothing, in turns of the remaining angle
	// per second.
	RotationSpeed float32 `json:"rotationSpeed"`

	// GroundOffset is subtracted from the agent pivot height when
	// reporting transforms.
	GroundOffset float32 `json:"groundOffset"`
}

// Default returns the tuning the module ships with, matching typical
// pedestrian locomotion.
func Default() *Config {
	return &Config{
		MaxAgents:           500,
		AgentRadius:         0.3,
		MaxSpeed:            1.47,
		MaxAcceleration:     8.0,
		SeparationWeight:    0.5,
		AvoidanceQuality:    3,
		RandomPointAttempts: 64,
		ArrivalThresholdSqr: 2.0,
		WanderMaxHeight:     1.0,
		RotationSpeed:       4.0,
		GroundOffset:        0.08,
	}
}

// Load reads an hjson file and overlays it onto the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := hjson.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MaxAgents <= 0 {
		return fmt.Errorf("config: maxAgents must be positive, got %d", c.MaxAgents)
	}
	if c.AgentRadius <= 0 {
		return fmt.Errorf("config: agentRadius must be positive, got %v", c.AgentRadius)
	}
	if c.AvoidanceQuality < 0 || c.AvoidanceQuality > 3 {
		return fmt.Errorf("config: avoidanceQuality must be 0..3, got %d", c.AvoidanceQuality)
	}
	if c.RandomPointAttempts <= 0 {
		return fmt.Errorf("config: randomPointAttempts must be positive, got %d", c.RandomPointAttempts)
	}
	return nil
}
