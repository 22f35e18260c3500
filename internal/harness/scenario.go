package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/boarding/internal/model"
)

// Scenario is one scripted run against the coordinator.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario demonstrates.
	Description string `yaml:"description"`

	// Window is the admission window size K. Zero uses the default.
	Window int `yaml:"window,omitempty"`

	// LeaseTimeout is the lease duration. Zero uses the default.
	LeaseTimeout time.Duration `yaml:"lease_timeout,omitempty"`

	// Resources is the directory installed before the first step.
	Resources []model.Resource `yaml:"resources"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are checked against the final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one operation.
type Step struct {
	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	Subject  string        `yaml:"subject,omitempty"`
	Resource string        `yaml:"resource,omitempty"`
	Duration time.Duration `yaml:"duration,omitempty"`
	Reason   string        `yaml:"reason,omitempty"`

	// Expect is the expected error code. Empty means the step must succeed.
	Expect string `yaml:"expect,omitempty"`
}

// Step operations.
const (
	OpJoin       = "join"
	OpLeave      = "leave"
	OpRejoin     = "rejoin"
	OpForceLeave = "force_leave"
	OpReserve    = "reserve"
	OpChange     = "change"
	OpCancel     = "cancel"
	OpAdvance    = "advance"
	OpSweep      = "sweep"
)

var validOps = []string{OpJoin, OpLeave, OpRejoin, OpForceLeave, OpReserve, OpChange, OpCancel, OpAdvance, OpSweep}

// Assertion checks the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Subjects []string `yaml:"subjects,omitempty"`
	Subject  string   `yaml:"subject,omitempty"`
	Resource string   `yaml:"resource,omitempty"`
}

// Assertion types.
const (
	AssertQueueOrder = "queue_order" // queue holds exactly Subjects, in order
	AssertLeased     = "leased"      // exactly Subjects hold a lease
	AssertReserved   = "reserved"    // Subject holds a reservation on Resource
	AssertNotQueued  = "not_queued"  // Subject has no queue entry
	AssertInvariants = "invariants"  // coordinator.Verify passes
)

var validAssertions = []string{AssertQueueOrder, AssertLeased, AssertReserved, AssertNotQueued, AssertInvariants}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if !slices.Contains(validOps, step.Op) {
			return fmt.Errorf("step %d: unknown op %q", i+1, step.Op)
		}
		switch step.Op {
		case OpAdvance:
			if step.Duration <= 0 {
				return fmt.Errorf("step %d: advance requires a positive duration", i+1)
			}
		case OpSweep:
		default:
			if step.Subject == "" {
				return fmt.Errorf("step %d: %s requires a subject", i+1, step.Op)
			}
		}
		if (step.Op == OpReserve || step.Op == OpChange) && step.Resource == "" {
			return fmt.Errorf("step %d: %s requires a resource", i+1, step.Op)
		}
	}

	for i, a := range s.Assertions {
		if !slices.Contains(validAssertions, a.Type) {
			return fmt.Errorf("assertion %d: unknown type %q", i+1, a.Type)
		}
	}
	return nil
}
